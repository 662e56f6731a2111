package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/embedding"
	"rag-chatbot/internal/helper"
	"rag-chatbot/internal/llmservice"
	"rag-chatbot/internal/parser"
	"rag-chatbot/internal/rag"
	"rag-chatbot/internal/server"
	"rag-chatbot/internal/session"
)

const configFilePath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	addr := flag.String("addr", "", "Listen address, overrides server.addr")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	setupLogging(&cfg.Log)

	if cfg.ChatLLM.Key == "" {
		log.Warn().Str("env", cfg.ChatLLM.KeyEnv).Msg("Chat API key is not set; questions will fail until it is")
	}

	if err := helper.CreateFolder(cfg.Server.UploadDir); err != nil {
		log.Fatal().Err(err).Msg("Error creating upload folder")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	chunkOpts := parser.ChunkOptions{
		Strategy: cfg.RAG.ChunkStrategy,
		Size:     cfg.RAG.ChunkSize,
		Overlap:  cfg.RAG.ChunkOverlap,
	}
	indexes := rag.NewIndexCache(rag.NewBuilder(embedder, chunkOpts))
	orch := rag.NewOrchestrator(indexes, llmservice.NewClient(&cfg.ChatLLM), cfg.RAG.TopK)

	srv, err := server.New(&cfg.Server, session.NewStore(), orch, indexes)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating server")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("embedder", cfg.EmbedLLM.Provider).Str("model", cfg.ChatLLM.Model).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Error running server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down server")
	}
}

func setupLogging(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
	}
}

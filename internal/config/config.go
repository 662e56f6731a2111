package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultTopK         = 3

	ChunkStrategyWindow    = "window"
	ChunkStrategyRecursive = "recursive"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	RAG      RAGConfig    `yaml:"rag"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	ChatLLM  LLMConfig    `yaml:"chat_llm"`
	Log      LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" validate:"required"`
	UploadDir      string   `yaml:"upload_dir" validate:"required"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" validate:"gt=0"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RAGConfig struct {
	ChunkStrategy string `yaml:"chunk_strategy" validate:"oneof=window recursive"`
	ChunkSize     int    `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int    `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK          int    `yaml:"top_k" validate:"gt=0"`
}

// LLMConfig describes one model endpoint. It is used both for the embedding
// model and for the chat model; fields that do not apply are ignored.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model" validate:"required"`
	KeyEnv    string        `yaml:"key_env"`
	Key       string        `yaml:"-"`
	Dimension int           `yaml:"dimension" validate:"gte=0"`
	BatchSize int           `yaml:"batch_size" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level   string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8501",
			UploadDir:   ".",
			MaxUploadMB: 200,
		},
		RAG: RAGConfig{
			ChunkStrategy: ChunkStrategyWindow,
			ChunkSize:     DefaultChunkSize,
			ChunkOverlap:  DefaultChunkOverlap,
			TopK:          DefaultTopK,
		},
		EmbedLLM: LLMConfig{
			Provider:  ProviderOllama,
			BaseURL:   "http://localhost:11434",
			Model:     "all-minilm",
			KeyEnv:    "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 32,
		},
		ChatLLM: LLMConfig{
			Provider: ProviderOpenAI,
			BaseURL:  "https://api.groq.com/openai/v1",
			Model:    "llama3-8b-8192",
			KeyEnv:   "GROQ_API_KEY",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults. A missing
// file is not an error. API keys are always taken from the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.ChatLLM.KeyEnv != "" {
		cfg.ChatLLM.Key = os.Getenv(cfg.ChatLLM.KeyEnv)
	}
	if cfg.EmbedLLM.KeyEnv != "" {
		cfg.EmbedLLM.Key = os.Getenv(cfg.EmbedLLM.KeyEnv)
	}
	if addr := os.Getenv("RAG_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
}

var validate = validator.New()

// Validate checks field constraints and provider names.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.EmbedLLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q", cfg.EmbedLLM.Provider)
	}
	if cfg.ChatLLM.Provider != ProviderOpenAI {
		return fmt.Errorf("invalid config: chat provider must be %q (OpenAI-compatible), got %q", ProviderOpenAI, cfg.ChatLLM.Provider)
	}
	return nil
}

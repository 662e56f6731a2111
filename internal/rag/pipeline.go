package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"rag-chatbot/internal/chromemdb"
	"rag-chatbot/internal/parser"
)

// NewBuilder returns a BuildFunc that parses, chunks and embeds a document.
func NewBuilder(embedder embeddings.Embedder, opts parser.ChunkOptions) BuildFunc {
	return func(ctx context.Context, path string) (*chromemdb.Index, error) {
		start := time.Now()

		pages, err := parser.ParseDocument(path)
		if err != nil {
			return nil, err
		}

		passages, err := parser.Chunk(pages, opts)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", path).Int("pages", len(pages)).Int("passages", len(passages)).Msg("Chunked document")

		ix, err := chromemdb.Build(ctx, passages, embedder)
		if err != nil {
			return nil, err
		}

		log.Info().Str("path", path).Int("passages", len(passages)).Dur("took", time.Since(start)).Msg("Vector index ready")
		return ix, nil
	}
}

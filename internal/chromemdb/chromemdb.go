package chromemdb

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

const collectionName = "passages"

// Index is an in-memory similarity index over the passages of one document.
// It is read-only once Build returns and safe for concurrent queries.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	passages   map[string]models.Passage
	dimension  int
}

// Build embeds every passage with embedder in one batched call and loads the
// vectors into a fresh chromem collection.
func Build(ctx context.Context, passages []models.Passage, embedder embeddings.Embedder) (*Index, error) {
	if len(passages) == 0 {
		return nil, apperr.ErrEmptyIndex
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperr.E(apperr.KindEmbedding, "embed passages", err)
	}
	if len(vectors) != len(passages) {
		return nil, apperr.E(apperr.KindEmbedding, "embed passages",
			fmt.Errorf("got %d vectors for %d passages", len(vectors), len(passages)))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, apperr.E(apperr.KindEmbedding, "embed passages", fmt.Errorf("embedder returned an empty vector"))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, apperr.E(apperr.KindEmbedding, "embed passages",
				fmt.Errorf("passage %d has dimension %d, want %d", passages[i].Ordinal, len(v), dim))
		}
	}

	db := chromem.NewDB()
	// chromem falls back to OpenAI when no function is given; route any
	// embedding it needs through our embedder instead.
	collection, err := db.CreateCollection(collectionName, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, apperr.E(apperr.KindIndex, "create collection", err)
	}

	docs := make([]chromem.Document, len(passages))
	byID := make(map[string]models.Passage, len(passages))
	for i, p := range passages {
		id := strconv.Itoa(p.Ordinal)
		docs[i] = chromem.Document{
			ID:      id,
			Content: p.Text,
			Metadata: map[string]string{
				"page":    strconv.Itoa(p.Page),
				"ordinal": id,
			},
			Embedding: vectors[i],
		}
		byID[id] = p
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, apperr.E(apperr.KindIndex, "add passages", err)
	}

	log.Debug().Int("passages", len(passages)).Int("dimension", dim).Msg("Built vector index")

	return &Index{
		db:         db,
		collection: collection,
		embedder:   embedder,
		passages:   byID,
		dimension:  dim,
	}, nil
}

func embeddingFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

func (ix *Index) Len() int { return ix.collection.Count() }

func (ix *Index) Dimension() int { return ix.dimension }

// Query returns at most k passages ordered by non-increasing cosine
// similarity to text, ties broken by passage ordinal. k <= 0 means the
// default top-k.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]models.Hit, error) {
	if k <= 0 {
		k = config.DefaultTopK
	}

	vec, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperr.E(apperr.KindEmbedding, "embed query", err)
	}
	if len(vec) != ix.dimension {
		return nil, apperr.E(apperr.KindEmbedding, "embed query",
			fmt.Errorf("query has dimension %d, index has %d", len(vec), ix.dimension))
	}

	// chromem breaks ties arbitrarily, so rank everything and cut here.
	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vec,
		NResults:       ix.collection.Count(),
	})
	if err != nil {
		return nil, apperr.E(apperr.KindIndex, "query index", err)
	}

	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		p, ok := ix.passages[r.ID]
		if !ok {
			return nil, apperr.E(apperr.KindIndex, "query index", fmt.Errorf("unknown passage id %q", r.ID))
		}
		score := float64(r.Similarity)
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		hits = append(hits, models.Hit{Passage: p, Score: score})
	}
	SortHits(hits)

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// SortHits orders hits by descending score, then ascending passage ordinal.
func SortHits(hits []models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Passage.Ordinal < hits[j].Passage.Ordinal
	})
}

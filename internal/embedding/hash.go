package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

const DefaultHashDimension = 384

// HashEmbedder is an offline embedder that maps word tokens into a fixed
// number of buckets (feature hashing) and L2-normalises the counts. It needs
// no model download and is fully deterministic.
type HashEmbedder struct {
	dimension int
	token     *regexp.Regexp
	stopwords map[string]struct{}
}

var _ embeddings.Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{
		dimension: dimension,
		token:     regexp.MustCompile(`\p{L}+|\p{N}+`),
		stopwords: defaultStopwords(),
	}
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		// keep the vector non-zero so cosine similarity stays defined
		tokens = []string{strings.ToLower(strings.TrimSpace(text))}
	}

	acc := make([]float64, e.dimension)
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		sign := 1.0
		if sum&(1<<31) != 0 {
			sign = -1.0
		}
		acc[int(sum%uint32(e.dimension))] += sign
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	for i, v := range acc {
		if norm > 0 {
			vec[i] = float32(v / norm)
		}
	}
	return vec
}

func (e *HashEmbedder) tokenize(text string) []string {
	raw := e.token.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "so", "such", "into", "about", "what", "which", "who", "how", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

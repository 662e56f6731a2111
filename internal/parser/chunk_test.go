package parser

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

func sampleText(seed int64, words int) string {
	vocab := []string{"sky", "blue", "grass", "green", "résumé", "naïve", "東京", "the", "a", "is"}
	rng := rand.New(rand.NewSource(seed))
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString(vocab[rng.Intn(len(vocab))])
		switch rng.Intn(12) {
		case 0:
			b.WriteString(". ")
		case 1:
			b.WriteString("\n")
		case 2:
			b.WriteString("\n\n")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

// reconstruct removes the overlap from every passage after the first of a
// page and concatenates the result.
func reconstruct(passages []models.Passage, overlap int) map[int]string {
	out := map[int]string{}
	for i, p := range passages {
		if i > 0 && passages[i-1].Page == p.Page {
			out[p.Page] += string([]rune(p.Text)[overlap:])
			continue
		}
		out[p.Page] += p.Text
	}
	return out
}

func TestChunkWindowReconstructsPages(t *testing.T) {
	sizes := []struct{ size, overlap int }{
		{1000, 100},
		{50, 10},
		{17, 16},
		{8, 0},
	}
	for seed := int64(1); seed <= 5; seed++ {
		pages := []models.Page{
			{Number: 1, Text: sampleText(seed, 400)},
			{Number: 2, Text: sampleText(seed+100, 30)},
			{Number: 3, Text: "short"},
		}
		for _, sz := range sizes {
			passages, err := Chunk(pages, ChunkOptions{Strategy: config.ChunkStrategyWindow, Size: sz.size, Overlap: sz.overlap})
			require.NoError(t, err)

			got := reconstruct(passages, sz.overlap)
			for _, page := range pages {
				assert.Equal(t, page.Text, got[page.Number], "seed %d size %d overlap %d page %d", seed, sz.size, sz.overlap, page.Number)
			}
		}
	}
}

func TestChunkWindowInvariants(t *testing.T) {
	const size, overlap = 60, 12
	pages := []models.Page{{Number: 1, Text: sampleText(42, 300)}, {Number: 2, Text: sampleText(43, 300)}}

	passages, err := Chunk(pages, ChunkOptions{Size: size, Overlap: overlap})
	require.NoError(t, err)
	require.Greater(t, len(passages), 4)

	for i, p := range passages {
		assert.Equal(t, i, p.Ordinal)
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), size)
		assert.Equal(t, p.End-p.Start, utf8.RuneCountInString(p.Text))

		if i == 0 || passages[i-1].Page != p.Page {
			continue
		}
		prev := []rune(passages[i-1].Text)
		cur := []rune(p.Text)
		assert.Equal(t, passages[i-1].End-overlap, p.Start)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]))
	}
}

func TestChunkPrefersNaturalBreaks(t *testing.T) {
	text := strings.Repeat("x", 30) + "\n\n" + strings.Repeat("y", 30) + ". " + strings.Repeat("z", 60)
	passages, err := Chunk([]models.Page{{Number: 1, Text: text}}, ChunkOptions{Size: 40, Overlap: 5})
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	assert.True(t, strings.HasSuffix(passages[0].Text, "\n\n"), "first passage %q should end at the paragraph break", passages[0].Text)
}

func TestChunkIsDeterministic(t *testing.T) {
	pages := []models.Page{{Number: 1, Text: sampleText(7, 500)}}
	a, err := Chunk(pages, DefaultChunkOptions())
	require.NoError(t, err)
	b, err := Chunk(pages, DefaultChunkOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChunkSkipsBlankPages(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Text: "  \n\t "},
		{Number: 2, Text: "The sky is blue."},
		{Number: 3, Text: ""},
	}
	passages, err := Chunk(pages, DefaultChunkOptions())
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, 2, passages[0].Page)
	assert.Equal(t, 0, passages[0].Ordinal)
	assert.Equal(t, "The sky is blue.", passages[0].Text)
}

func TestChunkRejectsBadOptions(t *testing.T) {
	pages := []models.Page{{Number: 1, Text: "text"}}
	for _, opts := range []ChunkOptions{
		{Size: 0},
		{Size: 10, Overlap: 10},
		{Size: 10, Overlap: -1},
		{Strategy: "sentence", Size: 10},
	} {
		_, err := Chunk(pages, opts)
		assert.ErrorIs(t, err, apperr.Invalid, "%+v", opts)
	}
}

func TestChunkRecursiveStrategy(t *testing.T) {
	text := sampleText(9, 400)
	passages, err := Chunk([]models.Page{{Number: 4, Text: text}}, ChunkOptions{Strategy: config.ChunkStrategyRecursive, Size: 100, Overlap: 20})
	require.NoError(t, err)
	require.Greater(t, len(passages), 1)

	for i, p := range passages {
		assert.Equal(t, i, p.Ordinal)
		assert.Equal(t, 4, p.Page)
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 100)
		assert.Contains(t, text, p.Text)
	}
}

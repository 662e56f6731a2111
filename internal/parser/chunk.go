package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// ChunkOptions controls how page text is split into passages. Size and
// Overlap are counted in runes.
type ChunkOptions struct {
	Strategy string
	Size     int
	Overlap  int
}

// DefaultChunkOptions matches the defaults of the configuration file.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Strategy: config.ChunkStrategyWindow,
		Size:     config.DefaultChunkSize,
		Overlap:  config.DefaultChunkOverlap,
	}
}

// breakLookback limits how far back from the window end a natural break is
// searched for, as a fraction (1/n) of the chunk size.
const breakLookback = 4

type span struct {
	start, end int
}

// Chunk splits every page into passages. Passages never span two pages and
// are numbered in document order starting at 0. Pages holding only
// whitespace produce no passages.
func Chunk(pages []models.Page, opts ChunkOptions) ([]models.Passage, error) {
	if opts.Strategy == "" {
		opts.Strategy = config.ChunkStrategyWindow
	}
	if opts.Size <= 0 {
		return nil, apperr.E(apperr.KindInvalid, "chunk", fmt.Errorf("chunk size must be positive, got %d", opts.Size))
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		return nil, apperr.E(apperr.KindInvalid, "chunk", fmt.Errorf("chunk overlap must be in [0, %d), got %d", opts.Size, opts.Overlap))
	}

	var passages []models.Passage
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}

		switch opts.Strategy {
		case config.ChunkStrategyWindow:
			runes := []rune(page.Text)
			for _, s := range windowSpans(runes, opts.Size, opts.Overlap) {
				passages = append(passages, models.Passage{
					Ordinal: len(passages),
					Page:    page.Number,
					Start:   s.start,
					End:     s.end,
					Text:    string(runes[s.start:s.end]),
				})
			}
		case config.ChunkStrategyRecursive:
			chunks, err := recursiveChunks(page.Text, opts.Size, opts.Overlap)
			if err != nil {
				return nil, apperr.E(apperr.KindParse, fmt.Sprintf("split page %d", page.Number), err)
			}
			for _, c := range chunks {
				c.Ordinal = len(passages)
				c.Page = page.Number
				passages = append(passages, c)
			}
		default:
			return nil, apperr.E(apperr.KindInvalid, "chunk", fmt.Errorf("unknown chunk strategy %q", opts.Strategy))
		}
	}
	return passages, nil
}

// windowSpans cuts text into windows of at most size runes. Each window
// after the first starts exactly overlap runes before the previous one
// ended, so dropping the first overlap runes of every later window and
// concatenating gives back text.
func windowSpans(text []rune, size, overlap int) []span {
	n := len(text)
	var spans []span
	start := 0
	for {
		end := start + size
		if end >= n {
			spans = append(spans, span{start, n})
			return spans
		}
		lo := max(start+overlap+1, end-size/breakLookback)
		end = naturalBreak(text, lo, end)
		spans = append(spans, span{start, end})
		start = end - overlap
	}
}

var breakPreference = []func(text []rune, p int) bool{
	// paragraph
	func(text []rune, p int) bool { return p >= 2 && text[p-1] == '\n' && text[p-2] == '\n' },
	// line
	func(text []rune, p int) bool { return text[p-1] == '\n' },
	// sentence
	func(text []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(text[p-1]) && strings.ContainsRune(".!?", text[p-2])
	},
	// word
	func(text []rune, p int) bool { return unicode.IsSpace(text[p-1]) },
}

// naturalBreak returns the cut position in [lo, hi] closest to hi that falls
// on the most preferred kind of break, or hi if there is none.
func naturalBreak(text []rune, lo, hi int) int {
	if lo < 1 {
		lo = 1
	}
	for _, isBreak := range breakPreference {
		for p := hi; p >= lo; p-- {
			if isBreak(text, p) {
				return p
			}
		}
	}
	return hi
}

func recursiveChunks(text string, size, overlap int) ([]models.Passage, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	passages := make([]models.Passage, 0, len(chunks))
	cursor := 0
	for _, chunk := range chunks {
		start, end := -1, -1
		if i := strings.Index(text[cursor:], chunk); i >= 0 {
			b := cursor + i
			start = utf8.RuneCountInString(text[:b])
			end = start + utf8.RuneCountInString(chunk)
			cursor = b + 1
		}
		passages = append(passages, models.Passage{Start: start, End: end, Text: chunk})
	}
	return passages, nil
}

package models

// Page is the text of one page (or sheet, or slide) of an uploaded document.
type Page struct {
	Number int
	Text   string
}

// Passage is a contiguous piece of one page's text used as the retrieval unit.
// Start and End are rune offsets into the page text, End exclusive.
type Passage struct {
	Ordinal int    `json:"ordinal"`
	Page    int    `json:"page"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
}

// Hit is a passage returned by a similarity query.
type Hit struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

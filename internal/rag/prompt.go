package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"rag-chatbot/internal/models"
)

var qaPrompt = prompts.NewPromptTemplate(models.QAPromptTemplate, []string{"context", "question"})

// RenderPrompt builds the completion prompt from the question and the
// retrieved passages. It has no side effects.
func RenderPrompt(question string, hits []models.Hit) (string, error) {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[page %d]\n%s", h.Passage.Page, strings.TrimSpace(h.Passage.Text))
	}

	return qaPrompt.Format(map[string]any{
		"context":  strings.Join(parts, models.ContextSeparator),
		"question": strings.TrimSpace(question),
	})
}

package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/config"
)

// Client sends single-turn chat completions to an OpenAI-compatible endpoint
// such as Groq.
type Client struct {
	client *openai.Client
	model  string
	hasKey bool
}

func NewClient(llmConfig *config.LLMConfig) *Client {
	key := strings.TrimPrefix(llmConfig.Key, "Bearer ")
	cfg := openai.DefaultConfig(key)
	if llmConfig.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(llmConfig.BaseURL, "/")
	}
	if llmConfig.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: llmConfig.Timeout}
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  llmConfig.Model,
		hasKey: key != "",
	}
}

// Complete sends prompt as one user message and returns the text of the
// first choice. It does not retry.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.hasKey {
		return "", apperr.E(apperr.KindAuth, "chat completion", errors.New("missing API key"))
	}

	log.Debug().Str("model", c.model).Int("prompt_len", len(prompt)).Msg("Generating content")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperr.E(apperr.KindNetwork, "chat completion", errors.New("malformed completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperr.E(apperr.KindAuth, "chat completion", err)
	}
	return apperr.E(apperr.KindNetwork, "chat completion", fmt.Errorf("status %d: %w", status, err))
}

package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/chromemdb"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/session"
)

// Completer is the chat model used to answer a rendered prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Orchestrator answers questions about a session's document: retrieve the
// top passages, render the prompt, ask the model.
type Orchestrator struct {
	indexes *IndexCache
	llm     Completer
	topK    int
}

func NewOrchestrator(indexes *IndexCache, llm Completer, topK int) *Orchestrator {
	return &Orchestrator{indexes: indexes, llm: llm, topK: topK}
}

// Ask runs one question turn. The user message is recorded before any work
// starts; the assistant message only on success. The session is Idle again
// when Ask returns.
func (o *Orchestrator) Ask(ctx context.Context, sess *session.Session, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.ErrEmptyQuestion
	}

	path, _, ok := sess.Document()
	if !ok {
		return nil, apperr.ErrNoDocument
	}

	if !sess.TryBegin() {
		return nil, apperr.ErrBusy
	}
	defer sess.End()

	sess.Append(models.Message{Role: models.RoleUser, Content: question})

	answer, err := o.answer(ctx, sess, path, question)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Str("kind", string(apperr.KindOf(err))).Msg("Question failed")
		return nil, err
	}

	sess.Append(models.Message{Role: models.RoleAssistant, Content: answer.Content})
	return answer, nil
}

func (o *Orchestrator) answer(ctx context.Context, sess *session.Session, path, question string) (*models.Answer, error) {
	ix, err := o.index(ctx, sess, path)
	if err != nil {
		return nil, err
	}

	hits, err := ix.Query(ctx, question, o.topK)
	if err != nil {
		return nil, err
	}

	prompt, err := RenderPrompt(question, hits)
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "render prompt", err)
	}

	content, err := o.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("session", sess.ID).Int("sources", len(hits)).Msg("Answered question")
	return &models.Answer{Question: question, Content: content, Sources: hits}, nil
}

func (o *Orchestrator) index(ctx context.Context, sess *session.Session, path string) (*chromemdb.Index, error) {
	if ix := sess.Index(); ix != nil {
		return ix, nil
	}
	ix, err := o.indexes.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	sess.SetIndex(ix)
	return ix, nil
}

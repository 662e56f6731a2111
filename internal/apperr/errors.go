// Package apperr classifies failures on the upload and question paths so the
// UI can turn them into a single user-visible message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind string

const (
	KindIO        Kind = "io"
	KindParse     Kind = "parse"
	KindEmbedding Kind = "embedding"
	KindIndex     Kind = "index"
	KindNetwork   Kind = "network"
	KindAuth      Kind = "auth"
	KindInvalid   Kind = "invalid"
	KindBusy      Kind = "busy"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.Auth)
// works no matter which operation produced the failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// E builds an *Error. A nil err yields a nil error.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Kind targets for errors.Is.
var (
	IO        = &Error{Kind: KindIO}
	Parse     = &Error{Kind: KindParse}
	Embedding = &Error{Kind: KindEmbedding}
	Index     = &Error{Kind: KindIndex}
	Network   = &Error{Kind: KindNetwork}
	Auth      = &Error{Kind: KindAuth}
	Invalid   = &Error{Kind: KindInvalid}
	Busy      = &Error{Kind: KindBusy}
)

var (
	ErrNoDocument     = &Error{Kind: KindIndex, Op: "no document has been uploaded for this session"}
	ErrEmptyIndex     = &Error{Kind: KindIndex, Op: "document produced no passages to index"}
	ErrBusy           = &Error{Kind: KindBusy, Op: "a question is already being answered"}
	ErrDocumentLoaded = &Error{Kind: KindInvalid, Op: "a document is already loaded for this session"}
	ErrEmptyQuestion  = &Error{Kind: KindInvalid, Op: "question cannot be empty"}
)

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

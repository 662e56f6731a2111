// Package session keeps the per-visitor state of the chat UI: the uploaded
// document, the transcript and the cached index reference.
package session

import (
	"sync"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/chromemdb"
	"rag-chatbot/internal/helper"
	"rag-chatbot/internal/models"
)

type State int

const (
	Idle State = iota
	Answering
)

func (s State) String() string {
	if s == Answering {
		return "answering"
	}
	return "idle"
}

type Session struct {
	ID string

	mu       sync.Mutex
	docPath  string
	docName  string
	messages []models.Message
	index    *chromemdb.Index
	state    State
	flash    string
}

func newSession(id string) *Session {
	return &Session{ID: id}
}

// Document returns the stored path and display name of the uploaded file.
func (s *Session) Document() (path, name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docPath, s.docName, s.docPath != ""
}

// SetDocument records the uploaded file. A session holds one document for
// its whole life.
func (s *Session) SetDocument(path, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docPath != "" {
		return apperr.ErrDocumentLoaded
	}
	s.docPath = path
	s.docName = name
	s.index = nil
	return nil
}

func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Session) Index() *chromemdb.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) SetIndex(ix *chromemdb.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TryBegin moves the session from Idle to Answering. It reports false if a
// question is already in flight.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Answering {
		return false
	}
	s.state = Answering
	return true
}

// End returns the session to Idle.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
}

// SetFlash stores a notice shown once on the next page render.
func (s *Session) SetFlash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = msg
}

// TakeFlash returns and clears the pending notice.
func (s *Session) TakeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// Store is an in-memory set of sessions keyed by ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, or a new session with a fresh ID
// when id is unknown. created reports whether a new session was made.
func (st *Store) GetOrCreate(id string) (s *Session, created bool, err error) {
	if s, ok := st.Get(id); ok {
		return s, false, nil
	}

	newID, err := helper.GenerateUUID()
	if err != nil {
		return nil, false, err
	}
	s = newSession(newID)

	st.mu.Lock()
	st.sessions[newID] = s
	st.mu.Unlock()
	return s, true, nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/hlog"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/parser"
	"rag-chatbot/internal/session"
)

type ctxKey struct{}

// withSession attaches the caller's session, creating one and setting the
// cookie on first visit.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
		sess, created, err := s.sessions.GetOrCreate(id)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Error creating session")
			http.Error(w, "could not create session", http.StatusInternalServerError)
			return
		}
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type pageMessage struct {
	Role models.Role
	HTML template.HTML
}

type pageData struct {
	Document     string
	Flash        string
	FlashIsError bool
	Messages     []pageMessage
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	_, name, _ := sess.Document()

	data := pageData{Document: name, Flash: sess.TakeFlash()}
	data.FlashIsError = strings.HasPrefix(data.Flash, models.UserErrorPrefix)
	for _, m := range sess.Messages() {
		data.Messages = append(data.Messages, pageMessage{Role: m.Role, HTML: s.renderMarkdown(m.Content)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error rendering page")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	name, err := s.saveUpload(w, r, sess)
	if err != nil {
		sess.SetFlash(models.UserErrorPrefix + err.Error())
	} else {
		sess.SetFlash(fmt.Sprintf("📄 %s uploaded successfully!✅", name))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if _, _, ok := sess.Document(); !ok {
		// the chat input is hidden until a document is loaded
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	prompt := r.FormValue("prompt")
	if _, err := s.orch.Ask(r.Context(), sess, prompt); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("kind", string(apperr.KindOf(err))).Msg("Question failed")
		sess.SetFlash(models.UserErrorPrefix + err.Error())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	Document  string           `json:"document,omitempty"`
	State     string           `json:"state"`
	Messages  []models.Message `json:"messages"`
}

func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	_, name, _ := sess.Document()
	writeJSON(w, r, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Document:  name,
		State:     sess.State().String(),
		Messages:  sess.Messages(),
	})
}

func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	name, err := s.saveUpload(w, r, sessionFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]string{"document": name})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.E(apperr.KindInvalid, "decode request", err))
		return
	}

	answer, err := s.orch.Ask(r.Context(), sessionFrom(r), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, answer)
}

// saveUpload stores the multipart "file" field under the upload directory
// and attaches it to the session. It returns the stored base name.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) (string, error) {
	if _, _, ok := sess.Document(); ok {
		return "", apperr.ErrDocumentLoaded
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", apperr.E(apperr.KindInvalid, "read upload", fmt.Errorf("file exceeds %d MB", s.cfg.MaxUploadMB))
		}
		return "", apperr.E(apperr.KindInvalid, "read upload", err)
	}
	defer file.Close()

	name := cleanFilename(header.Filename)
	if name == "" {
		return "", apperr.E(apperr.KindInvalid, "read upload", errors.New("missing file name"))
	}
	if !parser.Supported(name) {
		return "", apperr.E(apperr.KindInvalid, "read upload", fmt.Errorf("unsupported file type %q", filepath.Ext(name)))
	}

	dst := filepath.Join(s.cfg.UploadDir, name)
	if err := writeFile(dst, file); err != nil {
		return "", err
	}
	s.indexes.Forget(dst)

	if err := sess.SetDocument(dst, name); err != nil {
		return "", err
	}
	hlog.FromRequest(r).Info().Str("session", sess.ID).Str("file", dst).Int64("size", header.Size).Msg("Document uploaded")
	return name, nil
}

// cleanFilename drops any directory part of a client supplied name.
func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func writeFile(dst string, src multipart.File) error {
	f, err := os.Create(dst)
	if err != nil {
		return apperr.E(apperr.KindIO, "save upload", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return apperr.E(apperr.KindIO, "save upload", err)
	}
	return apperr.E(apperr.KindIO, "save upload", f.Close())
}

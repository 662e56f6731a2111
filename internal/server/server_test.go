package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/config"
	"rag-chatbot/internal/embedding"
	"rag-chatbot/internal/llmservice"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/parser"
	"rag-chatbot/internal/parser/parsertest"
	"rag-chatbot/internal/rag"
	"rag-chatbot/internal/session"
)

// fakeGroq answers every chat completion with reply and records prompts.
type fakeGroq struct {
	mu      sync.Mutex
	prompts []string
	reply   string
}

func (f *fakeGroq) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	for _, m := range req.Messages {
		f.prompts = append(f.prompts, m.Content)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": f.reply},
			"finish_reason": "stop",
		}},
	})
}

type harness struct {
	server  *httptest.Server
	client  *http.Client
	indexes *rag.IndexCache
	groq    *fakeGroq
	dir     string
}

func newHarness(t *testing.T, apiKey string) *harness {
	t.Helper()
	groq := &fakeGroq{reply: "The sky is **blue**."}
	groqSrv := httptest.NewServer(groq)
	t.Cleanup(groqSrv.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.UploadDir = dir
	cfg.ChatLLM.BaseURL = groqSrv.URL
	cfg.ChatLLM.Key = apiKey

	indexes := rag.NewIndexCache(rag.NewBuilder(embedding.NewHashEmbedder(0), parser.DefaultChunkOptions()))
	orch := rag.NewOrchestrator(indexes, llmservice.NewClient(&cfg.ChatLLM), cfg.RAG.TopK)
	srv, err := New(&cfg.Server, session.NewStore(), orch, indexes)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{server: ts, client: &http.Client{Jar: jar}, indexes: indexes, groq: groq, dir: dir}
}

func (h *harness) upload(t *testing.T, path, name string) *http.Response {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := h.client.Post(h.server.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (h *harness) ask(t *testing.T, prompt string) *http.Response {
	t.Helper()
	resp, err := h.client.PostForm(h.server.URL+"/ask", map[string][]string{"prompt": {prompt}})
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func colorsPDF(t *testing.T) string {
	return parsertest.WritePDF(t, t.TempDir(), "colors.pdf", []string{
		"The sky is blue.",
		"Grass is green.",
		"Roses are red.",
	})
}

func TestChatAboutUploadedPDF(t *testing.T) {
	h := newHarness(t, "test-key")

	resp, err := h.client.Get(h.server.URL + "/")
	require.NoError(t, err)
	page := readBody(t, resp)
	assert.Contains(t, page, "Simple RAG Chatbot")
	assert.NotContains(t, page, `name="prompt"`)

	page = readBody(t, h.upload(t, colorsPDF(t), "colors.pdf"))
	assert.Contains(t, page, "📄 colors.pdf uploaded successfully!✅")
	assert.Contains(t, page, `name="prompt"`)
	assert.FileExists(t, filepath.Join(h.dir, "colors.pdf"))

	page = readBody(t, h.ask(t, "What color is the sky?"))
	assert.Contains(t, page, "What color is the sky?")
	assert.Contains(t, page, "The sky is <strong>blue</strong>.")
	assert.NotContains(t, page, models.UserErrorPrefix)

	require.Len(t, h.groq.prompts, 1)
	assert.Contains(t, h.groq.prompts[0], "The sky is blue.")
	assert.EqualValues(t, 1, h.indexes.Builds())

	// the flash is shown once
	resp, err = h.client.Get(h.server.URL + "/")
	require.NoError(t, err)
	assert.NotContains(t, readBody(t, resp), "uploaded successfully")
}

func TestAskWithoutDocumentKeepsUploadState(t *testing.T) {
	h := newHarness(t, "test-key")

	page := readBody(t, h.ask(t, "hello?"))
	assert.Contains(t, page, `action="/upload"`)
	assert.NotContains(t, page, `name="prompt"`)
	assert.NotContains(t, page, "hello?")
	assert.Zero(t, h.indexes.Builds())
	assert.Empty(t, h.groq.prompts)
}

func TestAskWithoutAPIKey(t *testing.T) {
	h := newHarness(t, "")
	readBody(t, h.upload(t, colorsPDF(t), "colors.pdf"))

	page := readBody(t, h.ask(t, "What color is the sky?"))
	assert.Contains(t, page, models.UserErrorPrefix)
	assert.Contains(t, page, "missing API key")
	assert.Contains(t, page, "What color is the sky?")
	assert.NotContains(t, page, "<strong>blue</strong>")
	assert.Empty(t, h.groq.prompts)
}

func TestUploadRejectsSecondDocument(t *testing.T) {
	h := newHarness(t, "test-key")
	readBody(t, h.upload(t, colorsPDF(t), "colors.pdf"))

	page := readBody(t, h.upload(t, colorsPDF(t), "other.pdf"))
	assert.Contains(t, page, "a document is already loaded")
	assert.NoFileExists(t, filepath.Join(h.dir, "other.pdf"))
}

func TestUploadStripsPathComponents(t *testing.T) {
	h := newHarness(t, "test-key")

	page := readBody(t, h.upload(t, colorsPDF(t), "../../etc/colors.pdf"))
	assert.Contains(t, page, "📄 colors.pdf uploaded successfully!✅")
	assert.FileExists(t, filepath.Join(h.dir, "colors.pdf"))
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	h := newHarness(t, "test-key")
	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	page := readBody(t, h.upload(t, path, "pic.png"))
	assert.Contains(t, page, "unsupported file type")
	assert.Contains(t, page, `action="/upload"`)
}

func TestAPIAsk(t *testing.T) {
	h := newHarness(t, "test-key")

	resp, err := h.client.Post(h.server.URL+"/api/ask", "application/json", strings.NewReader(`{"question":"What color is the sky?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	resp.Body.Close()
	assert.Equal(t, "index", errResp.Kind)

	readBody(t, h.upload(t, colorsPDF(t), "colors.pdf"))

	resp, err = h.client.Post(h.server.URL+"/api/ask", "application/json", strings.NewReader(`{"question":"What color is the sky?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer models.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	resp.Body.Close()
	assert.Equal(t, "The sky is **blue**.", answer.Content)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, 1, answer.Sources[0].Passage.Page)

	resp, err = h.client.Get(h.server.URL + "/api/session")
	require.NoError(t, err)
	var sess sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	assert.Equal(t, "colors.pdf", sess.Document)
	assert.Equal(t, "idle", sess.State)
	assert.Len(t, sess.Messages, 2)
}

func TestAPIAskBadJSON(t *testing.T) {
	h := newHarness(t, "test-key")
	resp, err := h.client.Post(h.server.URL+"/api/ask", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, "")
	resp, err := h.client.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrEmptyQuestion, http.StatusBadRequest},
		{apperr.ErrDocumentLoaded, http.StatusConflict},
		{apperr.ErrNoDocument, http.StatusConflict},
		{apperr.ErrBusy, http.StatusConflict},
		{apperr.E(apperr.KindAuth, "chat completion", errors.New("missing API key")), http.StatusUnauthorized},
		{apperr.E(apperr.KindNetwork, "chat completion", errors.New("reset")), http.StatusBadGateway},
		{apperr.E(apperr.KindParse, "decode pdf", errors.New("bad")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "a.pdf", cleanFilename("a.pdf"))
	assert.Equal(t, "a.pdf", cleanFilename("/tmp/x/a.pdf"))
	assert.Equal(t, "a.pdf", cleanFilename(`C:\Users\me\a.pdf`))
	assert.Equal(t, "", cleanFilename(".."))
	assert.Equal(t, "", cleanFilename(""))
}

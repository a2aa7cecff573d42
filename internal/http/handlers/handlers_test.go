package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/domain"
)

type fakeThreads struct {
	threads  map[string]*domain.Thread
	messages map[string][]domain.ThreadMessage
	err      error
}

func (f *fakeThreads) FindByID(_ context.Context, id string) (*domain.Thread, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.threads[id], nil
}

func (f *fakeThreads) Messages(_ context.Context, t *domain.Thread) ([]domain.ThreadMessage, error) {
	return f.messages[t.ID], nil
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/logs/:threadID", h.Transcript)
	r.GET("/attachments/:id/:filename", h.Attachment)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er.Code
}

func TestHealth(t *testing.T) {
	w := get(newRouter(New(&fakeThreads{}, nil)), "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestTranscript(t *testing.T) {
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	ft := &fakeThreads{
		threads: map[string]*domain.Thread{
			"t-1": {ID: "t-1", ThreadNumber: 12, Status: domain.ThreadStatusClosed, UserID: "100001", UserName: "alice", CreatedAt: start},
		},
		messages: map[string][]domain.ThreadMessage{
			"t-1": {{MessageType: domain.MessageTypeChat, UserName: "mod", Body: "looking", CreatedAt: start}},
		},
	}
	r := newRouter(New(ft, nil))

	w := get(r, "/logs/t-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "# Modmail thread #12 with alice (100001)") || !strings.Contains(body, "[CHAT] mod: looking") {
		t.Fatalf("transcript = %q", body)
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Fatalf("inline view must not force a download")
	}

	w = get(r, "/logs/t-1?download=1")
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="modmail-12.txt"` {
		t.Fatalf("disposition = %q", got)
	}

	w = get(r, "/logs/nope")
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing thread = %d %s", w.Code, w.Body.String())
	}

	ft.err = errors.New("db down")
	w = get(r, "/logs/t-1")
	if w.Code != http.StatusInternalServerError || errorCode(t, w) != ErrCodeTranscriptFailed {
		t.Fatalf("store failure = %d %s", w.Code, w.Body.String())
	}
}

func TestAttachment(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a1", "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	local := attachments.NewLocal(dir, "http://mail.test", nil)
	r := newRouter(New(&fakeThreads{}, local))

	w := get(r, "/attachments/a1/note.txt")
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("file = %d %q", w.Code, w.Body.String())
	}

	w = get(r, "/attachments/a1/other.txt")
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing file = %d %s", w.Code, w.Body.String())
	}

	w = get(r, "/attachments/a1/..")
	if w.Code == http.StatusOK {
		t.Fatalf("dot-dot filename served")
	}

	w = get(r, "/attachments/x/note.txt")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id = %d", w.Code)
	}
}

func TestAttachment_InvalidNameAndNoLocalBackend(t *testing.T) {
	local := attachments.NewLocal(t.TempDir(), "http://mail.test", nil)
	h := New(&fakeThreads{}, local)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/attachments/a1/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}, {Key: "filename", Value: ".."}}
	h.Attachment(c)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("invalid name = %d %s", w.Code, w.Body.String())
	}

	w = get(newRouter(New(&fakeThreads{}, nil)), "/attachments/a1/note.txt")
	if w.Code != http.StatusNotFound {
		t.Fatalf("without local backend = %d", w.Code)
	}
}

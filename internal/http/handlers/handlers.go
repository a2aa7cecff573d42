package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/logs"
)

// ThreadReader is the part of the thread service the transcript route needs.
type ThreadReader interface {
	// FindByID returns (nil, nil) for an unknown id.
	FindByID(ctx context.Context, id string) (*domain.Thread, error)
	Messages(ctx context.Context, t *domain.Thread) ([]domain.ThreadMessage, error)
}

// FileResolver maps an attachment id and filename to a file on disk.
type FileResolver interface {
	Path(id, filename string) (string, error)
}

// Handlers groups the HTTP endpoints. files is nil unless attachments are
// stored on local disk.
type Handlers struct {
	threads ThreadReader
	files   FileResolver
}

// New binds the handlers to their dependencies.
func New(threads ThreadReader, files FileResolver) *Handlers {
	return &Handlers{threads: threads, files: files}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// Transcript renders the plaintext log of a thread.
//
// GET /logs/:threadID[?download=1]
func (h *Handlers) Transcript(c *gin.Context) {
	ctx := c.Request.Context()
	t, err := h.threads.FindByID(ctx, c.Param("threadID"))
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeTranscriptFailed, "could not load thread")
		return
	}
	if t == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
		return
	}
	msgs, err := h.threads.Messages(ctx, t)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeTranscriptFailed, "could not load messages")
		return
	}

	if c.Query("download") != "" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="modmail-%d.txt"`, t.ThreadNumber))
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(logs.Format(t, msgs)))
}

// Attachment serves a file saved by the local attachment backend.
//
// GET /attachments/:id/:filename
func (h *Handlers) Attachment(c *gin.Context) {
	if h.files == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "attachment not found")
		return
	}
	path, err := h.files.Path(c.Param("id"), c.Param("filename"))
	if errors.Is(err, attachments.ErrInvalidName) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid attachment name")
		return
	}
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeAttachmentFailed, "could not resolve attachment")
		return
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && info.IsDir():
		fail(c, http.StatusNotFound, ErrCodeNotFound, "attachment not found")
		return
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeAttachmentFailed, "could not read attachment")
		return
	}
	c.File(path)
}

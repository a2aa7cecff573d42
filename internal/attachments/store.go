// Package attachments persists message attachments behind a pluggable
// backend and resolves the URL that goes into thread logs.
//
// Store.Save never returns an error: a failure becomes a Result carrying
// the reason, so one bad attachment cannot abort the relay of its message.
// Concurrent saves of the same attachment id share one backend call.
package attachments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
)

// FailedText is the marker logged and relayed in place of an attachment
// link when saving failed.
const FailedText = "Attachment could not be saved"

// memoTTL is how long a successful save is reused without a backend call.
const memoTTL = 10 * time.Minute

// memoPruneAt is the memo size at which expired entries are swept.
const memoPruneAt = 1024

// Backend persists one attachment and returns the URL it can be read from.
type Backend interface {
	Name() string
	Save(ctx context.Context, att platform.Attachment) (string, error)
}

// Result is the outcome of Store.Save.
type Result struct {
	URL    string
	Failed bool
	Reason string
}

// Text returns the line to log for att: its URL, or the failure marker.
func (r Result) Text(att platform.Attachment) string {
	if r.Failed {
		return fmt.Sprintf("[%s: %s]", FailedText, att.Filename)
	}
	return r.URL
}

type memoEntry struct {
	res     Result
	expires time.Time
}

// Store de-duplicates saves and forwards them to a Backend.
type Store struct {
	backend Backend
	fetcher *Fetcher

	group singleflight.Group

	mu   sync.Mutex
	memo map[string]memoEntry
	now  func() time.Time
}

// NewStore returns a Store over backend. fetcher downloads files for
// forwarding; nil uses NewFetcher defaults.
func NewStore(backend Backend, fetcher *Fetcher) *Store {
	if fetcher == nil {
		fetcher = NewFetcher(nil, DefaultAttempts)
	}
	return &Store{
		backend: backend,
		fetcher: fetcher,
		memo:    make(map[string]memoEntry),
		now:     time.Now,
	}
}

// Backend returns the configured backend's name.
func (s *Store) Backend() string { return s.backend.Name() }

// Save persists att once per attachment id.
func (s *Store) Save(ctx context.Context, att platform.Attachment) Result {
	if r, ok := s.lookup(att.ID); ok {
		return r
	}

	v, _, _ := s.group.Do(att.ID, func() (any, error) {
		// A caller that lost the race to a just-finished flight lands here.
		if r, ok := s.lookup(att.ID); ok {
			return r, nil
		}

		ctx, span := otel.Tracer("attachments").Start(ctx, "Store.Save")
		defer span.End()
		span.SetAttributes(
			attribute.String("attachment.id", att.ID),
			attribute.String("attachment.backend", s.backend.Name()),
		)

		url, err := s.backend.Save(ctx, att)
		if err != nil {
			span.RecordError(err)
			observability.AttachmentsSaved.WithLabelValues(s.backend.Name(), "failed").Inc()
			log.Warn().Err(err).
				Str("attachment_id", att.ID).
				Str("backend", s.backend.Name()).
				Msg("attachment save failed")
			return Result{Failed: true, Reason: err.Error()}, nil
		}

		observability.AttachmentsSaved.WithLabelValues(s.backend.Name(), "ok").Inc()
		r := Result{URL: url}
		s.mu.Lock()
		now := s.now()
		if len(s.memo) >= memoPruneAt {
			for id, e := range s.memo {
				if now.After(e.expires) {
					delete(s.memo, id)
				}
			}
		}
		s.memo[att.ID] = memoEntry{res: r, expires: now.Add(memoTTL)}
		s.mu.Unlock()
		return r, nil
	})
	return v.(Result)
}

// File downloads att for forwarding as a native file.
func (s *Store) File(ctx context.Context, att platform.Attachment) (platform.File, error) {
	data, err := s.fetcher.Bytes(ctx, att.URL)
	if err != nil {
		return platform.File{}, fmt.Errorf("fetch attachment %s: %w", att.ID, err)
	}
	return platform.File{Name: att.Filename, ContentType: att.ContentType, Data: data}, nil
}

func (s *Store) lookup(id string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.memo[id]
	if !ok {
		return Result{}, false
	}
	if s.now().After(e.expires) {
		delete(s.memo, id)
		return Result{}, false
	}
	return e.res, true
}

package attachments

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tbourn/go-modmail/internal/platform"
)

// ErrInvalidName is returned for ids or filenames that would escape the
// storage directory.
var ErrInvalidName = errors.New("invalid attachment name")

// Local stores attachments under Dir/<id>/<filename> and serves them from
// BaseURL/attachments/<id>/<filename> (see the HTTP server).
type Local struct {
	dir     string
	baseURL string
	fetcher *Fetcher
}

// NewLocal returns a local-disk backend.
func NewLocal(dir, baseURL string, fetcher *Fetcher) *Local {
	if fetcher == nil {
		fetcher = NewFetcher(nil, DefaultAttempts)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Save(ctx context.Context, att platform.Attachment) (string, error) {
	name := SafeFilename(att.Filename)
	path, err := l.Path(att.ID, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if err := l.fetcher.ToFile(ctx, att.URL, path); err != nil {
			return "", err
		}
	}
	return l.baseURL + "/attachments/" + url.PathEscape(att.ID) + "/" + url.PathEscape(name), nil
}

// Path resolves the on-disk location of a stored attachment, rejecting
// names that are not a single path element.
func (l *Local) Path(id, filename string) (string, error) {
	for _, part := range []string{id, filename} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", ErrInvalidName
		}
	}
	return filepath.Join(l.dir, id, filename), nil
}

// SafeFilename keeps a filename to one path element of printable ASCII.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}

package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tbourn/go-modmail/internal/platform"
)

// GCS uploads attachments to a Cloud Storage bucket under
// attachments/<id>/<filename>.
type GCS struct {
	client     *storage.Client
	bucket     string
	publicBase string
	fetcher    *Fetcher
}

// NewGCSClient creates a storage client, using credentialsFile when set and
// application default credentials otherwise.
func NewGCSClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	return storage.NewClient(ctx, opts...)
}

// NewGCS returns a bucket backend. publicBase overrides the default
// https://storage.googleapis.com/<bucket> prefix (e.g. a CDN domain).
func NewGCS(client *storage.Client, bucket, publicBase string, fetcher *Fetcher) *GCS {
	if fetcher == nil {
		fetcher = NewFetcher(nil, DefaultAttempts)
	}
	return &GCS{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(strings.TrimSpace(publicBase), "/"),
		fetcher:    fetcher,
	}
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) Save(ctx context.Context, att platform.Attachment) (string, error) {
	data, err := g.fetcher.Bytes(ctx, att.URL)
	if err != nil {
		return "", err
	}

	key := ObjectKey(att)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if att.ContentType != "" {
		w.ContentType = att.ContentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer: %w", err)
	}
	return PublicURL(g.publicBase, g.bucket, key), nil
}

// ObjectKey is the bucket key for an attachment.
func ObjectKey(att platform.Attachment) string {
	return "attachments/" + SafeFilename(att.ID) + "/" + SafeFilename(att.Filename)
}

// PublicURL joins a public base (or the default GCS host) with the key.
func PublicURL(publicBase, bucket, key string) string {
	key = strings.TrimLeft(key, "/")
	if publicBase != "" {
		return publicBase + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}

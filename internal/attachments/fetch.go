package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultAttempts bounds downloads and uploads of a single attachment.
const DefaultAttempts = 3

// Fetcher downloads attachment bytes from the platform CDN with bounded
// retries. 4xx responses other than 429 are not retried.
type Fetcher struct {
	client   *http.Client
	attempts uint
	interval time.Duration
}

// NewFetcher returns a Fetcher. A nil client gets a traced default with a
// one-minute timeout; attempts < 1 means DefaultAttempts.
func NewFetcher(client *http.Client, attempts int) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout:   time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	return &Fetcher{client: client, attempts: uint(attempts), interval: 500 * time.Millisecond}
}

// WithInterval sets the initial retry interval.
func (f *Fetcher) WithInterval(d time.Duration) *Fetcher {
	f.interval = d
	return f
}

func (f *Fetcher) retryOpts() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.interval
	b.MaxInterval = 10 * f.interval
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.attempts),
	}
}

// Bytes downloads url into memory.
func (f *Fetcher) Bytes(ctx context.Context, url string) ([]byte, error) {
	return backoff.Retry(ctx, func() ([]byte, error) {
		body, err := f.get(ctx, url)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return io.ReadAll(body)
	}, f.retryOpts()...)
}

// ToFile downloads url to path. Each attempt rewrites a sibling ".part"
// file from scratch, which is renamed into place only once complete.
func (f *Fetcher) ToFile(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	part := path + ".part"
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		body, err := f.get(ctx, url)
		if err != nil {
			return struct{}{}, err
		}
		defer body.Close()

		out, err := os.Create(part)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if _, err := io.Copy(out, body); err != nil {
			_ = out.Close()
			return struct{}{}, err
		}
		return struct{}{}, out.Close()
	}, f.retryOpts()...)
	if err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, path)
}

var errStatus = errors.New("unexpected status")

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	err = fmt.Errorf("download %s: %w %d", url, errStatus, resp.StatusCode)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return nil, backoff.Permanent(err)
	}
	return nil, err
}

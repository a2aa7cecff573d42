package attachments

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-modmail/internal/platform"
)

// DefaultMaxUploadBytes is the largest file the platform accepts from a bot
// without boosts.
const DefaultMaxUploadBytes = 8 * 1024 * 1024

// ErrTooLarge is returned for attachments over the upload cap.
var ErrTooLarge = errors.New("attachment too large")

// Channel re-uploads attachments to a storage channel and links the copy,
// which outlives the original message. Uploads are paced by a limiter.
type Channel struct {
	client    platform.Client
	channelID string
	maxBytes  int64
	fetcher   *Fetcher
	limiter   *rate.Limiter
}

// NewChannel returns a storage-channel backend.
func NewChannel(client platform.Client, channelID string, maxBytes int64, fetcher *Fetcher) *Channel {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if fetcher == nil {
		fetcher = NewFetcher(nil, DefaultAttempts)
	}
	return &Channel{
		client:    client,
		channelID: channelID,
		maxBytes:  maxBytes,
		fetcher:   fetcher,
		limiter:   rate.NewLimiter(rate.Limit(2), 5),
	}
}

func (c *Channel) Name() string { return "discord" }

func (c *Channel) Save(ctx context.Context, att platform.Attachment) (string, error) {
	if att.Size > c.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, att.Size)
	}
	data, err := c.fetcher.Bytes(ctx, att.URL)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > c.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	file := platform.File{Name: SafeFilename(att.Filename), ContentType: att.ContentType, Data: data}
	return backoff.Retry(ctx, func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		sent, err := c.client.SendMessage(ctx, c.channelID, platform.OutgoingMessage{
			Content: "Attachment " + att.ID,
			Files:   []platform.File{file},
		})
		if err != nil {
			if errors.Is(err, platform.ErrUnknownChannel) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if len(sent.Attachments) == 0 {
			return "", errors.New("upload returned no attachment")
		}
		return sent.Attachments[0].URL, nil
	}, c.fetcher.retryOpts()...)
}

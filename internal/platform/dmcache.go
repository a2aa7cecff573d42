package platform

import (
	"context"
	"errors"
	"sync"
)

// DMCache memoizes user id -> DM channel id. Entries are hints only: a
// miss asks the client, and a send that fails with ErrUnknownChannel drops
// the entry and retries once on a freshly resolved channel.
type DMCache struct {
	client Client

	mu sync.RWMutex
	m  map[string]string
}

// NewDMCache wraps client.
func NewDMCache(client Client) *DMCache {
	return &DMCache{client: client, m: make(map[string]string)}
}

// Channel returns the DM channel for userID.
func (c *DMCache) Channel(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	ch, ok := c.m[userID]
	c.mu.RUnlock()
	if ok {
		return ch, nil
	}

	ch, err := c.client.DMChannel(ctx, userID)
	if err != nil {
		return "", err
	}
	c.Remember(userID, ch)
	return ch, nil
}

// Remember records a DM channel observed elsewhere (e.g. on an inbound DM).
func (c *DMCache) Remember(userID, channelID string) {
	if userID == "" || channelID == "" {
		return
	}
	c.mu.Lock()
	c.m[userID] = channelID
	c.mu.Unlock()
}

// Forget drops the entry for userID.
func (c *DMCache) Forget(userID string) {
	c.mu.Lock()
	delete(c.m, userID)
	c.mu.Unlock()
}

// Send delivers msg to userID's DM channel.
func (c *DMCache) Send(ctx context.Context, userID string, msg OutgoingMessage) (*Message, error) {
	ch, err := c.Channel(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, err := c.client.SendMessage(ctx, ch, msg)
	if !errors.Is(err, ErrUnknownChannel) {
		return sent, err
	}

	c.Forget(userID)
	ch, err = c.Channel(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.client.SendMessage(ctx, ch, msg)
}

// Package hooks is the typed extension-point registry. Each hook kind has a
// fixed input and output; hooks of a kind run in registration order and
// are awaited one after another.
//
// Before-hooks can cancel the operation they guard; the first cancel stops
// the chain. A hook error stops the chain and is returned to the caller.
// A nil *Registry has no hooks.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/platform"
)

// NewThreadInput describes a thread about to be created.
type NewThreadInput struct {
	User platform.User
	// Source is "dm" for inbound messages and "command" for staff-created threads.
	Source string
	// Message is the inbound DM that triggered creation, nil otherwise.
	Message *platform.Message
	// CategoryID is the category the channel will be created in.
	CategoryID string
}

// NewThreadResult is what a BeforeNewThread hook decides.
type NewThreadResult struct {
	Cancel bool
	// CategoryID, when set, overrides the destination category.
	CategoryID string
}

// MessageInput describes an inbound user message about to be relayed.
type MessageInput struct {
	Thread  *domain.Thread
	Message *platform.Message
}

// Hook signatures.
type (
	BeforeNewThreadFunc          func(ctx context.Context, in NewThreadInput) (NewThreadResult, error)
	AfterNewThreadFunc           func(ctx context.Context, t *domain.Thread) error
	BeforeNewMessageReceivedFunc func(ctx context.Context, in MessageInput) (cancel bool, err error)
	AfterNewMessageReceivedFunc  func(ctx context.Context, in MessageInput) error
	AfterThreadCloseFunc         func(ctx context.Context, t *domain.Thread) error
)

// Registry holds registered hooks. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	beforeNewThread          []BeforeNewThreadFunc
	afterNewThread           []AfterNewThreadFunc
	beforeNewMessageReceived []BeforeNewMessageReceivedFunc
	afterNewMessageReceived  []AfterNewMessageReceivedFunc
	afterThreadClose         []AfterThreadCloseFunc
}

// New returns an empty registry.
func New() *Registry { return &Registry{} }

func (r *Registry) OnBeforeNewThread(fn BeforeNewThreadFunc) {
	r.mu.Lock()
	r.beforeNewThread = append(r.beforeNewThread, fn)
	r.mu.Unlock()
}

func (r *Registry) OnAfterNewThread(fn AfterNewThreadFunc) {
	r.mu.Lock()
	r.afterNewThread = append(r.afterNewThread, fn)
	r.mu.Unlock()
}

func (r *Registry) OnBeforeNewMessageReceived(fn BeforeNewMessageReceivedFunc) {
	r.mu.Lock()
	r.beforeNewMessageReceived = append(r.beforeNewMessageReceived, fn)
	r.mu.Unlock()
}

func (r *Registry) OnAfterNewMessageReceived(fn AfterNewMessageReceivedFunc) {
	r.mu.Lock()
	r.afterNewMessageReceived = append(r.afterNewMessageReceived, fn)
	r.mu.Unlock()
}

func (r *Registry) OnAfterThreadClose(fn AfterThreadCloseFunc) {
	r.mu.Lock()
	r.afterThreadClose = append(r.afterThreadClose, fn)
	r.mu.Unlock()
}

// BeforeNewThread runs the before-new-thread chain. The returned CategoryID
// is in.CategoryID as overridden by the hooks, later hooks winning; each
// hook sees the category chosen so far.
func (r *Registry) BeforeNewThread(ctx context.Context, in NewThreadInput) (NewThreadResult, error) {
	out := NewThreadResult{CategoryID: in.CategoryID}
	if r == nil {
		return out, nil
	}
	r.mu.RLock()
	fns := append([]BeforeNewThreadFunc(nil), r.beforeNewThread...)
	r.mu.RUnlock()

	for i, fn := range fns {
		in.CategoryID = out.CategoryID
		res, err := fn(ctx, in)
		if err != nil {
			return out, fmt.Errorf("beforeNewThread hook %d: %w", i, err)
		}
		if res.CategoryID != "" {
			out.CategoryID = res.CategoryID
		}
		if res.Cancel {
			out.Cancel = true
			return out, nil
		}
	}
	return out, nil
}

// AfterNewThread runs the after-new-thread chain.
func (r *Registry) AfterNewThread(ctx context.Context, t *domain.Thread) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fns := append([]AfterNewThreadFunc(nil), r.afterNewThread...)
	r.mu.RUnlock()

	for i, fn := range fns {
		if err := fn(ctx, t); err != nil {
			return fmt.Errorf("afterNewThread hook %d: %w", i, err)
		}
	}
	return nil
}

// BeforeNewMessageReceived reports whether any hook cancelled the relay.
func (r *Registry) BeforeNewMessageReceived(ctx context.Context, in MessageInput) (bool, error) {
	if r == nil {
		return false, nil
	}
	r.mu.RLock()
	fns := append([]BeforeNewMessageReceivedFunc(nil), r.beforeNewMessageReceived...)
	r.mu.RUnlock()

	for i, fn := range fns {
		cancel, err := fn(ctx, in)
		if err != nil {
			return false, fmt.Errorf("beforeNewMessageReceived hook %d: %w", i, err)
		}
		if cancel {
			return true, nil
		}
	}
	return false, nil
}

// AfterNewMessageReceived runs the after-message chain.
func (r *Registry) AfterNewMessageReceived(ctx context.Context, in MessageInput) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fns := append([]AfterNewMessageReceivedFunc(nil), r.afterNewMessageReceived...)
	r.mu.RUnlock()

	for i, fn := range fns {
		if err := fn(ctx, in); err != nil {
			return fmt.Errorf("afterNewMessageReceived hook %d: %w", i, err)
		}
	}
	return nil
}

// AfterThreadClose runs the after-close chain.
func (r *Registry) AfterThreadClose(ctx context.Context, t *domain.Thread) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fns := append([]AfterThreadCloseFunc(nil), r.afterThreadClose...)
	r.mu.RUnlock()

	for i, fn := range fns {
		if err := fn(ctx, t); err != nil {
			return fmt.Errorf("afterThreadClose hook %d: %w", i, err)
		}
	}
	return nil
}

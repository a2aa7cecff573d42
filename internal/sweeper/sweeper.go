// Package sweeper applies time-based actions: scheduled closes, scheduled
// suspends and expiring blocks. A Sweeper polls on a fixed interval; one
// failed pass is logged and the next tick tries again.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/services"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 2 * time.Second

// Sweeper names, used as the SweeperRuns metric label.
const (
	nameCloses   = "closes"
	nameSuspends = "suspends"
	nameBlocks   = "blocks"
)

// Sweeper drives the scheduled actions of one inbox.
type Sweeper struct {
	Threads  *services.ThreadService
	Blocks   *services.BlockService
	Interval time.Duration
}

// New returns a Sweeper. blocks may be nil to skip block expiry.
func New(threads *services.ThreadService, blocks *services.BlockService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{Threads: threads, Blocks: blocks, Interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.Interval).Msg("sweeper started")
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs one pass of every sweep. Errors are logged and counted.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.record(nameCloses, s.SweepCloses(ctx))
	s.record(nameSuspends, s.SweepSuspends(ctx))
	if s.Blocks != nil {
		s.record(nameBlocks, s.SweepBlocks(ctx))
	}
}

func (s *Sweeper) record(name string, err error) {
	if err != nil {
		observability.SweeperRuns.WithLabelValues(name, "error").Inc()
		log.Error().Err(err).Str("sweeper", name).Msg("sweep failed")
		return
	}
	observability.SweeperRuns.WithLabelValues(name, "ok").Inc()
}

// closer rebuilds the staff member who scheduled an action from the
// snapshot stored on the thread.
func closer(id, name *string) *platform.User {
	if id == nil {
		return nil
	}
	u := &platform.User{ID: *id}
	if name != nil {
		u.Username = *name
	}
	return u
}

// SweepCloses closes every thread whose scheduled close has passed. The
// close honours the stored silent flag and is attributed to the staff
// member who scheduled it.
func (s *Sweeper) SweepCloses(ctx context.Context) error {
	due, err := s.Threads.DueCloses(ctx)
	if err != nil {
		return fmt.Errorf("list due closes: %w", err)
	}
	var errs []error
	for i := range due {
		t := &due[i]
		_, err := s.Threads.Close(ctx, t, services.CloseOptions{
			Closer: closer(t.ScheduledCloseID, t.ScheduledCloseName),
			Silent: t.ScheduledCloseSilent,
			Reason: services.CloseReasonScheduled,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("close thread %s: %w", t.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SweepSuspends suspends every thread whose scheduled suspend has passed.
func (s *Sweeper) SweepSuspends(ctx context.Context) error {
	due, err := s.Threads.DueSuspends(ctx)
	if err != nil {
		return fmt.Errorf("list due suspends: %w", err)
	}
	var errs []error
	for i := range due {
		t := &due[i]
		by := closer(t.ScheduledSuspendID, t.ScheduledSuspendName)
		if err := s.Threads.Suspend(ctx, t); err != nil {
			// Closed or suspended since the query ran.
			if errors.Is(err, services.ErrInvalidTransition) {
				continue
			}
			errs = append(errs, fmt.Errorf("suspend thread %s: %w", t.ID, err))
			continue
		}
		if _, err := s.Threads.PostSystemMessage(ctx, t, suspendNote(by, s.Threads.Cfg.Prefix)); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("suspend note failed")
		}
		log.Info().Str("thread_id", t.ID).Msg("thread suspended as scheduled")
	}
	return errors.Join(errs...)
}

func suspendNote(by *platform.User, prefix string) string {
	who := "a moderator"
	if by != nil && by.Username != "" {
		who = by.Username
	}
	return fmt.Sprintf("**Thread suspended** as scheduled by %s. This thread will act as closed until unsuspended with `%sunsuspend`", who, prefix)
}

// SweepBlocks lifts every block whose expiry has passed.
func (s *Sweeper) SweepBlocks(ctx context.Context) error {
	expired, err := s.Blocks.ExpireBlocks(ctx)
	if err != nil {
		return fmt.Errorf("expire blocks: %w", err)
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("expired blocks lifted")
	}
	return nil
}

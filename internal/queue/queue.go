// Package queue provides the serial dispatch queue that runs inbound-DM
// handling one task at a time, in arrival order.
//
// Enqueue never blocks. A single runner goroutine drains the queue FIFO and
// exits when it is empty; the next Enqueue starts a new one. A task that
// fails, panics, or outlives the per-task timeout is logged and the queue
// advances. A timed-out task is not cancelled: it keeps running in the
// background with the queue's base context.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-modmail/internal/observability"
)

// DefaultTimeout is the per-task timeout used when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Task is one unit of queued work.
type Task func(ctx context.Context) error

// Options configures a Queue.
type Options struct {
	// Timeout after which the queue stops waiting for a task.
	Timeout time.Duration
	// BaseContext is handed to every task. Defaults to context.Background().
	BaseContext context.Context
}

// Queue is a single-consumer FIFO task queue. The zero value is not usable;
// construct with New.
type Queue struct {
	timeout time.Duration
	base    context.Context

	mu      sync.Mutex
	tasks   []Task
	running bool
	idle    chan struct{} // closed while no runner is active
}

// New returns an idle queue.
func New(opts Options) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		timeout: opts.Timeout,
		base:    opts.BaseContext,
		idle:    idle,
	}
}

// Enqueue appends task and starts the runner if the queue was idle. It
// returns before the task has run.
func (q *Queue) Enqueue(task Task) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	observability.QueueDepth.Set(float64(len(q.tasks)))
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.mu.Unlock()

	go q.run()
}

// Len returns the number of tasks waiting to run, excluding the current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Wait blocks until the queue is idle or ctx is done. Tasks that timed out
// and are still running in the background are not waited for.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		observability.QueueDepth.Set(float64(len(q.tasks)))
		q.mu.Unlock()

		q.runOne(task)
	}
}

func (q *Queue) runOne(task Task) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r}
			}
		}()
		done <- task(q.base)
	}()

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		switch err.(type) {
		case nil:
			observability.QueueTasks.WithLabelValues("ok").Inc()
		case *panicError:
			observability.QueueTasks.WithLabelValues("panic").Inc()
			log.Error().Err(err).Msg("dispatch task panicked")
		default:
			observability.QueueTasks.WithLabelValues("failed").Inc()
			log.Error().Err(err).Msg("dispatch task failed")
		}
	case <-timer.C:
		observability.QueueTasks.WithLabelValues("timeout").Inc()
		log.Warn().Dur("timeout", q.timeout).Msg("dispatch task timed out; advancing queue")
	}
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

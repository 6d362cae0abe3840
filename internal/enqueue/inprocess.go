package enqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is invoked when a previously-enqueued Task becomes due.
type Handler func(ctx context.Context, taskID string)

// InProcess is a single-process Enqueuer backed by time.AfterFunc. It has
// no durability: a process restart loses every pending timer. Production
// deployments supply their own Enqueuer backed by a durable queue.
type InProcess struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler Handler
	logger  zerolog.Logger
}

// NewInProcess constructs an InProcess enqueuer that invokes handler for
// every Task that becomes due.
func NewInProcess(handler Handler, logger zerolog.Logger) *InProcess {
	return &InProcess{
		timers:  make(map[string]*time.Timer),
		handler: handler,
		logger:  logger.With().Str("component", "enqueue.in_process").Logger(),
	}
}

// Enqueue implements Enqueuer. A Task already scheduled is rescheduled to
// the new instant, replacing its pending timer.
func (q *InProcess) Enqueue(ctx context.Context, taskID string, at time.Time) error {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	if existing, ok := q.timers[taskID]; ok {
		existing.Stop()
	}
	q.timers[taskID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, taskID)
		q.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				q.logger.Warn().Interface("panic", r).Str("task_id", taskID).Msg("enqueue handler panicked")
			}
		}()
		q.handler(ctx, taskID)
	})
	q.mu.Unlock()

	q.logger.Debug().Str("task_id", taskID).Dur("delay", delay).Msg("task scheduled")
	return nil
}

// Cancel stops a pending timer for taskID, if any.
func (q *InProcess) Cancel(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.timers[taskID]; ok {
		existing.Stop()
		delete(q.timers, taskID)
	}
}

var _ Enqueuer = (*InProcess)(nil)

// Package coordinator implements WorkflowCoordinator: the outer loop that
// drives a single Task from its current state to a terminal or
// awaiting-re-enqueue outcome by repeatedly discovering viable Steps,
// executing them, and asking TaskFinalizer to classify the result (spec
// §4.6).
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/graph, internal/statemachine, internal/executor,
//     internal/finalizer, internal/store, internal/eventsink, std lib
//   - MUST NOT import: internal/cmd
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
	"github.com/mrz1836/flowcore/internal/eventsink"
	"github.com/mrz1836/flowcore/internal/executor"
	"github.com/mrz1836/flowcore/internal/finalizer"
	"github.com/mrz1836/flowcore/internal/graph"
	"github.com/mrz1836/flowcore/internal/statemachine"
	"github.com/mrz1836/flowcore/internal/store"
)

// Config bounds the outer loop so a misbehaving Task cannot spin forever
// within a single Run call.
type Config struct {
	// MaxIterations caps the number of discover/execute cycles performed by
	// a single Run before it returns with an unclear-style error. Run does
	// not finalize or re-enqueue the Task in that case.
	MaxIterations int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: 1000}
}

// Coordinator wires DependencyResolver, StepExecutor, and TaskFinalizer
// into the outer loop of spec §4.6.
type Coordinator struct {
	store     store.Store
	sm        *statemachine.StateMachine
	resolver  *graph.DependencyResolver
	exec      *executor.Executor
	finalizer *finalizer.Finalizer
	sink      eventsink.EventSink
	logger    zerolog.Logger
	cfg       Config
	nowFn     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEventSink overrides the EventSink used for loop-level events.
func WithEventSink(sink eventsink.EventSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithLogger overrides the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithConfig overrides the default loop bounds.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// New constructs a Coordinator from its already-constructed collaborators.
func New(st store.Store, sm *statemachine.StateMachine, exec *executor.Executor, fin *finalizer.Finalizer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     st,
		sm:        sm,
		resolver:  graph.NewDependencyResolver(eventsink.Nop{}),
		exec:      exec,
		finalizer: fin,
		sink:      eventsink.Nop{},
		logger:    zerolog.Nop(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = graph.NewDependencyResolver(c.sink)
	return c
}

func (c *Coordinator) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}

// Run drives taskID through the outer loop of spec §4.6 until no Steps are
// viable, after which it asks TaskFinalizer for a verdict. It returns the
// finalizer's Outcome, or an error if the Task's StepGraph is corrupted or a
// collaborator fails.
func (c *Coordinator) Run(ctx context.Context, taskID string) (finalizer.Outcome, error) {
	task, err := c.store.LoadTask(ctx, taskID)
	if err != nil {
		return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: load task %s: %w", taskID, err)
	}

	c.sink.Emit(ctx, constants.EventWorkflowTaskStarted, map[string]any{"task_id": task.TaskID})

	if task.CurrentState == domain.TaskStatePending {
		if _, err := c.sm.TransitionTask(ctx, task, domain.TaskStateInProgress, nil); err != nil {
			return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: start task: %w", err)
		}
		if err := c.store.SaveTask(ctx, task); err != nil {
			return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: save task after start: %w", err)
		}
	}

	var viable []*domain.Step

	iterations := 0
	for ; iterations < c.cfg.MaxIterations; iterations++ {
		if err := ctx.Err(); err != nil {
			return finalizer.OutcomeUnclear, err
		}

		if err := c.armRetries(ctx, task); err != nil {
			return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: arm retries: %w", err)
		}

		g, err := graph.Build(task)
		if err != nil {
			return c.failFatal(ctx, task, err)
		}

		viable, _, err = c.resolver.Resolve(ctx, g, c.store, c.now)
		if err != nil {
			return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: resolve: %w", err)
		}

		if len(viable) == 0 {
			break
		}

		if _, err := c.exec.Execute(ctx, task, viable); err != nil {
			return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: execute: %w", err)
		}

		if c.blockedByErrors(task) {
			// Re-resolve so TaskFinalizer sees the Steps viable now, not the
			// batch that was just executed.
			g, err := graph.Build(task)
			if err != nil {
				return c.failFatal(ctx, task, err)
			}
			if viable, _, err = c.resolver.Resolve(ctx, g, c.store, c.now); err != nil {
				return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: resolve: %w", err)
			}
			break
		}
	}

	if iterations == c.cfg.MaxIterations {
		return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: task %s still had viable steps after %d iterations", task.TaskID, iterations)
	}

	outcome, err := c.finalizer.Finalize(ctx, task, viable)
	if err != nil {
		return outcome, fmt.Errorf("coordinator: finalize: %w", err)
	}

	if err := c.store.SaveTask(ctx, task); err != nil {
		return outcome, fmt.Errorf("coordinator: save task: %w", err)
	}

	return outcome, nil
}

// armRetries transitions error-state Steps whose backoff has elapsed and
// whose retry budget is not exhausted back to pending, so the next
// DependencyResolver.Resolve call can pick them up (invariant #7 requires
// current_state == pending for viability; nothing else performs this
// transition once a backoff delay is armed).
func (c *Coordinator) armRetries(ctx context.Context, task *domain.Task) error {
	now := c.now()

	for name, step := range task.Steps {
		if step.CurrentState != domain.StepStateError {
			continue
		}
		if !step.Retryable || step.Attempts >= step.RetryLimit {
			continue
		}
		if step.BackoffUntil != nil && step.BackoffUntil.After(now) {
			continue
		}

		err := c.store.Transaction(ctx, func(txCtx context.Context, txn store.Txn) error {
			rec, terr := c.sm.TransitionStep(txCtx, step, domain.StepStatePending, nil)
			if terr != nil {
				return terr
			}
			if serr := c.store.SaveStep(txCtx, step, txn); serr != nil {
				return serr
			}
			return c.store.AppendTransition(txCtx, rec, txn)
		})
		if err != nil {
			return err
		}

		task.Steps[name] = step
	}

	return nil
}

// blockedByErrors reports whether the Task has at least one Step in a
// terminal, non-retryable error state — the coordinator's early-exit signal
// before handing off to TaskFinalizer (spec §4.6 "blocked_by_errors").
func (c *Coordinator) blockedByErrors(task *domain.Task) bool {
	for _, step := range task.Steps {
		if step.CurrentState == domain.StepStateError && (!step.Retryable || step.Attempts >= step.RetryLimit) {
			return true
		}
	}
	return false
}

// failFatal handles a corrupted StepGraph: spec §7 treats this as fatal for
// the Task, transitioning it directly to error without ever reaching
// TaskFinalizer (no Step executed, so there is nothing to survey).
func (c *Coordinator) failFatal(ctx context.Context, task *domain.Task, cause error) (finalizer.Outcome, error) {
	var graphErr *flowerrors.GraphCorruptedError
	kind := "unknown"
	if errors.As(cause, &graphErr) {
		kind = graphErr.Kind
	}

	task.FailureDetail = &domain.TaskFailureDetail{}
	if _, err := c.sm.TransitionTask(ctx, task, domain.TaskStateError, map[string]any{
		"reason": "graph_corrupted",
		"kind":   kind,
	}); err != nil {
		return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: transition task to error after graph corruption: %w", err)
	}

	if err := c.store.SaveTask(ctx, task); err != nil {
		return finalizer.OutcomeUnclear, fmt.Errorf("coordinator: save task after graph corruption: %w", err)
	}

	c.logger.Error().Str("task_id", task.TaskID).Str("kind", kind).Msg("step graph corrupted, failing task")

	return finalizer.OutcomeFailed, cause
}

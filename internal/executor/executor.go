// Package executor implements StepExecutor: running a batch of viable
// Steps under a dynamic concurrency cap with atomic persistence, error
// classification, cancellation and timeout (spec §4.4).
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mrz1836/flowcore/internal/backoff"
	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
	"github.com/mrz1836/flowcore/internal/eventsink"
	"github.com/mrz1836/flowcore/internal/handler"
	"github.com/mrz1836/flowcore/internal/statemachine"
	"github.com/mrz1836/flowcore/internal/store"
)

// Config tunes the dynamic concurrency budget (spec §4.4.1).
type Config struct {
	MinConcurrentSteps int
	MaxConcurrentSteps int
}

// DefaultConfig mirrors spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinConcurrentSteps: constants.DefaultMinConcurrentSteps,
		MaxConcurrentSteps: constants.DefaultMaxConcurrentSteps,
	}
}

// StepOutcome classifies how one Step in a batch resolved.
type StepOutcome string

const (
	OutcomeCompleted StepOutcome = "completed"
	OutcomeRetrying  StepOutcome = "retrying"
	OutcomeExhausted StepOutcome = "exhausted"
	OutcomeSkipped   StepOutcome = "skipped"
)

// BatchResult reports how every Step in a batch resolved.
type BatchResult struct {
	Completed []*domain.Step
	Retrying  []*domain.Step
	Exhausted []*domain.Step
	Skipped   []*domain.Step
}

// Executor runs batches of viable Steps (spec §4.4). Safe for concurrent use.
type Executor struct {
	store     store.Store
	sm        *statemachine.StateMachine
	backoff   *backoff.Policy
	registry  *handler.Registry
	sink      eventsink.EventSink
	logger    zerolog.Logger
	cfg       Config
	nowFn     func() time.Time
	concCache concurrencyCache
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventSink overrides the EventSink used for execution_requested,
// step.completed and step.failed events.
func WithEventSink(sink eventsink.EventSink) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithLogger overrides the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithConfig overrides the concurrency budget bounds.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithNow overrides the clock function, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(e *Executor) { e.nowFn = now }
}

// New constructs an Executor.
func New(st store.Store, sm *statemachine.StateMachine, bp *backoff.Policy, registry *handler.Registry, opts ...Option) *Executor {
	e := &Executor{
		store:    st,
		sm:       sm,
		backoff:  bp,
		registry: registry,
		sink:     eventsink.Nop{},
		logger:   zerolog.Nop(),
		cfg:      DefaultConfig(),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) now() time.Time { return e.nowFn().UTC() }

// Execute runs every viable Step under a semaphore-gated concurrency
// budget and reports how each one resolved. A single Step's failure never
// aborts its siblings (spec §7 propagation policy), so the fan-out below
// uses a plain sync.WaitGroup rather than errgroup, whose cancel-on-first-
// error semantics would abort the rest of the batch; semaphore.Weighted
// supplies the dynamic concurrency gate instead, admitting a new Step as
// soon as a slot frees up rather than waiting on a whole fixed-size chunk.
func (e *Executor) Execute(ctx context.Context, task *domain.Task, viable []*domain.Step) (BatchResult, error) {
	var result BatchResult
	if len(viable) == 0 {
		return result, nil
	}

	budget := e.concurrency(ctx)
	if budget < 1 {
		budget = 1
	}

	e.sink.Emit(ctx, constants.EventWorkflowStepsExecutionStarted, map[string]any{
		"task_id": task.TaskID,
		"count":   len(viable),
	})

	deadline := calculateBatchTimeout(len(viable))
	batchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	sem := semaphore.NewWeighted(int64(budget))
	var taskMu sync.Mutex
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for _, step := range viable {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			resultMu.Lock()
			result.Skipped = append(result.Skipped, step)
			resultMu.Unlock()
			continue
		}

		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error().Interface("panic", r).Str("step_id", step.StepID).Msg("step handler panicked")
				}
			}()

			outcome, resolved := e.executeStep(batchCtx, task, step, &taskMu)
			resultMu.Lock()
			appendOutcome(&result, outcome, resolved)
			resultMu.Unlock()
		}()
	}

	wg.Wait()

	e.sink.Emit(ctx, constants.EventWorkflowStepsExecutionCompleted, map[string]any{
		"task_id":   task.TaskID,
		"completed": len(result.Completed),
		"retrying":  len(result.Retrying),
		"exhausted": len(result.Exhausted),
		"skipped":   len(result.Skipped),
	})

	return result, nil
}

func appendOutcome(result *BatchResult, outcome StepOutcome, step *domain.Step) {
	switch outcome {
	case OutcomeCompleted:
		result.Completed = append(result.Completed, step)
	case OutcomeRetrying:
		result.Retrying = append(result.Retrying, step)
	case OutcomeExhausted:
		result.Exhausted = append(result.Exhausted, step)
	case OutcomeSkipped:
		result.Skipped = append(result.Skipped, step)
	}
}

// executeStep runs the seven-step algorithm of spec §4.4.2 for one Step.
// taskMu guards writes to task.Steps, since sibling steps in the same chunk
// run concurrently and each replaces its own entry with the freshly
// reloaded copy it mutates.
func (e *Executor) executeStep(ctx context.Context, task *domain.Task, step *domain.Step, taskMu *sync.Mutex) (StepOutcome, *domain.Step) {
	// 1. Precondition check.
	if !e.store.ConnectionActive(ctx) {
		e.logger.Warn().Str("step_id", step.StepID).Msg("store unavailable, skipping step")
		return OutcomeSkipped, step
	}
	latest, err := e.store.ReloadStep(ctx, step.StepID)
	if err != nil || latest == nil {
		latest = step
	}
	taskMu.Lock()
	task.Steps[latest.Name] = latest
	taskMu.Unlock()

	if latest.Processed || latest.InProcess || latest.CurrentState != domain.StepStatePending {
		e.logger.Info().Str("step_id", step.StepID).Msg("step no longer viable, skipping")
		return OutcomeSkipped, latest
	}

	// 2. Transition to in_progress.
	txnErr := e.store.Transaction(ctx, func(txCtx context.Context, txn store.Txn) error {
		rec, terr := e.sm.TransitionStep(txCtx, latest, domain.StepStateInProgress, nil)
		if terr != nil {
			return terr
		}
		if serr := e.store.SaveStep(txCtx, latest, txn); serr != nil {
			return serr
		}
		return e.store.AppendTransition(txCtx, rec, txn)
	})
	if txnErr != nil {
		e.logger.Warn().Err(txnErr).Str("step_id", latest.StepID).Msg("in_progress transition refused")
		return OutcomeSkipped, latest
	}

	// 3. Emit execution_requested.
	e.sink.Emit(ctx, constants.EventStepExecutionRequested, map[string]any{
		"step_id": latest.StepID,
		"name":    latest.Name,
	})

	// 4. Invoke handler under the chunk deadline.
	h, ok := e.registry.Lookup(latest.HandlerName)
	if !ok {
		return e.recordFailure(ctx, task, latest, &flowerrors.PermanentError{
			Code: "E_UNKNOWN_HANDLER",
			Cause: fmt.Errorf("no handler registered for %q", latest.HandlerName),
		})
	}

	taskCtx := handler.TaskContext{TaskID: task.TaskID, Name: task.Name, Namespace: task.Namespace, Context: task.Context}
	taskMu.Lock()
	parentResults := e.parentResults(task, latest)
	taskMu.Unlock()

	hres, herr := h.Handle(ctx, taskCtx, parentResults, latest)
	if herr == nil && ctx.Err() != nil {
		herr = &flowerrors.RetryableError{Cause: errors.New(constants.TimeoutErrorMessage)}
	}

	if herr != nil {
		return e.recordFailure(ctx, task, latest, herr)
	}

	return e.recordSuccess(ctx, task, latest, hres)
}

func (e *Executor) parentResults(task *domain.Task, step *domain.Step) map[string]domain.HandlerResult {
	out := make(map[string]domain.HandlerResult, len(step.Parents))
	for _, name := range step.Parents {
		if parent, ok := task.Steps[name]; ok {
			out[name] = domain.HandlerResult(parent.Results)
		}
	}
	return out
}

// recordSuccess implements spec §4.4.2 step 5.
func (e *Executor) recordSuccess(ctx context.Context, task *domain.Task, step *domain.Step, result domain.HandlerResult) (StepOutcome, *domain.Step) {
	step.Attempts++
	now := e.now()
	step.LastAttemptedAt = &now
	step.Results = result

	err := e.store.Transaction(ctx, func(txCtx context.Context, txn store.Txn) error {
		rec, terr := e.sm.TransitionStep(txCtx, step, domain.StepStateComplete, nil)
		if terr != nil {
			return terr
		}
		if serr := e.store.SaveStep(txCtx, step, txn); serr != nil {
			return serr
		}
		return e.store.AppendTransition(txCtx, rec, txn)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("step_id", step.StepID).Msg("failed to persist step completion")
		return OutcomeSkipped, step
	}

	e.sink.Emit(ctx, constants.EventStepCompleted, map[string]any{
		"step_id": step.StepID,
		"task_id": task.TaskID,
	})
	return OutcomeCompleted, step
}

// recordFailure implements spec §4.4.2 step 6 and §4.4.3 error classification.
func (e *Executor) recordFailure(ctx context.Context, task *domain.Task, step *domain.Step, handlerErr error) (StepOutcome, *domain.Step) {
	permanent, retryAfter, class := classify(handlerErr)

	now := e.now()
	step.Attempts++
	step.LastAttemptedAt = &now
	step.Results = map[string]any{
		"error": handlerErr.Error(),
		"class": class,
	}
	if permanent {
		step.Retryable = false
		// A PermanentError exhausts the retry budget outright (spec §4.4.3,
		// §8 scenario 3: "attempts = retry_limit (exhausted)").
		if step.Attempts < step.RetryLimit {
			step.Attempts = step.RetryLimit
		}
	}

	err := e.store.Transaction(ctx, func(txCtx context.Context, txn store.Txn) error {
		rec, terr := e.sm.TransitionStep(txCtx, step, domain.StepStateError, nil)
		if terr != nil {
			return terr
		}
		if serr := e.store.SaveStep(txCtx, step, txn); serr != nil {
			return serr
		}
		return e.store.AppendTransition(txCtx, rec, txn)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("step_id", step.StepID).Msg("failed to persist step failure")
		return OutcomeSkipped, step
	}

	exhausted := permanent || !step.Retryable || step.Attempts >= step.RetryLimit
	if !exhausted {
		outcome, berr := e.backoff.Compute(ctx, step.Attempts, retryAfter)
		if berr == nil {
			until := outcome.BackoffUntil
			step.BackoffUntil = &until
			_ = e.store.Transaction(ctx, func(txCtx context.Context, txn store.Txn) error {
				return e.store.SaveStep(txCtx, step, txn)
			})
		}
	}

	e.sink.Emit(ctx, constants.EventStepFailed, map[string]any{
		"step_id":   step.StepID,
		"task_id":   task.TaskID,
		"class":     class,
		"exhausted": exhausted,
	})

	if exhausted {
		return OutcomeExhausted, step
	}
	return OutcomeRetrying, step
}

// classify maps a handler error to StepExecutor's permanent/retryable
// decision plus an optional server-directed retry_after hint (spec §4.4.3).
func classify(err error) (permanent bool, retryAfter string, class string) {
	var perm *flowerrors.PermanentError
	if errors.As(err, &perm) {
		return true, "", perm.Code
	}

	var retry *flowerrors.RetryableError
	if errors.As(err, &retry) {
		return false, retry.RetryAfter, "retryable"
	}

	var httpErr *flowerrors.HTTPStatusError
	if errors.As(err, &httpErr) {
		retryable, forced := backoff.ClassifyHTTPStatus(httpErr.StatusCode)
		if !retryable {
			return true, "", fmt.Sprintf("http_%d", httpErr.StatusCode)
		}
		hint := ""
		if forced {
			hint = httpErr.RetryAfter
		}
		return false, hint, fmt.Sprintf("http_%d", httpErr.StatusCode)
	}

	return false, "", "unknown"
}

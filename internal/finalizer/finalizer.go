// Package finalizer implements TaskFinalizer: after each execution batch,
// classifies a Task as complete / failed / re-enqueue / wait / unclear and
// acts on that classification (spec §4.5). It never runs handlers itself.
package finalizer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/enqueue"
	"github.com/mrz1836/flowcore/internal/eventsink"
	"github.com/mrz1836/flowcore/internal/statemachine"
)

// errNoEnqueuer is returned when Finalize reaches a re-enqueue outcome but
// no Enqueuer was configured.
var errNoEnqueuer = errors.New("finalizer: re-enqueue outcome requires an Enqueuer")

// Outcome is the single decision TaskFinalizer reaches for a Task.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeFailed    Outcome = "failed"
	OutcomeReenqueue Outcome = "re_enqueue"
	OutcomeWait      Outcome = "wait"
	OutcomeUnclear   Outcome = "unclear"
)

// Finalizer applies the decision table of spec §4.5.
type Finalizer struct {
	sm       *statemachine.StateMachine
	enqueuer enqueue.Enqueuer
	sink     eventsink.EventSink
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithEventSink overrides the EventSink used for finalization events.
func WithEventSink(sink eventsink.EventSink) Option {
	return func(f *Finalizer) { f.sink = sink }
}

// WithLogger overrides the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Finalizer) { f.logger = logger }
}

// WithNow overrides the clock function, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(f *Finalizer) { f.nowFn = now }
}

// New constructs a Finalizer. enqueuer may be nil if the caller never
// expects a re-enqueue outcome (e.g. a single-shot test harness); Finalize
// returns an error if re-enqueue is reached with a nil enqueuer.
func New(sm *statemachine.StateMachine, enqueuer enqueue.Enqueuer, opts ...Option) *Finalizer {
	f := &Finalizer{
		sm:       sm,
		enqueuer: enqueuer,
		sink:     eventsink.Nop{},
		logger:   zerolog.Nop(),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// stepSurvey summarizes a Task's Step states for one finalization decision.
type stepSurvey struct {
	allTerminalSuccess bool
	anyInProgress      bool
	anyExhaustedError  bool
	anyRetryEligible   bool
	earliestBackoff    *time.Time
	blockingSteps      []domain.StepFailureRef
}

func (f *Finalizer) survey(task *domain.Task) stepSurvey {
	s := stepSurvey{allTerminalSuccess: true}

	for _, step := range task.Steps {
		switch step.CurrentState {
		case domain.StepStateComplete, domain.StepStateResolvedManually, domain.StepStateCancelled:
			continue
		case domain.StepStateInProgress:
			s.allTerminalSuccess = false
			s.anyInProgress = true
		case domain.StepStatePending:
			s.allTerminalSuccess = false
			s.anyRetryEligible = true
			s.earliestBackoff = earlier(s.earliestBackoff, step.BackoffUntil)
		case domain.StepStateError:
			s.allTerminalSuccess = false
			if step.Attempts >= step.RetryLimit || !step.Retryable {
				s.anyExhaustedError = true
				s.blockingSteps = append(s.blockingSteps, domain.StepFailureRef{
					StepID: step.StepID,
					Name:   step.Name,
					Error:  step.Results,
				})
			} else {
				s.anyRetryEligible = true
				s.earliestBackoff = earlier(s.earliestBackoff, step.BackoffUntil)
			}
		default:
			s.allTerminalSuccess = false
		}
	}

	return s
}

func earlier(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.Before(*current) {
		return candidate
	}
	return current
}

// Finalize applies the decision table of spec §4.5 and returns the outcome
// reached. It does not loop; the caller (WorkflowCoordinator) decides
// whether to re-invoke DependencyResolver/StepExecutor.
func (f *Finalizer) Finalize(ctx context.Context, task *domain.Task, viable []*domain.Step) (Outcome, error) {
	f.sink.Emit(ctx, constants.EventWorkflowTaskFinalizationStarted, map[string]any{"task_id": task.TaskID})

	outcome, err := f.decide(ctx, task, viable)

	f.sink.Emit(ctx, constants.EventWorkflowTaskFinalizationComplete, map[string]any{
		"task_id": task.TaskID,
		"outcome": string(outcome),
	})
	return outcome, err
}

func (f *Finalizer) decide(ctx context.Context, task *domain.Task, viable []*domain.Step) (Outcome, error) {
	survey := f.survey(task)

	if survey.allTerminalSuccess {
		if _, err := f.sm.TransitionTask(ctx, task, domain.TaskStateComplete, nil); err != nil {
			return OutcomeUnclear, err
		}
		return OutcomeComplete, nil
	}

	if survey.anyExhaustedError && len(viable) == 0 {
		task.FailureDetail = &domain.TaskFailureDetail{BlockingSteps: survey.blockingSteps}
		if _, err := f.sm.TransitionTask(ctx, task, domain.TaskStateError, map[string]any{
			"blocking_steps": survey.blockingSteps,
		}); err != nil {
			return OutcomeUnclear, err
		}
		return OutcomeFailed, nil
	}

	if survey.anyRetryEligible && len(viable) == 0 {
		at := f.nowFn().Add(constants.DefaultReenqueueDelay)
		if survey.earliestBackoff != nil {
			at = *survey.earliestBackoff
		}
		if _, err := f.sm.TransitionTask(ctx, task, domain.TaskStatePending, nil); err != nil {
			return OutcomeUnclear, err
		}
		if f.enqueuer == nil {
			return OutcomeUnclear, errNoEnqueuer
		}
		if err := f.enqueuer.Enqueue(ctx, task.TaskID, at); err != nil {
			return OutcomeUnclear, err
		}
		f.sink.Emit(ctx, constants.EventWorkflowTaskReenqueueRequested, map[string]any{
			"task_id": task.TaskID,
			"at":      at,
		})
		return OutcomeReenqueue, nil
	}

	if survey.anyInProgress {
		return OutcomeWait, nil
	}

	f.sink.Emit(ctx, constants.EventWorkflowTaskStateUnclear, map[string]any{
		"task_id": task.TaskID,
	})
	f.logger.Warn().Str("task_id", task.TaskID).Msg("task finalization reached an unclear state")
	return OutcomeUnclear, nil
}

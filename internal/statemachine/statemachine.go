// Package statemachine enforces the legal transitions for Tasks and Steps
// and builds the immutable transition records that describe each change
// of current_state (spec §4.1). Persisting a record is the caller's job.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/eventsink, internal/clock, internal/ctxutil, std lib
//   - MUST NOT import: internal/store, internal/executor, internal/coordinator
package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/flowcore/internal/clock"
	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/ctxutil"
	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
	"github.com/mrz1836/flowcore/internal/eventsink"
)

// TaskTransitions defines all allowed Task state transitions (spec §4.1).
// Format: from_state -> []to_states.
//
//nolint:gochecknoglobals // exported for testing and read-only lookup
var TaskTransitions = map[domain.TaskState][]domain.TaskState{
	domain.TaskStatePending: {
		domain.TaskStateInProgress,
		domain.TaskStateCancelled,
		domain.TaskStateResolvedManually,
	},
	domain.TaskStateInProgress: {
		domain.TaskStateComplete,
		domain.TaskStateError,
		domain.TaskStatePending,
		domain.TaskStateCancelled,
		domain.TaskStateResolvedManually,
	},
	domain.TaskStateError: {
		domain.TaskStateInProgress,
		domain.TaskStateCancelled,
		domain.TaskStateResolvedManually,
	},
}

// StepTransitions defines all allowed Step state transitions (spec §4.1).
//
//nolint:gochecknoglobals // exported for testing and read-only lookup
var StepTransitions = map[domain.StepState][]domain.StepState{
	domain.StepStatePending: {
		domain.StepStateInProgress,
		domain.StepStateCancelled,
		domain.StepStateResolvedManually,
	},
	domain.StepStateInProgress: {
		domain.StepStateComplete,
		domain.StepStateError,
		domain.StepStateCancelled,
		domain.StepStateResolvedManually,
	},
	domain.StepStateError: {
		domain.StepStatePending,
		domain.StepStateCancelled,
		domain.StepStateResolvedManually,
	},
}

// IsValidTaskTransition reports whether from -> to is a listed Task
// transition. Same-state is always valid (idempotent-transition contract);
// callers needing strict transition-table membership should look the pair
// up in TaskTransitions directly.
func IsValidTaskTransition(from, to domain.TaskState) bool {
	if from == to {
		return true
	}
	for _, t := range TaskTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsValidStepTransition reports whether from -> to is a listed Step
// transition, or a same-state no-op.
func IsValidStepTransition(from, to domain.StepState) bool {
	if from == to {
		return true
	}
	for _, t := range StepTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// StateMachine applies Task and Step transitions, returning transition
// records and emitting before/after events through an EventSink.
type StateMachine struct {
	clock clock.Clock
	sink  eventsink.EventSink
}

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithClock overrides the clock used to timestamp transitions.
func WithClock(c clock.Clock) Option {
	return func(s *StateMachine) { s.clock = c }
}

// WithEventSink overrides the EventSink used for before/after transition events.
func WithEventSink(sink eventsink.EventSink) Option {
	return func(s *StateMachine) { s.sink = sink }
}

// New constructs a StateMachine with sane defaults: RealClock and a Nop sink.
func New(opts ...Option) *StateMachine {
	sm := &StateMachine{clock: clock.RealClock{}, sink: eventsink.Nop{}}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// TransitionTask applies a Task transition, updating task.CurrentState in
// place and returning the TransitionRecord for the caller to persist. It is
// idempotent against a repeat of the same target state from the same
// current state: a zero record and success are returned.
//
// Guard: Task -> complete requires every Step to be terminal-success.
func (s *StateMachine) TransitionTask(ctx context.Context, task *domain.Task, to domain.TaskState, metadata map[string]any) (domain.TransitionRecord, error) {
	var zero domain.TransitionRecord
	if err := ctxutil.Canceled(ctx); err != nil {
		return zero, err
	}
	if task == nil {
		return zero, &flowerrors.InvalidTransitionError{Entity: "task", Reason: "task is nil"}
	}

	from := task.CurrentState
	if from == to {
		return zero, nil
	}

	if !IsValidTaskTransition(from, to) {
		return zero, &flowerrors.InvalidTransitionError{
			Entity: "task",
			ID:     task.TaskID,
			From:   string(from),
			To:     string(to),
		}
	}

	if to == domain.TaskStateComplete {
		for _, step := range task.Steps {
			if !constants.IsStepTerminalSuccess(step.CurrentState) {
				return zero, &flowerrors.InvalidTransitionError{
					Entity: "task",
					ID:     task.TaskID,
					From:   string(from),
					To:     string(to),
					Reason: fmt.Sprintf("step %s is not terminal-success", step.Name),
				}
			}
		}
	}

	s.emit(ctx, constants.EventTaskBeforeTransition, task.TaskID, from, to)

	now := s.clock.Now().UTC()
	record := domain.TransitionRecord{
		EntityID:   task.TaskID,
		EntityKind: "task",
		FromState:  string(from),
		ToState:    string(to),
		At:         now,
		Metadata:   metadata,
	}

	task.CurrentState = to
	task.UpdatedAt = now
	if constants.IsTaskTerminal(to) {
		task.CompletedAt = &now
	}

	s.emit(ctx, taskTransitionEvent(to), task.TaskID, from, to)

	return record, nil
}

// TransitionStep applies a Step transition, updating step.CurrentState in
// place and returning the TransitionRecord for the caller to append.
// Idempotent against same-state repeats (a zero record is returned).
//
// Guard: Step -> in_progress requires the caller to have already determined
// viability; StateMachine itself does not re-check parents/backoff, since
// that is DependencyResolver's responsibility and re-checking here would
// duplicate the Store read that made the viability decision authoritative.
func (s *StateMachine) TransitionStep(ctx context.Context, step *domain.Step, to domain.StepState, metadata map[string]any) (domain.TransitionRecord, error) {
	var zero domain.TransitionRecord
	if err := ctxutil.Canceled(ctx); err != nil {
		return zero, err
	}
	if step == nil {
		return zero, &flowerrors.InvalidTransitionError{Entity: "step", Reason: "step is nil"}
	}

	from := step.CurrentState
	if from == to {
		return zero, nil
	}

	if !IsValidStepTransition(from, to) {
		return zero, &flowerrors.InvalidTransitionError{
			Entity: "step",
			ID:     step.StepID,
			From:   string(from),
			To:     string(to),
		}
	}

	s.emit(ctx, constants.EventStepBeforeTransition, step.StepID, from, to)

	now := s.clock.Now().UTC()
	record := domain.TransitionRecord{
		EntityID:   step.StepID,
		EntityKind: "step",
		FromState:  string(from),
		ToState:    string(to),
		At:         now,
		Metadata:   metadata,
	}

	step.CurrentState = to
	switch to {
	case domain.StepStateInProgress:
		step.InProcess = true
	case domain.StepStateComplete, domain.StepStateResolvedManually:
		step.InProcess = false
		step.Processed = true
		step.ProcessedAt = &now
	case domain.StepStateCancelled:
		step.InProcess = false
		step.Processed = true
		step.ProcessedAt = &now
	case domain.StepStateError, domain.StepStatePending:
		step.InProcess = false
	}

	s.emit(ctx, stepTransitionEvent(to), step.StepID, from, to)

	return record, nil
}

func (s *StateMachine) emit(ctx context.Context, name constants.EventName, entityID string, from, to any) {
	s.sink.Emit(ctx, name, map[string]any{
		"entity_id": entityID,
		"from":      fmt.Sprint(from),
		"to":        fmt.Sprint(to),
		"at":        s.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

func taskTransitionEvent(to domain.TaskState) constants.EventName {
	switch to {
	case domain.TaskStateComplete:
		return constants.EventTaskCompleted
	case domain.TaskStateError:
		return constants.EventTaskFailed
	case domain.TaskStatePending:
		return constants.EventTaskRetryRequested
	case domain.TaskStateResolvedManually:
		return constants.EventTaskResolvedManually
	case domain.TaskStateCancelled:
		return constants.EventTaskCancelled
	default:
		return constants.EventTaskStartRequested
	}
}

func stepTransitionEvent(to domain.StepState) constants.EventName {
	switch to {
	case domain.StepStateComplete:
		return constants.EventStepCompleted
	case domain.StepStateError:
		return constants.EventStepFailed
	case domain.StepStatePending:
		return constants.EventStepRetryRequested
	case domain.StepStateResolvedManually:
		return constants.EventStepResolvedManually
	case domain.StepStateCancelled:
		return constants.EventStepCancelled
	default:
		return constants.EventStepStartRequested
	}
}

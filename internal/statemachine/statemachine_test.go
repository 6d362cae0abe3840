package statemachine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/clock"
	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
	"github.com/mrz1836/flowcore/internal/statemachine"
)

// stubClock is a local Clock implementation since clock.MockClock lives in
// clock's own _test.go file and is not importable from other packages.
type stubClock struct{ at time.Time }

func (c stubClock) Now() time.Time { return c.at }

func fixedClock() clock.Clock {
	return stubClock{at: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestIsValidTaskTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, statemachine.IsValidTaskTransition(domain.TaskStatePending, domain.TaskStateInProgress))
	assert.True(t, statemachine.IsValidTaskTransition(domain.TaskStateInProgress, domain.TaskStateComplete))
	assert.True(t, statemachine.IsValidTaskTransition(domain.TaskStateError, domain.TaskStateInProgress))
	assert.False(t, statemachine.IsValidTaskTransition(domain.TaskStateComplete, domain.TaskStateInProgress))
	assert.True(t, statemachine.IsValidTaskTransition(domain.TaskStatePending, domain.TaskStatePending), "same state is idempotent, not invalid")
}

func TestTransitionTask_Success(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStatePending,
		Steps:        map[string]*domain.Step{},
	}

	record, err := sm.TransitionTask(context.Background(), task, domain.TaskStateInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, "pending", record.FromState)
	assert.Equal(t, "in_progress", record.ToState)
	assert.Equal(t, domain.TaskStateInProgress, task.CurrentState)
}

func TestTransitionTask_Idempotent(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	task := &domain.Task{TaskID: "t-1", CurrentState: domain.TaskStateInProgress, Steps: map[string]*domain.Step{}}

	record, err := sm.TransitionTask(context.Background(), task, domain.TaskStateInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionRecord{}, record, "no-op transition must not append a record")
	assert.Equal(t, domain.TaskStateInProgress, task.CurrentState)
}

func TestTransitionTask_InvalidTransition(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	task := &domain.Task{TaskID: "t-1", CurrentState: domain.TaskStateComplete, Steps: map[string]*domain.Step{}}

	_, err := sm.TransitionTask(context.Background(), task, domain.TaskStateInProgress, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrInvalidTransition)
}

func TestTransitionTask_CompleteRequiresAllStepsTerminal(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"a": {Name: "a", CurrentState: domain.StepStatePending},
		},
	}

	_, err := sm.TransitionTask(context.Background(), task, domain.TaskStateComplete, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrInvalidTransition)
}

func TestTransitionStep_InProgressSetsInProcess(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	step := &domain.Step{StepID: "s-1", CurrentState: domain.StepStatePending}

	_, err := sm.TransitionStep(context.Background(), step, domain.StepStateInProgress, nil)
	require.NoError(t, err)
	assert.True(t, step.InProcess)
	assert.False(t, step.Processed)
}

func TestTransitionStep_CompleteSetsProcessed(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	step := &domain.Step{StepID: "s-1", CurrentState: domain.StepStateInProgress, InProcess: true}

	_, err := sm.TransitionStep(context.Background(), step, domain.StepStateComplete, nil)
	require.NoError(t, err)
	assert.False(t, step.InProcess)
	assert.True(t, step.Processed)
	assert.NotNil(t, step.ProcessedAt)
}

func TestTransitionStep_ErrorToPendingRetryArmed(t *testing.T) {
	t.Parallel()

	sm := statemachine.New(statemachine.WithClock(fixedClock()))
	step := &domain.Step{StepID: "s-1", CurrentState: domain.StepStateError}

	_, err := sm.TransitionStep(context.Background(), step, domain.StepStatePending, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatePending, step.CurrentState)
	assert.False(t, step.Processed)
}

func TestTransitionTask_NilTask(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	_, err := sm.TransitionTask(context.Background(), nil, domain.TaskStateInProgress, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrInvalidTransition)
}

func TestTransitionTask_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sm := statemachine.New()
	task := &domain.Task{TaskID: "t-1", CurrentState: domain.TaskStatePending}
	_, err := sm.TransitionTask(ctx, task, domain.TaskStateInProgress, nil)
	require.Error(t, err)
}

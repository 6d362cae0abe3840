package finalizer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/finalizer"
	"github.com/mrz1836/flowcore/internal/statemachine"
)

type stubEnqueuer struct {
	calledWith string
	at         time.Time
}

func (s *stubEnqueuer) Enqueue(_ context.Context, taskID string, at time.Time) error {
	s.calledWith = taskID
	s.at = at
	return nil
}

func TestFinalize_AllTerminalSuccess_Completes(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	f := finalizer.New(sm, nil)
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"A": {Name: "A", CurrentState: domain.StepStateComplete},
		},
	}

	outcome, err := f.Finalize(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, finalizer.OutcomeComplete, outcome)
	assert.Equal(t, domain.TaskStateComplete, task.CurrentState)
}

func TestFinalize_ExhaustedErrorStepFails(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	f := finalizer.New(sm, nil)
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"A": {StepID: "s-a", Name: "A", CurrentState: domain.StepStateError, Attempts: 3, RetryLimit: 3, Retryable: true},
		},
	}

	outcome, err := f.Finalize(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, finalizer.OutcomeFailed, outcome)
	assert.Equal(t, domain.TaskStateError, task.CurrentState)
	require.NotNil(t, task.FailureDetail)
	assert.Len(t, task.FailureDetail.BlockingSteps, 1)
}

func TestFinalize_RetryEligiblePendingReenqueues(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	enq := &stubEnqueuer{}
	f := finalizer.New(sm, enq)
	until := time.Now().Add(5 * time.Minute)
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"A": {Name: "A", CurrentState: domain.StepStateError, Attempts: 1, RetryLimit: 3, Retryable: true, BackoffUntil: &until},
		},
	}

	outcome, err := f.Finalize(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, finalizer.OutcomeReenqueue, outcome)
	assert.Equal(t, domain.TaskStatePending, task.CurrentState)
	assert.Equal(t, "t-1", enq.calledWith)
	assert.Equal(t, until, enq.at)
}

func TestFinalize_InProgressWaits(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	f := finalizer.New(sm, nil)
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"A": {Name: "A", CurrentState: domain.StepStateInProgress},
		},
	}

	outcome, err := f.Finalize(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, finalizer.OutcomeWait, outcome)
	assert.Equal(t, domain.TaskStateInProgress, task.CurrentState)
}

func TestFinalize_ReenqueueWithoutEnqueuerIsUnclear(t *testing.T) {
	t.Parallel()

	sm := statemachine.New()
	f := finalizer.New(sm, nil)
	task := &domain.Task{
		TaskID:       "t-1",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			"A": {Name: "A", CurrentState: domain.StepStatePending},
		},
	}

	outcome, err := f.Finalize(context.Background(), task, nil)
	require.Error(t, err)
	assert.Equal(t, finalizer.OutcomeUnclear, outcome)
}

package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/backoff"
	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
	"github.com/mrz1836/flowcore/internal/executor"
	"github.com/mrz1836/flowcore/internal/handler"
	"github.com/mrz1836/flowcore/internal/statemachine"
	"github.com/mrz1836/flowcore/internal/store"
	"github.com/mrz1836/flowcore/internal/testutil"
)

type fakeHandler struct {
	result domain.HandlerResult
	err    error
}

func (f fakeHandler) Handle(_ context.Context, _ handler.TaskContext, _ map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newFixture(t *testing.T) (*executor.Executor, *store.MemStore, *handler.Registry) {
	t.Helper()
	st := store.NewMemStore()
	sm := statemachine.New()
	bp := backoff.NewPolicy(backoff.DefaultConfig())
	reg := handler.NewRegistry()
	exec := executor.New(st, sm, bp, reg)
	return exec, st, reg
}

func taskWithStep(stepName, handlerName string) *domain.Task {
	return &domain.Task{
		TaskID:       "t-1",
		Name:         "order_processing",
		CurrentState: domain.TaskStateInProgress,
		Steps: map[string]*domain.Step{
			stepName: {
				StepID:       "s-" + stepName,
				TaskID:       "t-1",
				Name:         stepName,
				HandlerName:  handlerName,
				CurrentState: domain.StepStatePending,
				RetryLimit:   3,
				Retryable:    true,
			},
		},
	}
}

func TestExecute_SuccessCompletesStep(t *testing.T) {
	t.Parallel()

	exec, st, reg := newFixture(t)
	task := taskWithStep("A", "noop")
	require.NoError(t, reg.Register("noop", fakeHandler{result: domain.HandlerResult{"ok": true}}))
	require.NoError(t, st.SaveTask(context.Background(), task))

	result, err := exec.Execute(context.Background(), task, []*domain.Step{task.Steps["A"]})
	require.NoError(t, err)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, domain.StepStateComplete, result.Completed[0].CurrentState)
	assert.True(t, result.Completed[0].Processed)
}

func TestExecute_PermanentErrorExhausts(t *testing.T) {
	t.Parallel()

	exec, st, reg := newFixture(t)
	task := taskWithStep("A", "fails")
	require.NoError(t, reg.Register("fails", fakeHandler{err: &flowerrors.PermanentError{Code: "E_VALIDATION"}}))
	require.NoError(t, st.SaveTask(context.Background(), task))

	result, err := exec.Execute(context.Background(), task, []*domain.Step{task.Steps["A"]})
	require.NoError(t, err)
	require.Len(t, result.Exhausted, 1)
	assert.False(t, result.Exhausted[0].Retryable)
	assert.Equal(t, domain.StepStateError, result.Exhausted[0].CurrentState)
	assert.Equal(t, result.Exhausted[0].RetryLimit, result.Exhausted[0].Attempts)
}

func TestExecute_RetryableErrorArmsBackoff(t *testing.T) {
	t.Parallel()

	exec, st, reg := newFixture(t)
	task := taskWithStep("A", "flaky")
	require.NoError(t, reg.Register("flaky", fakeHandler{err: &flowerrors.RetryableError{Cause: testutil.ErrMockNetwork}}))
	require.NoError(t, st.SaveTask(context.Background(), task))

	result, err := exec.Execute(context.Background(), task, []*domain.Step{task.Steps["A"]})
	require.NoError(t, err)
	require.Len(t, result.Retrying, 1)
	step := result.Retrying[0]
	assert.Equal(t, 1, step.Attempts)
	require.NotNil(t, step.BackoffUntil)
	assert.True(t, step.BackoffUntil.After(time.Now().Add(-time.Second)))
}

func TestExecute_UnknownHandlerNameExhausts(t *testing.T) {
	t.Parallel()

	exec, st, _ := newFixture(t)
	task := taskWithStep("A", "missing")
	require.NoError(t, st.SaveTask(context.Background(), task))

	result, err := exec.Execute(context.Background(), task, []*domain.Step{task.Steps["A"]})
	require.NoError(t, err)
	require.Len(t, result.Exhausted, 1)
}

func TestExecute_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	exec, _, _ := newFixture(t)
	result, err := exec.Execute(context.Background(), taskWithStep("A", "noop"), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Completed)
}

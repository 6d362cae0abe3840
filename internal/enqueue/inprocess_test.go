package enqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/enqueue"
)

func TestInProcess_EnqueueRunsHandler(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got string
	done := make(chan struct{})

	q := enqueue.NewInProcess(func(_ context.Context, taskID string) {
		mu.Lock()
		got = taskID
		mu.Unlock()
		close(done)
	}, zerolog.Nop())

	require.NoError(t, q.Enqueue(context.Background(), "t-1", time.Now()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "t-1", got)
}

func TestInProcess_CancelStopsPendingTimer(t *testing.T) {
	t.Parallel()

	ran := false
	q := enqueue.NewInProcess(func(_ context.Context, _ string) {
		ran = true
	}, zerolog.Nop())

	require.NoError(t, q.Enqueue(context.Background(), "t-1", time.Now().Add(50*time.Millisecond)))
	q.Cancel("t-1")

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran)
}

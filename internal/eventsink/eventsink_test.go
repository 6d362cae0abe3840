package eventsink_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/eventsink"
)

func TestNop_Emit_NeverPanics(t *testing.T) {
	t.Parallel()

	var sink eventsink.EventSink = eventsink.Nop{}
	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), constants.EventTaskCompleted, map[string]any{"task_id": "t-1"})
	})
}

func TestLogSink_Emit_WritesStructuredLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sink := eventsink.NewLogSink(logger)
	require.NotNil(t, sink)

	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), constants.EventStepBackoff, map[string]any{
			"step_id": "s-1",
			"seconds": 5,
		})
	})
	assert.Contains(t, buf.String(), `"event":"step.backoff"`)
	assert.Contains(t, buf.String(), `"step_id":"s-1"`)
}

func TestLogSink_Emit_NilReceiverSafe(t *testing.T) {
	t.Parallel()

	var sink *eventsink.LogSink
	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), constants.EventTaskCompleted, nil)
	})
}

package eventsink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mrz1836/flowcore/internal/constants"
)

// LogSink turns every emitted event into a structured zerolog line. It
// never panics or returns an error into the core, mirroring the
// recover-record-continue contract of a best-effort hook dispatcher: a
// panic while formatting a payload is recovered and logged as a warning
// rather than propagated to the caller.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a LogSink. A zero-value zerolog.Logger is valid and
// discards output.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements EventSink.
func (s *LogSink) Emit(_ context.Context, name constants.EventName, payload map[string]any) {
	if s == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("recovered", r).Str("event", name.String()).Msg("eventsink: recovered panic while emitting event")
		}
	}()

	evt := s.logger.Info().Str("event", name.String())
	for k, v := range payload {
		evt = evt.Interface(k, v)
	}
	evt.Msg("event emitted")
}

var _ EventSink = (*LogSink)(nil)

// Package eventsink defines the observability port through which the core
// emits structured events, plus a no-op and a zerolog-backed implementation.
//
// Emit must never throw into the core: both implementations in this package
// recover panics and swallow errors internally (spec §6.4, §7 "Errors from
// EventSink are always swallowed").
package eventsink

import (
	"context"

	"github.com/mrz1836/flowcore/internal/constants"
)

// EventSink is the observability port consumed by StateMachine,
// DependencyResolver, StepExecutor, TaskFinalizer and WorkflowCoordinator.
type EventSink interface {
	// Emit records one occurrence of the named event with an opaque
	// payload. Implementations MUST be best-effort: Emit never panics and
	// never blocks the caller on a failed delivery.
	Emit(ctx context.Context, name constants.EventName, payload map[string]any)
}

// Nop is an EventSink that discards every event. It is the default used
// when no sink is configured.
type Nop struct{}

// Emit implements EventSink by doing nothing.
func (Nop) Emit(context.Context, constants.EventName, map[string]any) {}

var _ EventSink = Nop{}

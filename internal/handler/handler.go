// Package handler defines the StepHandler port (spec §6.2): the
// caller-supplied unit of work a Step invokes when it becomes viable.
package handler

import (
	"context"

	"github.com/mrz1836/flowcore/internal/domain"
)

// TaskContext is the read-only view of the owning Task passed to a handler.
type TaskContext struct {
	TaskID    string
	Name      string
	Namespace string
	Context   map[string]any
}

// StepHandler executes a single Step's work. Implementations MUST be
// idempotent: the executor may invoke Handle more than once for the same
// Step across retries or after a crash recovery (spec §4.4.5).
type StepHandler interface {
	// Handle runs the Step's work, given the owning Task's context and the
	// results produced by its already-completed parent Steps (keyed by
	// parent Step name).
	Handle(ctx context.Context, taskCtx TaskContext, parentResults map[string]domain.HandlerResult, step *domain.Step) (domain.HandlerResult, error)
}

// DependencyAware is implemented by handlers that declare which parent
// Step names their Handle call actually reads. Optional (spec §6.2
// "dependencies()"). The executor does not consult it: Handle receives the
// results of every parent listed in the Step's Parents.
type DependencyAware interface {
	Dependencies() []string
}

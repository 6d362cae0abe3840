package graph

import (
	"context"
	"sort"
	"time"

	"github.com/mrz1836/flowcore/internal/constants"
	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/eventsink"
)

// StepReader re-reads a single Step's latest persisted state, matching the
// Store port's reload_step operation (spec §6.1). The resolver uses it to
// pick up concurrent completions that happened since the graph was loaded.
type StepReader interface {
	ReloadStep(ctx context.Context, stepID string) (*domain.Step, error)
}

// Blocked describes a Step that cannot run because one of its parents is
// cancelled and the Step itself is not skippable (spec §4.2 edge cases).
type Blocked struct {
	Step           *domain.Step
	CancelledParent string
}

// DependencyResolver discovers the set of viable Steps in a StepGraph
// (spec §4.2).
type DependencyResolver struct {
	sink eventsink.EventSink
}

// NewDependencyResolver constructs a DependencyResolver.
func NewDependencyResolver(sink eventsink.EventSink) *DependencyResolver {
	if sink == nil {
		sink = eventsink.Nop{}
	}
	return &DependencyResolver{sink: sink}
}

// Resolve performs the one-linear-scan algorithm of spec §4.2: discard
// processed/in_process steps, re-read the remainder from the Store, and
// include a step iff invariant #7 holds. Viable steps are returned in
// dependency-level order, tie-broken by name.
func (r *DependencyResolver) Resolve(ctx context.Context, g *StepGraph, reader StepReader, now func() time.Time) ([]*domain.Step, []Blocked, error) {
	checked := 0
	viable := make([]*domain.Step, 0)
	blocked := make([]Blocked, 0)

	names := append([]string(nil), g.order...)
	sort.Slice(names, func(i, j int) bool {
		li, lj := g.levels[names[i]], g.levels[names[j]]
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		step := g.steps[name]
		if step.Processed || step.InProcess {
			continue
		}
		checked++

		latest := step
		if reader != nil {
			reloaded, err := reader.ReloadStep(ctx, step.StepID)
			if err == nil && reloaded != nil {
				latest = reloaded
				g.steps[name] = reloaded
			}
		}

		if latest.Processed || latest.InProcess || latest.CurrentState != domain.StepStatePending {
			continue
		}

		cancelledParent, allSatisfied := r.checkParents(g, latest)
		if cancelledParent != "" {
			blocked = append(blocked, Blocked{Step: latest, CancelledParent: cancelledParent})
			continue
		}
		if !allSatisfied {
			continue
		}

		if latest.BackoffUntil != nil && now != nil && latest.BackoffUntil.After(now()) {
			continue
		}

		viable = append(viable, latest)
	}

	if len(viable) > 0 {
		r.sink.Emit(ctx, constants.EventWorkflowViableStepsDiscovered, map[string]any{
			"count":    len(viable),
			"step_ids": stepIDs(viable),
		})
	} else {
		r.sink.Emit(ctx, constants.EventWorkflowNoViableSteps, map[string]any{"checked": checked})
	}

	return viable, blocked, nil
}

// checkParents reports, for a single step, the name of a cancelled parent
// that blocks it (empty if none), and whether every parent is
// terminal-success. A Skippable step with a cancelled parent is treated as
// satisfied (spec §9 open question resolution, see DESIGN.md).
func (r *DependencyResolver) checkParents(g *StepGraph, step *domain.Step) (string, bool) {
	for _, parentName := range step.Parents {
		parent, ok := g.steps[parentName]
		if !ok {
			continue
		}
		if parent.CurrentState == domain.StepStateCancelled && !step.Skippable {
			return parentName, false
		}
		if parent.CurrentState == domain.StepStateCancelled && step.Skippable {
			continue
		}
		if !terminalSuccess(parent.CurrentState) {
			return "", false
		}
	}
	return "", true
}

func terminalSuccess(s domain.StepState) bool {
	switch s {
	case domain.StepStateComplete, domain.StepStateResolvedManually, domain.StepStateCancelled:
		return true
	default:
		return false
	}
}

func stepIDs(steps []*domain.Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.StepID
	}
	return ids
}

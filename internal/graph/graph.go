// Package graph implements the per-Task StepGraph and the
// DependencyResolver's viable-step discovery algorithm (spec §3 "StepGraph",
// §4.2).
package graph

import (
	"fmt"
	"sort"

	"github.com/mrz1836/flowcore/internal/domain"
	flowerrors "github.com/mrz1836/flowcore/internal/errors"
)

// StepGraph is a Task's dependency view: adjacency list parents(step) and a
// derived children(step), plus a dependency level computed once at
// construction and never recomputed by the resolver (spec §4.2).
type StepGraph struct {
	TaskID   string
	steps    map[string]*domain.Step
	children map[string][]string
	levels   map[string]int
	// order is the deterministic step-name ordering used for DFS/leveling
	// and for the resolver's tie-break.
	order []string
}

// Steps returns the graph's steps keyed by name.
func (g *StepGraph) Steps() map[string]*domain.Step {
	return g.steps
}

// Children returns the non-owning children view for a step name.
func (g *StepGraph) Children(name string) []string {
	return g.children[name]
}

// Level returns the cached dependency level for a step name (0 for a step
// with no parents).
func (g *StepGraph) Level(name string) int {
	return g.levels[name]
}

// Build constructs a StepGraph from a Task's Steps, validating acyclicity
// and that every declared parent name exists. Cycle detection uses a DFS
// three-color traversal over steps sorted by name for determinism, grounded
// on the same algorithm used to validate structural graphs elsewhere in the
// retrieval corpus.
func Build(task *domain.Task) (*StepGraph, error) {
	if task == nil {
		return nil, &flowerrors.GraphCorruptedError{Kind: "nil_task"}
	}

	names := make([]string, 0, len(task.Steps))
	for name := range task.Steps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		step := task.Steps[name]
		for _, parent := range step.Parents {
			if _, ok := task.Steps[parent]; !ok {
				return nil, &flowerrors.GraphCorruptedError{
					TaskID: task.TaskID,
					Kind:   "dangling_parent",
					Msg:    fmt.Sprintf("step %q declares unknown parent %q", name, parent),
				}
			}
			if parent == name {
				return nil, &flowerrors.GraphCorruptedError{
					TaskID: task.TaskID,
					Kind:   "self_reference",
					Msg:    fmt.Sprintf("step %q lists itself as a parent", name),
				}
			}
		}
	}

	children := make(map[string][]string, len(names))
	for _, name := range names {
		for _, parent := range task.Steps[name].Parents {
			children[parent] = append(children[parent], name)
		}
	}
	for parent := range children {
		sort.Strings(children[parent])
	}

	if cyclePath, ok := detectCycle(names, task.Steps); ok {
		return nil, &flowerrors.GraphCorruptedError{
			TaskID: task.TaskID,
			Kind:   "cycle",
			Msg:    fmt.Sprintf("cycle detected: %v", cyclePath),
		}
	}

	levels := computeLevels(names, task.Steps)

	return &StepGraph{
		TaskID:   task.TaskID,
		steps:    task.Steps,
		children: children,
		levels:   levels,
		order:    names,
	}, nil
}

// detectCycle runs a DFS with three-color marking (0=white, 1=gray,
// 2=black) over the parent edges, visiting step names in sorted order for
// deterministic cycle-path reporting.
func detectCycle(names []string, steps map[string]*domain.Step) ([]string, bool) {
	color := make(map[string]int, len(names))
	var path []string
	var cyclePath []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = 1
		path = append(path, name)

		parents := append([]string(nil), steps[name].Parents...)
		sort.Strings(parents)

		for _, parent := range parents {
			switch color[parent] {
			case 1:
				start := 0
				for i, n := range path {
					if n == parent {
						start = i
						break
					}
				}
				cyclePath = append(append([]string(nil), path[start:]...), parent)
				return true
			case 0:
				if dfs(parent) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = 2
		return false
	}

	for _, name := range names {
		if color[name] == 0 {
			if dfs(name) {
				return cyclePath, true
			}
		}
	}
	return nil, false
}

// computeLevels assigns each step a dependency level equal to one more than
// the maximum level of its parents (0 for a step with no parents), via a
// memoized recursive walk over the already-validated-acyclic parent edges.
func computeLevels(names []string, steps map[string]*domain.Step) map[string]int {
	levels := make(map[string]int, len(names))

	var level func(name string) int
	level = func(name string) int {
		if l, ok := levels[name]; ok {
			return l
		}
		maxParent := -1
		for _, parent := range steps[name].Parents {
			if l := level(parent); l > maxParent {
				maxParent = l
			}
		}
		l := maxParent + 1
		levels[name] = l
		return l
	}

	for _, name := range names {
		level(name)
	}
	return levels
}

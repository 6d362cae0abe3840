package cli

import (
	"fmt"
	"time"

	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/idgen"
)

// newSampleTask builds a four-step order-processing Task: fetch_order runs
// first, charge_payment depends on it, and ship_order/notify_customer both
// depend on charge_payment and run concurrently.
func newSampleTask(now time.Time) (*domain.Task, error) {
	taskID, err := idgen.NewTaskID()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}

	steps := map[string]*domain.Step{}
	for name, parents := range map[string][]string{
		"fetch_order":     nil,
		"charge_payment":  {"fetch_order"},
		"ship_order":      {"charge_payment"},
		"notify_customer": {"charge_payment"},
	} {
		stepID, serr := idgen.NewStepID()
		if serr != nil {
			return nil, fmt.Errorf("generate step id for %s: %w", name, serr)
		}
		steps[name] = &domain.Step{
			StepID:       stepID,
			TaskID:       taskID,
			Name:         name,
			HandlerName:  name,
			Parents:      parents,
			CurrentState: domain.StepStatePending,
			RetryLimit:   3,
			Retryable:    true,
		}
	}

	return &domain.Task{
		TaskID:       taskID,
		Name:         "order_processing",
		Namespace:    "demo",
		Version:      "v1",
		Context:      map[string]any{"order_id": "ORD-1001"},
		IdentityHash: taskID,
		CurrentState: domain.TaskStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Steps:        steps,
	}, nil
}

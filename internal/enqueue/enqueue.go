// Package enqueue defines the Enqueuer port (spec §6.3): scheduling a Task
// for (re-)pickup by the WorkflowCoordinator at or after a given instant.
package enqueue

import (
	"context"
	"time"
)

// Enqueuer schedules a Task for pickup. Implementations MAY run the Task
// immediately if at is in the past or zero.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID string, at time.Time) error
}

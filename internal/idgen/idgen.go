// Package idgen generates identifiers for Tasks and Steps.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// NewTaskID generates a new Task identifier.
func NewTaskID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	return "task-" + id.String(), nil
}

// NewStepID generates a new Step identifier.
func NewStepID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate step id: %w", err)
	}
	return "step-" + id.String(), nil
}

// Package domain provides shared domain types for the flowcore workflow
// engine. These types are used across all internal packages to ensure
// consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import "github.com/mrz1836/flowcore/internal/constants"

// Re-export TaskState and StepState from constants so consumers only need
// to import domain for both types and status values.
type (
	// TaskState represents the current state of a Task.
	TaskState = constants.TaskState

	// StepState represents the current state of a Step.
	StepState = constants.StepState
)

// Re-exported TaskState values.
const (
	TaskStatePending          = constants.TaskStatePending
	TaskStateInProgress       = constants.TaskStateInProgress
	TaskStateComplete         = constants.TaskStateComplete
	TaskStateError            = constants.TaskStateError
	TaskStateCancelled        = constants.TaskStateCancelled
	TaskStateResolvedManually = constants.TaskStateResolvedManually
)

// Re-exported StepState values.
const (
	StepStatePending          = constants.StepStatePending
	StepStateInProgress       = constants.StepStateInProgress
	StepStateComplete         = constants.StepStateComplete
	StepStateError            = constants.StepStateError
	StepStateResolvedManually = constants.StepStateResolvedManually
	StepStateCancelled        = constants.StepStateCancelled
)

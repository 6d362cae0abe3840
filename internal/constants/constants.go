// Package constants provides centralized constant values used throughout flowcore.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// EventName is a closed namespace of observability events the core emits
// through the EventSink port. New event names MUST be added here rather
// than constructed ad hoc at call sites.
type EventName string

// Task-scoped events.
const (
	EventTaskInitializeRequested EventName = "task.initialize_requested"
	EventTaskStartRequested      EventName = "task.start_requested"
	EventTaskCompleted           EventName = "task.completed"
	EventTaskFailed              EventName = "task.failed"
	EventTaskRetryRequested      EventName = "task.retry_requested"
	EventTaskResolvedManually    EventName = "task.resolved_manually"
	EventTaskCancelled           EventName = "task.cancelled"
	EventTaskBeforeTransition    EventName = "task.before_transition"
)

// Step-scoped events (mirror the task shape, plus execution/backoff).
const (
	EventStepInitializeRequested EventName = "step.initialize_requested"
	EventStepStartRequested      EventName = "step.start_requested"
	EventStepCompleted           EventName = "step.completed"
	EventStepFailed              EventName = "step.failed"
	EventStepRetryRequested      EventName = "step.retry_requested"
	EventStepResolvedManually    EventName = "step.resolved_manually"
	EventStepCancelled           EventName = "step.cancelled"
	EventStepBeforeTransition    EventName = "step.before_transition"
	EventStepExecutionRequested  EventName = "step.execution_requested"
	EventStepBackoff             EventName = "step.backoff"
)

// Workflow-scoped (coordinator/finalizer) events.
const (
	EventWorkflowTaskStarted              EventName = "workflow.task_started"
	EventWorkflowViableStepsDiscovered    EventName = "workflow.viable_steps_discovered"
	EventWorkflowNoViableSteps            EventName = "workflow.no_viable_steps"
	EventWorkflowStepsExecutionStarted    EventName = "workflow.steps_execution_started"
	EventWorkflowStepsExecutionCompleted  EventName = "workflow.steps_execution_completed"
	EventWorkflowTaskFinalizationStarted  EventName = "workflow.task_finalization_started"
	EventWorkflowTaskFinalizationComplete EventName = "workflow.task_finalization_completed"
	EventWorkflowTaskReenqueueRequested   EventName = "workflow.task_reenqueue_requested"
	EventWorkflowTaskStateUnclear         EventName = "workflow.task_state_unclear"
)

// String implements fmt.Stringer.
func (e EventName) String() string {
	return string(e)
}

// Backoff policy defaults (spec §4.3).
const (
	// DefaultBaseDelay is the delay used for a first retry attempt absent
	// a server-directed hint.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMultiplier is the exponential growth factor applied per attempt.
	DefaultMultiplier = 2.0

	// DefaultMinDelay is the absolute floor for any computed backoff.
	DefaultMinDelay = 500 * time.Millisecond

	// DefaultMaxDelay is the absolute ceiling for any computed backoff,
	// including server-directed hints, absent a narrower MaxDelay override.
	DefaultMaxDelay = 1 * time.Hour

	// DefaultJitterMaxPercentage bounds the +/- jitter applied to a computed
	// delay when jitter is enabled.
	DefaultJitterMaxPercentage = 0.1

	// MaxServerBackoff is the ceiling applied to a server-directed
	// Retry-After hint only when the policy's MaxDelay is zero; otherwise
	// MaxDelay is the clamp (see DESIGN.md Open Question resolution).
	MaxServerBackoff = 1 * time.Hour
)

// StepExecutor concurrency and timeout defaults (spec §4.4.1, §4.4.2).
const (
	// DefaultMinConcurrentSteps is the floor of the dynamic concurrency
	// budget, also the fallback when load/pool signals are unavailable.
	DefaultMinConcurrentSteps = 1

	// DefaultMaxConcurrentSteps is the ceiling of the dynamic concurrency
	// budget regardless of load/pool signals.
	DefaultMaxConcurrentSteps = 16

	// ConnectionPoolSafetyMarginPercent is the fraction of the connection
	// pool reserved and never counted toward the concurrency budget.
	ConnectionPoolSafetyMarginPercent = 0.20

	// MinReservedConnections is the minimum number of connections reserved
	// regardless of pool size.
	MinReservedConnections = 2

	// ConcurrencyCacheTTL bounds how long a computed concurrency budget is
	// reused before being recomputed from fresh load/pool signals.
	ConcurrencyCacheTTL = 5 * time.Second

	// BaseBatchTimeout is the per-step deadline floor before growing with
	// chunk size.
	BaseBatchTimeout = 30 * time.Second

	// PerStepTimeoutIncrement is added to the batch timeout once per step
	// in the batch.
	PerStepTimeoutIncrement = 5 * time.Second

	// MaxBatchTimeout bounds calculate_batch_timeout regardless of chunk size.
	MaxBatchTimeout = 10 * time.Minute

	// DefaultFutureCleanupWait is a grace period for in-flight steps after a
	// batch cancellation. The executor does not read it: Execute waits for
	// every started step to return, with no bound.
	DefaultFutureCleanupWait = 10 * time.Second

	// DefaultRetryLimit is a retry limit for newly built Steps. No core
	// package reads it; a Step whose RetryLimit is zero is not given this
	// value and counts as exhausted after its first failure.
	DefaultRetryLimit = 3
)

// DefaultReenqueueDelay is used by TaskFinalizer's re-enqueue outcome when no
// pending Step carries a backoff_until.
const DefaultReenqueueDelay = 1 * time.Second

// TimeoutErrorMessage is the canonical error text used when a step is
// abandoned for exceeding its deadline (spec §4.4.2 step 7).
const TimeoutErrorMessage = "timeout"

// Package errors provides centralized error handling for flowcore.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the core: InvalidTransition, GraphCorrupted, PermanentError,
// RetryableError, StoreFailure and InvalidBackoff. All error types can be
// checked with errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal package.
// Only standard library imports are allowed.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for error categorization. Callers check error kind with
// errors.Is(err, errors.ErrX); typed wrappers below carry structured detail
// and unwrap to these sentinels.
var (
	// ErrInvalidTransition indicates an attempt to apply a transition not
	// listed in the StateMachine's transition table, or to transition an
	// entity that does not satisfy a domain guard (e.g. Task → complete
	// while a Step is not terminal-success).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGraphCorrupted indicates graph.Build found a cycle, a dangling or
	// self-referencing parent, or a nil Task while building a Task's
	// StepGraph. It is fatal for the Task. An unknown handler name is not
	// reported this way: StepExecutor records it as a PermanentError with
	// code E_UNKNOWN_HANDLER on the Step.
	ErrGraphCorrupted = errors.New("graph corrupted")

	// ErrPermanent indicates a Step handler raised a non-retryable error;
	// the Step is moved to error with its retry budget exhausted.
	ErrPermanent = errors.New("permanent step error")

	// ErrRetryable indicates a Step handler raised (or is assumed to have
	// raised) a transient error; the Step is retried per BackoffPolicy as
	// long as attempts remain and retryable is true.
	ErrRetryable = errors.New("retryable step error")

	// ErrStoreFailure indicates the Store port failed mid-operation. The
	// current batch is aborted and the Task is re-enqueued with backoff;
	// no partial state is observable since every mutation is transactional.
	ErrStoreFailure = errors.New("store failure")

	// ErrInvalidBackoff indicates a server-directed retry hint could not be
	// parsed or specified a negative delay. Never fatal: BackoffPolicy
	// falls back to the exponential computation.
	ErrInvalidBackoff = errors.New("invalid backoff hint")
)

// InvalidTransitionError reports a rejected transition attempt.
// Wraps ErrInvalidTransition for errors.Is() compatibility.
type InvalidTransitionError struct {
	// Entity identifies the kind of entity involved: "task" or "step".
	Entity string
	// ID is the task_id or step_id that rejected the transition.
	ID string
	// From and To are the attempted transition endpoints.
	From string
	To   string
	// Reason explains why the transition was rejected when it is not a
	// simple "not in the table" case (e.g. a failed domain guard).
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return ErrInvalidTransition.Error()
	}
	msg := ErrInvalidTransitionMessage(e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		return msg + ": " + e.Reason
	}
	return msg
}

// ErrInvalidTransitionMessage formats the common "cannot transition" prefix
// so StateMachine and its tests produce identical text.
func ErrInvalidTransitionMessage(entity, id, from, to string) string {
	return ErrInvalidTransition.Error() + ": " + entity + " " + id + " " + from + " -> " + to
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// GraphCorruptedError reports a structural defect in a Task's StepGraph.
// Wraps ErrGraphCorrupted for errors.Is() compatibility.
type GraphCorruptedError struct {
	TaskID string
	// Kind classifies the defect: "cycle", "dangling_parent",
	// "self_reference", "nil_task".
	Kind string
	Msg  string
}

func (e *GraphCorruptedError) Error() string {
	if e == nil {
		return ErrGraphCorrupted.Error()
	}
	if e.Msg == "" {
		return ErrGraphCorrupted.Error() + ": " + e.Kind + " in task " + e.TaskID
	}
	return ErrGraphCorrupted.Error() + ": " + e.Kind + " in task " + e.TaskID + ": " + e.Msg
}

func (e *GraphCorruptedError) Unwrap() error { return ErrGraphCorrupted }

// PermanentError is raised by a Step handler to indicate the failure will
// never succeed on retry (spec.md §4.4.3, §6.3). StepExecutor exhausts the
// Step's retry budget and transitions it to error.
type PermanentError struct {
	// Code is a short machine-readable classification (e.g. "E_VALIDATION").
	Code string
	// Context carries arbitrary handler-supplied detail persisted into
	// the Step's results.
	Context map[string]any
	// Cause is the underlying error, if any.
	Cause error
}

func (e *PermanentError) Error() string {
	if e == nil {
		return ErrPermanent.Error()
	}
	if e.Cause != nil {
		return ErrPermanent.Error() + " [" + e.Code + "]: " + e.Cause.Error()
	}
	return ErrPermanent.Error() + " [" + e.Code + "]"
}

// Unwrap exposes both the sentinel and the underlying cause so callers can
// match on either with errors.Is.
func (e *PermanentError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrPermanent, e.Cause}
	}
	return []error{ErrPermanent}
}

// RetryableError is raised by a Step handler to indicate the failure may
// succeed on a later attempt (spec.md §4.4.3, §6.3). An unrecognized
// handler exception is treated as a RetryableError with no hint.
type RetryableError struct {
	// RetryAfter is an optional server-directed hint: either digits
	// representing a count of seconds, or an HTTP-date per RFC 1123.
	// Empty means "no hint; use the exponential policy".
	RetryAfter string
	// Context carries arbitrary handler-supplied detail persisted into
	// the Step's results.
	Context map[string]any
	// Cause is the underlying error, if any.
	Cause error
}

func (e *RetryableError) Error() string {
	if e == nil {
		return ErrRetryable.Error()
	}
	if e.Cause != nil {
		return ErrRetryable.Error() + ": " + e.Cause.Error()
	}
	return ErrRetryable.Error()
}

func (e *RetryableError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrRetryable, e.Cause}
	}
	return []error{ErrRetryable}
}

// StoreFailureError reports a failed Store port operation.
// Wraps ErrStoreFailure for errors.Is() compatibility.
type StoreFailureError struct {
	// Op names the Store operation that failed (e.g. "save_step", "transaction").
	Op    string
	Cause error
}

func (e *StoreFailureError) Error() string {
	if e == nil {
		return ErrStoreFailure.Error()
	}
	if e.Cause != nil {
		return ErrStoreFailure.Error() + " during " + e.Op + ": " + e.Cause.Error()
	}
	return ErrStoreFailure.Error() + " during " + e.Op
}

func (e *StoreFailureError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrStoreFailure, e.Cause}
	}
	return []error{ErrStoreFailure}
}

// HTTPStatusError is raised by a Step handler whose failure came from an
// HTTP response, letting StepExecutor classify it by status code (spec
// §4.4.3): {429,503} retryable-with-hint, {400,401,403,404,422} permanent,
// other 5xx retryable-without-forced-backoff.
type HTTPStatusError struct {
	StatusCode int
	// RetryAfter carries the response's Retry-After header value verbatim,
	// if present.
	RetryAfter string
	Cause      error
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	msg := fmt.Sprintf("http status error: %d", e.StatusCode)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *HTTPStatusError) Unwrap() error { return e.Cause }

// InvalidBackoffError reports a malformed or out-of-range server-directed
// retry hint. Wraps ErrInvalidBackoff for errors.Is() compatibility.
type InvalidBackoffError struct {
	Hint   string
	Reason string
}

func (e *InvalidBackoffError) Error() string {
	if e == nil {
		return ErrInvalidBackoff.Error()
	}
	return ErrInvalidBackoff.Error() + " (" + e.Hint + "): " + e.Reason
}

func (e *InvalidBackoffError) Unwrap() error { return ErrInvalidBackoff }

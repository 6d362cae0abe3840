// Package store defines the persistence port consumed by the core (spec
// §6.1) and a non-durable in-memory reference implementation for tests and
// the demo CLI.
package store

import (
	"context"

	"github.com/mrz1836/flowcore/internal/domain"
)

// Txn is an opaque transaction handle passed to operations that must be
// atomic with respect to each other (spec §6.1 "transaction(&block)").
// The in-memory Store's Txn only records whether its Transaction has
// ended; MemStore does not hold its mutex for the lifetime of the
// transaction.
type Txn interface {
	// done reports whether the transaction has already been committed or
	// rolled back; unexported because only this package's Store
	// implementations may construct a Txn.
	done() bool
}

// HealthCounts reports task/step counts by state, consumed by StepExecutor
// for load-aware concurrency sizing (spec §4.4.1).
type HealthCounts struct {
	TasksInProgress int
	TasksPending    int
	StepsInProgress int
	StepsPending    int
}

// Store is the persistence port the core depends on. Implementations MUST
// make AppendTransition idempotent against a repeated identical
// (from, to) pair, and MUST make the save+transition pair inside
// Transaction atomic (spec §4.4.5 "idempotency linchpin").
type Store interface {
	// LoadTask loads a Task and its Steps.
	LoadTask(ctx context.Context, taskID string) (*domain.Task, error)

	// SaveTask persists a Task, including newly created Steps. Used when a
	// Task is first stored and by WorkflowCoordinator after a Task-level
	// transition.
	SaveTask(ctx context.Context, task *domain.Task) error

	// ReloadStep re-reads a single Step's latest persisted state.
	ReloadStep(ctx context.Context, stepID string) (*domain.Step, error)

	// AppendTransition appends an immutable transition record within txn.
	AppendTransition(ctx context.Context, record domain.TransitionRecord, txn Txn) error

	// SaveStep persists a Step's mutable columns within txn.
	SaveStep(ctx context.Context, step *domain.Step, txn Txn) error

	// Transaction runs fn with a Txn that scopes the save+transition pair
	// atomically; any error returned by fn aborts the transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, txn Txn) error) error

	// ConnectionPoolSize reports the configured size of the shared
	// connection pool, for dynamic concurrency calculation.
	ConnectionPoolSize(ctx context.Context) (int, error)

	// ConnectionActive reports whether the Store can currently serve a
	// connection.
	ConnectionActive(ctx context.Context) bool

	// SystemHealthCounts reports task/step counts by state. Optional: a
	// Store MAY return a zero HealthCounts and a non-nil error to signal
	// "unavailable", in which case the executor falls back to the
	// concurrency floor.
	SystemHealthCounts(ctx context.Context) (HealthCounts, error)

	// FindByIdentity looks up a previously created Task by its dedup key
	// (spec.md §3 Task.identity_hash; SPEC_FULL.md §5).
	FindByIdentity(ctx context.Context, namespace, name, identityHash string) (*domain.Task, bool, error)
}

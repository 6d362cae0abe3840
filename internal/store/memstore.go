package store

import (
	"context"
	"sync"
	"time"

	flowerrors "github.com/mrz1836/flowcore/internal/errors"

	"github.com/mrz1836/flowcore/internal/domain"
)

// memTxn is the in-memory Store's Txn: it only records whether its
// Transaction has ended. Each MemStore call takes the mutex on its own;
// Transaction runs the closure without holding it and does not undo writes
// already made when the closure returns an error.
type memTxn struct{ closed bool }

func (t *memTxn) done() bool { return t.closed }

// MemStore is a non-durable, mutex-guarded in-memory Store. It exists for
// tests and the demo CLI: a production deployment supplies its own Store
// backed by a real database, which the abstract port in store.go
// deliberately leaves unspecified.
type MemStore struct {
	mu          sync.Mutex
	tasks       map[string]*domain.Task
	transitions []domain.TransitionRecord
	identityIdx map[string]string // namespace|name|identity_hash -> task_id
	poolSize    int
	connActive  bool
}

// NewMemStore constructs an empty MemStore with a usable default connection
// pool size.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:       make(map[string]*domain.Task),
		identityIdx: make(map[string]string),
		poolSize:    10,
		connActive:  true,
	}
}

// SetConnectionPoolSize overrides the simulated pool size, for exercising
// StepExecutor's dynamic concurrency calculation in tests.
func (m *MemStore) SetConnectionPoolSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolSize = size
}

// SetConnectionActive toggles the simulated connectivity signal.
func (m *MemStore) SetConnectionActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connActive = active
}

func identityKey(namespace, name, hash string) string {
	return namespace + "|" + name + "|" + hash
}

// LoadTask implements Store.
func (m *MemStore) LoadTask(_ context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, &flowerrors.StoreFailureError{Op: "load_task", Cause: flowerrors.ErrStoreFailure}
	}
	return cloneTask(task), nil
}

// SaveTask implements Store.
func (m *MemStore) SaveTask(_ context.Context, task *domain.Task) error {
	if task == nil {
		return &flowerrors.StoreFailureError{Op: "save_task", Cause: flowerrors.ErrStoreFailure}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[task.TaskID] = cloneTask(task)
	if task.IdentityHash != "" {
		m.identityIdx[identityKey(task.Namespace, task.Name, task.IdentityHash)] = task.TaskID
	}
	return nil
}

// ReloadStep implements Store.
func (m *MemStore) ReloadStep(_ context.Context, stepID string) (*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.tasks {
		for _, step := range task.Steps {
			if step.StepID == stepID {
				clone := *step
				return &clone, nil
			}
		}
	}
	return nil, &flowerrors.StoreFailureError{Op: "reload_step", Cause: flowerrors.ErrStoreFailure}
}

// AppendTransition implements Store. Idempotent against an immediately
// repeated identical (entity_id, from, to) pair.
func (m *MemStore) AppendTransition(_ context.Context, record domain.TransitionRecord, txn Txn) error {
	if txn == nil || txn.done() {
		return &flowerrors.StoreFailureError{Op: "append_transition", Cause: flowerrors.ErrStoreFailure}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.transitions); n > 0 {
		last := m.transitions[n-1]
		if last.EntityID == record.EntityID && last.FromState == record.FromState && last.ToState == record.ToState {
			return nil
		}
	}
	m.transitions = append(m.transitions, record)
	return nil
}

// SaveStep implements Store.
func (m *MemStore) SaveStep(_ context.Context, step *domain.Step, txn Txn) error {
	if txn == nil || txn.done() {
		return &flowerrors.StoreFailureError{Op: "save_step", Cause: flowerrors.ErrStoreFailure}
	}
	if step == nil {
		return &flowerrors.StoreFailureError{Op: "save_step", Cause: flowerrors.ErrStoreFailure}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[step.TaskID]
	if !ok {
		return &flowerrors.StoreFailureError{Op: "save_step", Cause: flowerrors.ErrStoreFailure}
	}
	clone := *step
	task.Steps[step.Name] = &clone
	return nil
}

// Transaction implements Store.
func (m *MemStore) Transaction(ctx context.Context, fn func(ctx context.Context, txn Txn) error) error {
	txn := &memTxn{}
	defer func() { txn.closed = true }()
	if err := fn(ctx, txn); err != nil {
		return err
	}
	return nil
}

// ConnectionPoolSize implements Store.
func (m *MemStore) ConnectionPoolSize(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poolSize, nil
}

// ConnectionActive implements Store.
func (m *MemStore) ConnectionActive(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connActive
}

// SystemHealthCounts implements Store.
func (m *MemStore) SystemHealthCounts(_ context.Context) (HealthCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counts HealthCounts
	for _, task := range m.tasks {
		switch task.CurrentState {
		case domain.TaskStateInProgress:
			counts.TasksInProgress++
		case domain.TaskStatePending:
			counts.TasksPending++
		}
		for _, step := range task.Steps {
			switch step.CurrentState {
			case domain.StepStateInProgress:
				counts.StepsInProgress++
			case domain.StepStatePending:
				counts.StepsPending++
			}
		}
	}
	return counts, nil
}

// FindByIdentity implements Store.
func (m *MemStore) FindByIdentity(_ context.Context, namespace, name, identityHash string) (*domain.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	taskID, ok := m.identityIdx[identityKey(namespace, name, identityHash)]
	if !ok {
		return nil, false, nil
	}
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, false, nil
	}
	return cloneTask(task), true, nil
}

func cloneTask(task *domain.Task) *domain.Task {
	clone := *task
	clone.Steps = make(map[string]*domain.Step, len(task.Steps))
	for name, step := range task.Steps {
		stepClone := *step
		clone.Steps[name] = &stepClone
	}
	return &clone
}

var _ Store = (*MemStore)(nil)

// Now is a small helper re-exported so callers constructing test fixtures
// don't need to import time directly just to stamp a Task.
func Now() time.Time { return time.Now().UTC() }

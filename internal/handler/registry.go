package handler

import (
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateHandlerName is returned by Registry.Register when a handler
// name is already taken.
var ErrDuplicateHandlerName = fmt.Errorf("handler name already registered")

// Registry resolves a Step's handler_name to a StepHandler. Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]StepHandler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]StepHandler)}
}

// Register adds a handler under name, rejecting duplicates.
func (r *Registry) Register(name string, h StepHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandlerName, name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup resolves name to its registered StepHandler.
func (r *Registry) Lookup(name string) (StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

// Names returns every registered handler name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

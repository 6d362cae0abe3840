package executor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mrz1836/flowcore/internal/constants"
)

// concurrencyCache memoizes the computed concurrency budget for
// ConcurrencyCacheTTL so a busy coordinator does not re-read load/pool
// signals on every batch (spec §4.4.1 "cached briefly").
type concurrencyCache struct {
	mu         sync.Mutex
	value      int
	computedAt time.Time
}

func (c *concurrencyCache) get(ttl time.Duration, now time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.computedAt.IsZero() || now.Sub(c.computedAt) > ttl {
		return 0, false
	}
	return c.value, true
}

func (c *concurrencyCache) set(value int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.computedAt = now
}

// concurrency computes max_concurrent_steps per spec §4.4.1: the minimum of
// a load-derived budget and a pool-derived budget, clamped to
// [MinConcurrentSteps, MaxConcurrentSteps], cached for ConcurrencyCacheTTL.
func (e *Executor) concurrency(ctx context.Context) int {
	now := e.now()
	if v, ok := e.concCache.get(constants.ConcurrencyCacheTTL, now); ok {
		return v
	}

	v := e.computeConcurrency(ctx)
	e.concCache.set(v, now)
	return v
}

func (e *Executor) computeConcurrency(ctx context.Context) int {
	if !e.store.ConnectionActive(ctx) {
		return e.cfg.MinConcurrentSteps
	}

	loadDerived := e.loadDerivedBudget(ctx)
	poolDerived := e.poolDerivedBudget(ctx)

	v := loadDerived
	if poolDerived < v {
		v = poolDerived
	}
	return clamp(v, e.cfg.MinConcurrentSteps, e.cfg.MaxConcurrentSteps)
}

// loadDerivedBudget shrinks the budget as the number of already in-flight
// steps grows, falling back to the floor when health counts are unavailable.
func (e *Executor) loadDerivedBudget(ctx context.Context) int {
	counts, err := e.store.SystemHealthCounts(ctx)
	if err != nil {
		return e.cfg.MinConcurrentSteps
	}
	remaining := e.cfg.MaxConcurrentSteps - counts.StepsInProgress
	return clamp(remaining, e.cfg.MinConcurrentSteps, e.cfg.MaxConcurrentSteps)
}

// poolDerivedBudget reserves a safety margin (>= 20%, >= MinReservedConnections)
// of the Store's connection pool and never counts it toward the budget.
func (e *Executor) poolDerivedBudget(ctx context.Context) int {
	size, err := e.store.ConnectionPoolSize(ctx)
	if err != nil || size <= 0 {
		return e.cfg.MinConcurrentSteps
	}

	reserve := int(math.Ceil(float64(size) * constants.ConnectionPoolSafetyMarginPercent))
	if reserve < constants.MinReservedConnections {
		reserve = constants.MinReservedConnections
	}

	available := size - reserve
	return clamp(available, e.cfg.MinConcurrentSteps, e.cfg.MaxConcurrentSteps)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// calculateBatchTimeout grows the batch handler deadline with the number of
// Steps in the batch, bounded to prevent a runaway batch from hanging
// indefinitely (spec §4.4.2 step 4).
func calculateBatchTimeout(chunkSize int) time.Duration {
	d := constants.BaseBatchTimeout + time.Duration(chunkSize)*constants.PerStepTimeoutIncrement
	if d > constants.MaxBatchTimeout {
		d = constants.MaxBatchTimeout
	}
	return d
}

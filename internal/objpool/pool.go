// Package objpool implements a thread-safe LIFO stack of reusable handles,
// guarded by a spin lock around its (constant-time) push/pop operations.
//
// Two objpool.Pool instances, one for free handles and one for full ones,
// are all that the collator's buffer pool needs: ownership of a handle
// passes between the two pools and back, never shared.
package objpool

import (
	"sync/atomic"

	"github.com/jamshed/key-value-collator/internal/spinlock"
)

// Pool is a generic collection of handles of type T, safe for concurrent
// push and fetch from any number of goroutines.
type Pool[T any] struct {
	mu    spinlock.Mutex
	items []T
	size  atomic.Int64
}

// Push adds obj to the pool.
func (p *Pool[T]) Push(obj T) {
	p.mu.Lock()
	p.items = append(p.items, obj)
	p.size.Add(1)
	p.mu.Unlock()
}

// Empty reports whether the pool is empty. The read is advisory: it is
// taken without the lock, so callers that require progress (not just a
// snapshot) must loop on Fetch rather than trust a single Empty check.
func (p *Pool[T]) Empty() bool {
	return p.size.Load() == 0
}

// Size returns the number of items currently in the pool. Like Empty, this
// is an unlocked, advisory read.
func (p *Pool[T]) Size() int64 {
	return p.size.Load()
}

// Fetch attempts to pop the most recently pushed item. It returns the zero
// value and false if the pool was empty.
func (p *Pool[T]) Fetch() (T, bool) {
	var zero T
	if p.Empty() {
		return zero, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.items)
	if n == 0 {
		return zero, false
	}

	obj := p.items[n-1]
	p.items[n-1] = zero // avoid retaining a reference inside the backing array
	p.items = p.items[:n-1]
	p.size.Add(-1)

	return obj, true
}

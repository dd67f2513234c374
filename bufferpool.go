package collator

import (
	"github.com/jamshed/key-value-collator/internal/objpool"
)

// bufferPool mediates producer-to-mapper handoff through two linked
// object pools: free buffers (empty, ready for a producer to fill) and
// full buffers (filled, awaiting the mapper). No buffer is ever a member
// of both pools at once — spec.md §3 invariant 1.
type bufferPool[K Key, V any] struct {
	free objpool.Pool[[]Pair[K, V]]
	full objpool.Pool[[]Pair[K, V]]
}

// newBufferPool pre-populates the free pool with count buffers of the
// given capacity.
func newBufferPool[K Key, V any](count, bufCapacity int) *bufferPool[K, V] {
	bp := &bufferPool[K, V]{}
	for range count {
		bp.free.Push(make([]Pair[K, V], 0, bufCapacity))
	}
	return bp
}

// checkoutFree busy-waits until a free buffer is available, then returns
// it. This is the system's intentional back-pressure: a burst of
// producers outrunning the mapper blocks here instead of growing memory
// without bound.
func (bp *bufferPool[K, V]) checkoutFree() []Pair[K, V] {
	for {
		if buf, ok := bp.free.Fetch(); ok {
			return buf
		}
	}
}

// returnFull enqueues a producer-filled buffer for the mapper to drain.
func (bp *bufferPool[K, V]) returnFull(buf []Pair[K, V]) {
	bp.full.Push(buf)
}

// fetchFull attempts to pop a full buffer for the mapper. Reports false
// if none is currently queued.
func (bp *bufferPool[K, V]) fetchFull() ([]Pair[K, V], bool) {
	return bp.full.Fetch()
}

// returnFree gives a drained buffer back to the free pool.
func (bp *bufferPool[K, V]) returnFree(buf []Pair[K, V]) {
	bp.free.Push(buf[:0])
}

// freeCount and fullCount expose advisory sizes for invariant checks
// (spec.md §8 invariant 7: |free| + |full| + |checked_out| = K).
func (bp *bufferPool[K, V]) freeCount() int64 { return bp.free.Size() }
func (bp *bufferPool[K, V]) fullCount() int64 { return bp.full.Size() }

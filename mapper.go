package collator

import (
	"sync/atomic"
)

// mapper is the single background worker that drains full producer
// buffers into the partition stores, described in spec.md §4.E. Only the
// mapper goroutine ever writes to a partitionStore during ingest, so no
// per-partition lock is needed.
type mapper[K Key, V any] struct {
	pool           *bufferPool[K, V]
	partitions     []*partitionStore[K, V]
	hasher         Hasher[K]
	partitionCount uint32

	streamIncoming atomic.Bool
	done           chan error
}

func newMapper[K Key, V any](pool *bufferPool[K, V], partitions []*partitionStore[K, V], hasher Hasher[K], partitionCount uint32) *mapper[K, V] {
	m := &mapper[K, V]{
		pool:           pool,
		partitions:     partitions,
		hasher:         hasher,
		partitionCount: partitionCount,
		done:           make(chan error, 1),
	}
	m.streamIncoming.Store(true)
	return m
}

// start launches the mapper's drain loop in its own goroutine.
func (m *mapper[K, V]) start() {
	go m.run()
}

func (m *mapper[K, V]) run() {
	for m.streamIncoming.Load() || m.pool.fullCount() > 0 {
		buf, ok := m.pool.fetchFull()
		if !ok {
			continue
		}
		if err := m.mapBuffer(buf); err != nil {
			m.done <- err
			return
		}
		m.pool.returnFree(buf)
	}
	m.done <- nil
}

// mapBuffer routes every pair in buf to the partition store selected by
// hash(key) & (P-1).
func (m *mapper[K, V]) mapBuffer(buf []Pair[K, V]) error {
	for _, pair := range buf {
		pID := partitionOf(m.hasher, pair.Key, m.partitionCount)
		if err := m.partitions[pID].append(pair); err != nil {
			return err
		}
	}
	return nil
}

// stop signals the stream as closed and waits for the drain loop to exit,
// the Go analogue of setting stream_incoming=false and joining the
// mapper thread.
func (m *mapper[K, V]) stop() error {
	m.streamIncoming.Store(false)
	return <-m.done
}

package collator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	collatorerrors "github.com/jamshed/key-value-collator/errors"
	"github.com/sirupsen/logrus"
)

// collatorState is the facade's monotone lifecycle, spec.md §4.H.
type collatorState int32

const (
	stateIngesting collatorState = iota
	stateClosed
	stateCollated
	stateIterating
	stateDestroyed
)

const defaultBufferCapacityHint = 4096

// Collator collates key-value pairs of type (K, V), deposited by
// concurrent producers, partitioning them by Hasher[K] and sorting each
// partition by key.
type Collator[K Key, V any] struct {
	cfg            *config
	workPref       string
	hasher         Hasher[K]
	partitionCount uint32

	partitions []*partitionStore[K, V]
	pool       *bufferPool[K, V]
	mapper     *mapper[K, V]
	stats      *statsCollector

	state      atomic.Int32
	checkedOut atomic.Int64

	log *logrus.Entry
}

// New constructs a Collator rooted at workPref (a path prefix; partition
// files are created at "{workPref}.{p}.part") and starts its background
// mapper. workPref defaults conceptually to "." per spec.md §6, but is a
// required argument here — pass "." explicitly for the default.
func New[K Key, V any](workPref string, hasher Hasher[K], opts ...Option) (*Collator[K, V], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.partitionCount == 0 || cfg.partitionCount&(cfg.partitionCount-1) != 0 {
		return nil, collatorerrors.ErrPartitionCountNotPow2
	}
	if cfg.bufferCount <= 0 {
		return nil, collatorerrors.ErrBufferCountZero
	}

	pairSz := pairSize[K, V]()
	stagingCapacity := partitionBufMem / pairSz
	if stagingCapacity <= 0 {
		return nil, collatorerrors.ErrPartitionCapacityZero
	}

	effectivePrefix := workPref
	if cfg.tempDir != "." && cfg.tempDir != "" {
		effectivePrefix = filepath.Join(cfg.tempDir, workPref)
	}

	c := &Collator[K, V]{
		cfg:            cfg,
		workPref:       effectivePrefix,
		hasher:         hasher,
		partitionCount: cfg.partitionCount,
		log:            cfg.log.WithField("work_pref", effectivePrefix),
	}

	c.partitions = make([]*partitionStore[K, V], cfg.partitionCount)
	for p := range c.partitions {
		ps, err := newPartitionStore[K, V](effectivePrefix, uint32(p), stagingCapacity)
		if err != nil {
			c.log.WithError(err).Error("create partition store")
			_ = removeAllPartitions(c.partitions[:p])
			return nil, err
		}
		c.partitions[p] = ps
	}

	if cfg.computeStats {
		c.stats = newStatsCollector(effectivePrefix)
	}

	c.pool = newBufferPool[K, V](cfg.bufferCount, defaultBufferCapacityHint)
	c.mapper = newMapper(c.pool, c.partitions, hasher, cfg.partitionCount)
	c.mapper.start()

	c.state.Store(int32(stateIngesting))
	return c, nil
}

func removeAllPartitions[K Key, V any](partitions []*partitionStore[K, V]) error {
	var errs []error
	for _, p := range partitions {
		if p == nil {
			continue
		}
		if p.file != nil {
			_ = p.file.Close()
		}
		if err := p.remove(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckoutBuffer blocks until a free producer buffer is available. The
// caller owns the returned slice exclusively until it is passed back to
// ReturnBuffer.
func (c *Collator[K, V]) CheckoutBuffer() ([]Pair[K, V], error) {
	if collatorState(c.state.Load()) != stateIngesting {
		return nil, collatorerrors.ErrInvalidState
	}
	c.checkedOut.Add(1)
	return c.pool.checkoutFree(), nil
}

// ReturnBuffer hands a filled buffer back to the collator for mapping.
// The caller must not touch buf again after this call.
func (c *Collator[K, V]) ReturnBuffer(buf []Pair[K, V]) {
	c.pool.returnFull(buf)
	c.checkedOut.Add(-1)
}

// CloseDepositStream signals that no more buffers will be returned,
// drains the mapper, and flushes and seals every partition file. All
// deposits must be complete before calling this.
func (c *Collator[K, V]) CloseDepositStream() error {
	if !c.state.CompareAndSwap(int32(stateIngesting), int32(stateClosed)) {
		return collatorerrors.ErrInvalidState
	}

	if err := c.mapper.stop(); err != nil {
		c.log.WithError(err).Error("mapper drain")
		return err
	}

	for _, p := range c.partitions {
		if err := p.seal(); err != nil {
			c.log.WithError(err).Error("seal partition")
			return err
		}
	}

	return nil
}

// Collate runs the parallel sort phase with threadCount workers,
// rewriting every partition file in sorted-by-key order. It may be
// called only once, after CloseDepositStream; a second call returns
// ErrInvalidState rather than re-sorting already-sorted files.
func (c *Collator[K, V]) Collate(ctx context.Context, threadCount int) error {
	if !c.state.CompareAndSwap(int32(stateClosed), int32(stateCollated)) {
		return collatorerrors.ErrInvalidState
	}
	if threadCount <= 0 {
		threadCount = 1
	}
	if threadCount > len(c.partitions) {
		threadCount = len(c.partitions)
	}

	if err := collate(ctx, c.partitions, threadCount, c.stats); err != nil {
		c.log.WithError(err).Error("collate")
		return err
	}
	return nil
}

// beginIterating performs the one-time collated -> iterating transition,
// and is a no-op if already iterating.
func (c *Collator[K, V]) beginIterating() error {
	for {
		s := collatorState(c.state.Load())
		if s == stateIterating {
			return nil
		}
		if s != stateCollated {
			return collatorerrors.ErrInvalidState
		}
		if c.state.CompareAndSwap(int32(stateCollated), int32(stateIterating)) {
			return nil
		}
	}
}

// Begin returns a key-group cursor positioned at the first key of the
// collated collection, or at end if none were deposited.
func (c *Collator[K, V]) Begin() (*KeyGroupIterator[K, V], error) {
	if err := c.beginIterating(); err != nil {
		return nil, err
	}
	return newKeyGroupIterator[K, V](c.workPref, c.partitionCount, c.cfg.readAheadBytes)
}

// End returns a terminal key-group cursor, for comparison against
// cursors returned by Begin.
func (c *Collator[K, V]) End() *KeyGroupIterator[K, V] {
	return terminalKeyGroupIterator[K, V]()
}

// BulkCursor returns a thread-safe cursor for batched reads, shareable by
// any number of concurrent readers.
func (c *Collator[K, V]) BulkCursor() (*BulkIterator[K, V], error) {
	if err := c.beginIterating(); err != nil {
		return nil, err
	}
	return newBulkIterator[K, V](c.workPref, c.partitionCount), nil
}

// PairCount returns the total number of pairs tallied during Collate.
// Requires WithComputeStats at construction.
func (c *Collator[K, V]) PairCount() (uint64, error) {
	if err := c.requireStats(); err != nil {
		return 0, err
	}
	return c.stats.pairCount.Load(), nil
}

// UniqueKeyCount returns the number of distinct keys tallied during
// Collate. Requires WithComputeStats at construction.
func (c *Collator[K, V]) UniqueKeyCount() (uint64, error) {
	if err := c.requireStats(); err != nil {
		return 0, err
	}
	return c.stats.uniqueKeyCount.Load(), nil
}

// ModeFrequency returns the size of the largest key-group observed
// across all partitions during Collate. Requires WithComputeStats at
// construction.
func (c *Collator[K, V]) ModeFrequency() (uint64, error) {
	if err := c.requireStats(); err != nil {
		return 0, err
	}
	return c.stats.modeFrequency.Load(), nil
}

func (c *Collator[K, V]) requireStats() error {
	if c.stats == nil {
		return collatorerrors.ErrStatsNotEnabled
	}
	if collatorState(c.state.Load()) < stateCollated {
		return collatorerrors.ErrInvalidState
	}
	return nil
}

// Close destroys the collator: it removes every temp partition file, so
// none survive the process, per spec.md §3 invariant 6.
//
// Close panics if called while buffers remain checked out, while the
// mapper is still running, or more than once — these are resource-safety
// bugs in the caller, not recoverable runtime conditions, and panicking
// is the Go idiom for that class of misuse (mirroring the reference
// design's hard abort on the same preconditions).
func (c *Collator[K, V]) Close() error {
	s := collatorState(c.state.Load())
	if s == stateDestroyed {
		panic("collator: Close called twice")
	}
	if s == stateIngesting {
		panic("collator: Close called before CloseDepositStream — mapper still running")
	}
	if c.checkedOut.Load() != 0 {
		panic(fmt.Sprintf("collator: Close called with %d buffers still checked out", c.checkedOut.Load()))
	}

	c.state.Store(int32(stateDestroyed))

	var errs []error
	for _, p := range c.partitions {
		if p.file != nil {
			_ = p.file.Close()
		}
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("%w: remove partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.log.WithError(err).Error("cleanup temp files")
		return err
	}
	return nil
}

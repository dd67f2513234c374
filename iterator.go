package collator

import (
	"fmt"
	"io"
	"os"
	"sync"

	collatorerrors "github.com/jamshed/key-value-collator/errors"
)

// KeyGroupIterator streams the collated partitions one key-group at a
// time: each Deref returns the key at the current position, and each
// Advance skips over every pair sharing that key. It is single-owner —
// not safe for concurrent use — matching spec.md §4.G.
type KeyGroupIterator[K Key, V any] struct {
	workPref       string
	partitionCount uint32
	readAheadPairs int

	partition uint32
	file      *os.File

	block    []Pair[K, V]
	blockIdx int

	cur   Pair[K, V]
	pos   uint64
	atEnd bool
}

// newKeyGroupIterator opens partition 0 and primes the cursor at the
// first pair of the collated collection, or at end if there are none.
func newKeyGroupIterator[K Key, V any](workPref string, partitionCount uint32, readAheadBytes int) (*KeyGroupIterator[K, V], error) {
	pairSz := pairSize[K, V]()
	readAheadPairs := readAheadBytes / pairSz
	if readAheadPairs <= 0 {
		readAheadPairs = 1
	}

	it := &KeyGroupIterator[K, V]{
		workPref:       workPref,
		partitionCount: partitionCount,
		readAheadPairs: readAheadPairs,
	}

	if err := it.openPartition(0); err != nil {
		return nil, err
	}
	if err := it.stepOnePair(); err != nil {
		return nil, err
	}
	return it, nil
}

// terminalKeyGroupIterator returns an already-at-end iterator, usable as
// the "end()" sentinel spec.md §4.H pairs with Begin().
func terminalKeyGroupIterator[K Key, V any]() *KeyGroupIterator[K, V] {
	return &KeyGroupIterator[K, V]{atEnd: true}
}

// Deref returns the key at the current position. Calling it on a
// terminal iterator returns the zero value of K.
func (it *KeyGroupIterator[K, V]) Deref() K {
	return it.cur.Key
}

// Position returns the number of pairs the cursor has stepped through in
// the concatenation of all partitions in id order, counting the current
// pair: the current pair's absolute index plus one.
func (it *KeyGroupIterator[K, V]) Position() uint64 {
	return it.pos
}

// Equal reports whether it and other reference the same key-group: both
// terminal, or the same partition id and absolute position.
func (it *KeyGroupIterator[K, V]) Equal(other *KeyGroupIterator[K, V]) bool {
	if it.atEnd && other.atEnd {
		return true
	}
	if it.atEnd != other.atEnd {
		return false
	}
	return it.partition == other.partition && it.pos == other.pos
}

// Advance skips over every remaining pair sharing the current key,
// leaving the cursor at the first pair of the next key-group, or at end.
func (it *KeyGroupIterator[K, V]) Advance() error {
	if it.atEnd {
		return collatorerrors.ErrIteratorAtEnd
	}
	k := it.cur.Key
	for {
		if err := it.stepOnePair(); err != nil {
			return err
		}
		if it.atEnd || it.cur.Key != k {
			return nil
		}
	}
}

// Close releases the iterator's open file handle, if any. Safe to call
// multiple times.
func (it *KeyGroupIterator[K, V]) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	if err != nil {
		return fmt.Errorf("%w: close partition file during iteration: %w", collatorerrors.ErrIOFailure, err)
	}
	return nil
}

// stepOnePair advances the cursor by exactly one pair, refilling the
// read-ahead block from the current file as needed and crossing
// partition boundaries on exhaustion, per spec.md §4.G's "step-one-pair."
func (it *KeyGroupIterator[K, V]) stepOnePair() error {
	for it.blockIdx >= len(it.block) {
		n, err := it.refill()
		if err != nil {
			return err
		}
		if n > 0 {
			break
		}
		if !it.advancePartition() {
			it.atEnd = true
			it.cur = Pair[K, V]{}
			return nil
		}
	}

	it.cur = it.block[it.blockIdx]
	it.blockIdx++
	it.pos++
	return nil
}

// refill reads the next read-ahead block from the current file, returning
// the number of pairs read (0 at end of the current file).
func (it *KeyGroupIterator[K, V]) refill() (int, error) {
	pairSz := pairSize[K, V]()
	buf := make([]byte, it.readAheadPairs*pairSz)

	n, err := io.ReadFull(it.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("%w: read partition file during iteration: %w", collatorerrors.ErrIOFailure, err)
	}

	nPairs := n / pairSz
	it.block = bytesToPairs[K, V](buf[:nPairs*pairSz])
	it.blockIdx = 0
	return nPairs, nil
}

// advancePartition closes the current file (if open) and opens the next
// non-exhausted partition id. Returns false once every partition has
// been consumed.
func (it *KeyGroupIterator[K, V]) advancePartition() bool {
	if it.file != nil {
		_ = it.file.Close()
		it.file = nil
	}

	for next := it.partition + 1; next < it.partitionCount; next++ {
		if err := it.openPartition(next); err == nil {
			return true
		}
	}
	return false
}

func (it *KeyGroupIterator[K, V]) openPartition(id uint32) error {
	path := partitionPath(it.workPref, id)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open partition file %s for iteration: %w", collatorerrors.ErrIOFailure, path, err)
	}

	if fi, statErr := f.Stat(); statErr == nil {
		fadviseSequential(int(f.Fd()), 0, fi.Size())
	}

	it.partition = id
	it.file = f
	it.block = nil
	it.blockIdx = 0
	return nil
}

// BulkIterator reads the collated collection in arbitrarily sized
// batches, safe for concurrent use by many readers: each Read call
// delivers a disjoint slice of pairs, and ordering across concurrent
// readers is unspecified beyond "every pair delivered exactly once."
// Because reads cross file I/O (not the bounded handful of memory
// operations spinlock.Mutex is meant for), BulkIterator uses a regular
// sync.Mutex.
type BulkIterator[K Key, V any] struct {
	mu             sync.Mutex
	workPref       string
	partitionCount uint32

	partition  uint32
	file       *os.File
	fileSize   int64
	bytesRead  int64
	opened     bool
	atEnd      bool
}

func newBulkIterator[K Key, V any](workPref string, partitionCount uint32) *BulkIterator[K, V] {
	return &BulkIterator[K, V]{workPref: workPref, partitionCount: partitionCount}
}

// Read fills as much of dst as possible with collated pairs, crossing
// partition boundaries transparently, and returns the number of pairs
// written. It returns (0, nil) once every partition has been fully
// delivered to some caller.
func (b *BulkIterator[K, V]) Read(dst []Pair[K, V]) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.atEnd {
		return 0, nil
	}
	if !b.opened {
		if !b.openNext() {
			b.atEnd = true
			return 0, nil
		}
	}

	dstBytes := pairsToBytes(dst)
	pairSz := pairSize[K, V]()
	total := 0

	for total < len(dstBytes) {
		remainingInFile := b.fileSize - b.bytesRead
		if remainingInFile == 0 {
			if !b.openNext() {
				b.atEnd = true
				break
			}
			remainingInFile = b.fileSize - b.bytesRead
			if remainingInFile == 0 {
				continue
			}
		}

		chunk := int64(len(dstBytes) - total)
		if chunk > remainingInFile {
			chunk = remainingInFile
		}

		n, err := io.ReadFull(b.file, dstBytes[total:int64(total)+chunk])
		if err != nil {
			return total / pairSz, fmt.Errorf("%w: read partition file during bulk iteration: %w", collatorerrors.ErrIOFailure, err)
		}

		total += n
		b.bytesRead += int64(n)
	}

	return total / pairSz, nil
}

// openNext closes the current file (if any) and opens the next
// partition with nonzero size, skipping empty partitions. Returns false
// once no partition remains.
func (b *BulkIterator[K, V]) openNext() bool {
	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}

	start := uint32(0)
	if b.opened {
		start = b.partition + 1
	}
	b.opened = true

	for id := start; id < b.partitionCount; id++ {
		path := partitionPath(b.workPref, id)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		fi, err := f.Stat()
		if err != nil || fi.Size() == 0 {
			_ = f.Close()
			continue
		}

		b.partition = id
		b.file = f
		b.fileSize = fi.Size()
		b.bytesRead = 0
		return true
	}
	return false
}

// Close releases the iterator's open file handle, if any.
func (b *BulkIterator[K, V]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	if err != nil {
		return fmt.Errorf("%w: close partition file during bulk iteration: %w", collatorerrors.ErrIOFailure, err)
	}
	return nil
}

package collator

import (
	"fmt"
	"os"

	collatorerrors "github.com/jamshed/key-value-collator/errors"
)

// partitionState is the monotone lifecycle of one partition's file:
// open-for-append (ingest) -> sealed (ingest closed) -> rewriting (collate
// has unlinked the sealed file and is writing its sorted replacement) ->
// sorted (collated) -> drained (iteration has passed it).
//
// A partition observed in partitionRewriting after collate has already
// failed means rewritePartition was interrupted mid unlink-recreate-write:
// its backing file, if any, holds an incomplete rewrite and is not the
// sealed content either. collate's error path removes any partition left
// in this state on a best-effort basis.
type partitionState int

const (
	partitionOpen partitionState = iota
	partitionSealed
	partitionRewriting
	partitionSorted
	partitionDrained
)

const partitionFileExt = ".part"

// partitionPath returns the on-disk path for partition p_id under the
// given working prefix, matching spec.md §6's "{work_pref}.{p_id}.part"
// template exactly.
func partitionPath(workPref string, pID uint32) string {
	return fmt.Sprintf("%s.%d%s", workPref, pID, partitionFileExt)
}

// partitionStore is the per-partition staging buffer and backing file
// described in spec.md §4.D. During ingest exactly one goroutine (the
// mapper) touches it, so it carries no internal lock.
type partitionStore[K Key, V any] struct {
	id       uint32
	path     string
	staging  []Pair[K, V]
	capacity int
	file     *os.File
	state    partitionState
}

// newPartitionStore creates partition id's staging buffer and opens its
// backing file for append, truncating any stale content.
func newPartitionStore[K Key, V any](workPref string, id uint32, capacity int) (*partitionStore[K, V], error) {
	if capacity <= 0 {
		return nil, collatorerrors.ErrPartitionCapacityZero
	}

	path := partitionPath(workPref, id)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create partition file %s: %w", collatorerrors.ErrIOFailure, path, err)
	}

	return &partitionStore[K, V]{
		id:       id,
		path:     path,
		staging:  make([]Pair[K, V], 0, capacity),
		capacity: capacity,
		file:     f,
		state:    partitionOpen,
	}, nil
}

// append adds pair to the staging buffer, flushing to disk if the buffer
// has reached capacity. This is the only place spec.md §3's 1 MiB staging
// budget is enforced.
func (p *partitionStore[K, V]) append(pair Pair[K, V]) error {
	p.staging = append(p.staging, pair)
	if len(p.staging) >= p.capacity {
		return p.flush()
	}
	return nil
}

// flush writes the staging buffer's raw bytes verbatim to the partition
// file and resets it to length zero, retaining its capacity.
func (p *partitionStore[K, V]) flush() error {
	if len(p.staging) == 0 {
		return nil
	}
	b := pairsToBytes(p.staging)
	if _, err := p.file.Write(b); err != nil {
		return fmt.Errorf("%w: write partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	p.staging = p.staging[:0]
	return nil
}

// seal flushes any remaining staged pairs, releases the staging buffer's
// memory, and closes the file for writing. Called once, when the facade
// transitions from ingesting to closed.
func (p *partitionStore[K, V]) seal() error {
	if err := p.flush(); err != nil {
		return err
	}
	p.staging = nil
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("%w: close partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	p.state = partitionSealed
	return nil
}

// remove deletes the partition's backing file. Safe to call on a
// partition whose file was never opened successfully or is already gone:
// a missing file is not reported as an error.
func (p *partitionStore[K, V]) remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	return nil
}

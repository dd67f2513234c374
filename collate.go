package collator

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sync/errgroup"

	collatorerrors "github.com/jamshed/key-value-collator/errors"
)

// collate runs the sort phase described in spec.md §4.F: n workers, each
// owning a disjoint stripe of partition ids, read their partitions,
// sort them in place by key, and rewrite them. Partitions are
// independent, so no cross-worker synchronization is needed beyond the
// errgroup join at the end.
func collate[K Key, V any](ctx context.Context, partitions []*partitionStore[K, V], n int, stats *statsCollector) error {
	g, gctx := errgroup.WithContext(ctx)

	for t := range n {
		g.Go(func() error {
			return sortStripe(gctx, partitions, t, n, stats)
		})
	}

	err := g.Wait()
	if err != nil {
		cleanupPartiallyWritten(partitions)
	}
	return err
}

// cleanupPartiallyWritten removes the backing file of every partition left
// in partitionRewriting by a failed sortStripe, a best-effort pass run
// only after collate has already decided to return an error. It does not
// itself fail collate: a partition whose file cannot be removed is left
// as is, since the caller is already unwinding on the original error.
func cleanupPartiallyWritten[K Key, V any](partitions []*partitionStore[K, V]) {
	for _, p := range partitions {
		if p.state == partitionRewriting {
			_ = p.remove()
		}
	}
}

// sortStripe handles partition ids t, t+n, t+2n, ... in ascending order,
// reusing one buffer sized to the stripe's largest partition file.
func sortStripe[K Key, V any](ctx context.Context, partitions []*partitionStore[K, V], t, n int, stats *statsCollector) error {
	var bufCap int64
	for id := t; id < len(partitions); id += n {
		sz, err := fileSize(partitions[id].path)
		if err != nil {
			return err
		}
		if sz > bufCap {
			bufCap = sz
		}
	}

	buf := make([]byte, bufCap)

	for id := t; id < len(partitions); id += n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p := partitions[id]
		nRead, err := readPartitionInto(p, buf)
		if err != nil {
			return err
		}
		data := buf[:nRead]

		pairs := bytesToPairs[K, V](data)
		slices.SortFunc(pairs, func(a, b Pair[K, V]) int {
			return cmp.Compare(a.Key, b.Key)
		})

		if stats != nil {
			uniqueCount, maxRun := countKeyRuns(pairs)
			stats.record(uint64(len(pairs)), uniqueCount, maxRun)
		}

		p.state = partitionRewriting
		if err := rewritePartition(p, data); err != nil {
			return err
		}
		p.state = partitionSorted
	}

	return nil
}

// countKeyRuns walks an already-sorted pair slice once, returning the
// number of distinct keys and the length of the longest run of equal
// keys (the partition's contribution to the modal key frequency).
// Correct only on sorted input: equal keys are adjacent, so a single
// linear pass suffices — no extra pass over the data is needed beyond
// the sort Collate already performed.
func countKeyRuns[K Key, V any](pairs []Pair[K, V]) (uniqueCount, maxRun uint64) {
	if len(pairs) == 0 {
		return 0, 0
	}

	uniqueCount = 1
	runLen := uint64(1)
	maxRun = 1

	for i := 1; i < len(pairs); i++ {
		if pairs[i].Key == pairs[i-1].Key {
			runLen++
		} else {
			uniqueCount++
			runLen = 1
		}
		if runLen > maxRun {
			maxRun = runLen
		}
	}

	return uniqueCount, maxRun
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat partition file %s: %w", collatorerrors.ErrIOFailure, path, err)
	}
	return fi.Size(), nil
}

// readPartitionInto mmaps the sealed partition file read-only, hints
// sequential access, and copies its content into dst (which must be at
// least as large as the file). It returns the number of bytes copied.
// Copying out of the mmap — rather than sorting the mapping in place —
// decouples the sort from the file that unlink-then-recreate is about to
// delete out from under it.
func readPartitionInto[K Key, V any](p *partitionStore[K, V], dst []byte) (int, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return 0, fmt.Errorf("%w: open partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	size := fi.Size()
	if size == 0 {
		return 0, nil
	}

	fadviseSequential(int(f.Fd()), 0, size)

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: mmap partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	defer m.Unmap()

	n := copy(dst, m)
	return n, nil
}

// rewritePartition deletes the partition file, recreates it, and writes
// sorted directly via an mmap'd write mapping. Unlink-then-create (rather
// than overwriting the existing file) is required per spec.md §4.F:
// overwriting forces the writer to serialize against the prior inode's
// unflushed data on some journaling filesystems, roughly halving
// throughput.
func rewritePartition[K Key, V any](p *partitionStore[K, V], sorted []byte) error {
	if err := p.remove(); err != nil {
		return err
	}

	f, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("%w: recreate partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	defer f.Close()

	if len(sorted) == 0 {
		return nil
	}

	if err := fallocateFile(f, int64(len(sorted))); err != nil {
		return fmt.Errorf("%w: preallocate partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}

	m, err := mmap.MapRegion(f, len(sorted), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("%w: mmap partition file %s for write: %w", collatorerrors.ErrIOFailure, p.path, err)
	}

	prefaultRegion(m)
	copy(m, sorted)

	if err := m.Flush(); err != nil {
		_ = m.Unmap()
		return fmt.Errorf("%w: flush partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	if err := m.Unmap(); err != nil {
		return fmt.Errorf("%w: unmap partition file %s: %w", collatorerrors.ErrIOFailure, p.path, err)
	}
	return nil
}

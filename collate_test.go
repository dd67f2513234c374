package collator

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func sealedPartition(t *testing.T, pref string, id uint32, keys []uint32) *partitionStore[uint32, uint64] {
	t.Helper()
	p, err := newPartitionStore[uint32, uint64](pref, id, len(keys)+1)
	if err != nil {
		t.Fatalf("newPartitionStore: %v", err)
	}
	for _, k := range keys {
		if err := p.append(Pair[uint32, uint64]{Key: k, Val: uint64(k) * 2}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := p.seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	return p
}

func readPairs(t *testing.T, path string) []Pair[uint32, uint64] {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition file: %v", err)
	}
	pairs := bytesToPairs[uint32, uint64](b)
	out := make([]Pair[uint32, uint64], len(pairs))
	copy(out, pairs)
	return out
}

// TestCollateSortsEachPartition checks spec.md invariant 3: after Collate,
// every partition file's pairs are non-decreasing by key.
func TestCollateSortsEachPartition(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	rng := rand.New(rand.NewPCG(1, 2))

	var partitions []*partitionStore[uint32, uint64]
	for id := uint32(0); id < 4; id++ {
		n := 50 + rng.IntN(50)
		keys := make([]uint32, n)
		for i := range keys {
			keys[i] = rng.Uint32N(1000)
		}
		partitions = append(partitions, sealedPartition(t, pref, id, keys))
	}

	if err := collate(context.Background(), partitions, 2, nil); err != nil {
		t.Fatalf("collate: %v", err)
	}

	for _, p := range partitions {
		pairs := readPairs(t, p.path)
		for i := 1; i < len(pairs); i++ {
			if pairs[i].Key < pairs[i-1].Key {
				t.Fatalf("partition %d: pairs[%d].Key=%d < pairs[%d].Key=%d", p.id, i, pairs[i].Key, i-1, pairs[i-1].Key)
			}
		}
	}
}

// TestCollatePreservesMultiset checks that sorting doesn't drop or
// duplicate pairs within a partition.
func TestCollatePreservesMultiset(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	keys := []uint32{5, 3, 3, 1, 9, 1, 1}
	p := sealedPartition(t, pref, 0, keys)

	if err := collate(context.Background(), []*partitionStore[uint32, uint64]{p}, 1, nil); err != nil {
		t.Fatalf("collate: %v", err)
	}

	pairs := readPairs(t, p.path)
	if len(pairs) != len(keys) {
		t.Fatalf("pair count after collate = %d, want %d", len(pairs), len(keys))
	}

	counts := make(map[uint32]int)
	for _, k := range keys {
		counts[k]++
	}
	for _, pr := range pairs {
		counts[pr.Key]--
	}
	for k, c := range counts {
		if c != 0 {
			t.Fatalf("key %d count mismatch after collate: off by %d", k, c)
		}
	}
}

// TestCollateEmptyPartitionIsNoOp checks a degenerate partition (no pairs
// ever deposited) collates cleanly to an empty file.
func TestCollateEmptyPartitionIsNoOp(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	p := sealedPartition(t, pref, 0, nil)

	if err := collate(context.Background(), []*partitionStore[uint32, uint64]{p}, 1, nil); err != nil {
		t.Fatalf("collate: %v", err)
	}

	fi, err := os.Stat(p.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != 0 {
		t.Fatalf("empty partition file size after collate = %d, want 0", fi.Size())
	}
}

// TestCollateComputesStats checks the optional stats subsystem tallies
// pair count, unique key count, and modal key frequency correctly across
// partitions.
func TestCollateComputesStats(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	p0 := sealedPartition(t, pref, 0, []uint32{1, 1, 1, 2})
	p1 := sealedPartition(t, pref, 1, []uint32{3, 3})

	stats := newStatsCollector(pref)
	partitions := []*partitionStore[uint32, uint64]{p0, p1}
	if err := collate(context.Background(), partitions, 2, stats); err != nil {
		t.Fatalf("collate: %v", err)
	}

	if got := stats.pairCount.Load(); got != 6 {
		t.Fatalf("pairCount = %d, want 6", got)
	}
	if got := stats.uniqueKeyCount.Load(); got != 3 {
		t.Fatalf("uniqueKeyCount = %d, want 3", got)
	}
	if got := stats.modeFrequency.Load(); got != 3 {
		t.Fatalf("modeFrequency = %d, want 3", got)
	}
}

func TestCountKeyRunsOnSortedInput(t *testing.T) {
	pairs := []Pair[uint32, uint64]{
		{Key: 1}, {Key: 1}, {Key: 2}, {Key: 3}, {Key: 3}, {Key: 3},
	}
	unique, maxRun := countKeyRuns(pairs)
	if unique != 3 {
		t.Fatalf("unique = %d, want 3", unique)
	}
	if maxRun != 3 {
		t.Fatalf("maxRun = %d, want 3", maxRun)
	}
}

func TestCountKeyRunsOnEmptyInput(t *testing.T) {
	unique, maxRun := countKeyRuns[uint32, uint64](nil)
	if unique != 0 || maxRun != 0 {
		t.Fatalf("countKeyRuns(nil) = (%d, %d), want (0, 0)", unique, maxRun)
	}
}

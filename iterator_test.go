package collator

import (
	"context"
	"path/filepath"
	"testing"
)

// buildCollated deposits keys directly into partitions (bypassing the
// facade's buffer pool and mapper, which is exercised separately in
// collator_test.go) and runs them through Collate, returning the sealed,
// sorted partition set ready for iteration.
func buildCollated(t *testing.T, pref string, partitionCount uint32, keys []uint32) []*partitionStore[uint32, uint64] {
	t.Helper()
	h := IdentityHasher[uint32]{}

	partitions := make([]*partitionStore[uint32, uint64], partitionCount)
	for id := range partitions {
		p, err := newPartitionStore[uint32, uint64](pref, uint32(id), 64)
		if err != nil {
			t.Fatalf("newPartitionStore: %v", err)
		}
		partitions[id] = p
	}

	for _, k := range keys {
		pid := partitionOf[uint32](h, k, partitionCount)
		if err := partitions[pid].append(Pair[uint32, uint64]{Key: k, Val: uint64(k) * 2}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	for _, p := range partitions {
		if err := p.seal(); err != nil {
			t.Fatalf("seal: %v", err)
		}
	}
	if err := collate(context.Background(), partitions, 2, nil); err != nil {
		t.Fatalf("collate: %v", err)
	}
	return partitions
}

// TestKeyGroupIteratorGroupsEqualKeys checks spec.md invariant 4: Advance
// skips every pair sharing the current key, landing on a strictly
// different key (or end).
func TestKeyGroupIteratorGroupsEqualKeys(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	keys := []uint32{5, 5, 5, 1, 1, 9, 2, 2, 2, 2}
	buildCollated(t, pref, 4, keys)

	it, err := newKeyGroupIterator[uint32, uint64](pref, 4, 64)
	if err != nil {
		t.Fatalf("newKeyGroupIterator: %v", err)
	}
	defer it.Close()

	var groups []uint32
	for !it.atEnd {
		groups = append(groups, it.Deref())
		if err := it.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	// IdentityHasher with 4 partitions: p1 = {1, 5, 9}, p2 = {2}.
	want := []uint32{1, 5, 9, 2}
	if len(groups) != len(want) {
		t.Fatalf("groups = %v, want %v", groups, want)
	}
	for i := range want {
		if groups[i] != want[i] {
			t.Fatalf("groups = %v, want %v", groups, want)
		}
	}
}

// TestKeyGroupIteratorRoundTrip checks spec.md invariant 5: stepping
// through one pair at a time visits every deposited pair exactly once,
// partitions in id order and keys non-decreasing within each partition.
func TestKeyGroupIteratorRoundTrip(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	keys := []uint32{7, 3, 3, 0, 2, 8, 8, 8}
	buildCollated(t, pref, 4, keys)

	it, err := newKeyGroupIterator[uint32, uint64](pref, 4, 64)
	if err != nil {
		t.Fatalf("newKeyGroupIterator: %v", err)
	}
	defer it.Close()

	count := 0
	var prev uint32
	var prevPartition uint32
	first := true
	for !it.atEnd {
		k := it.Deref()
		if !first && (it.partition < prevPartition || (it.partition == prevPartition && k < prev)) {
			t.Fatalf("keys out of order: %d (partition %d) after %d (partition %d)", k, it.partition, prev, prevPartition)
		}
		prev, prevPartition, first = k, it.partition, false
		count++

		for {
			if err := it.stepOnePair(); err != nil {
				t.Fatalf("stepOnePair: %v", err)
			}
			if it.atEnd || it.cur.Key != k {
				break
			}
			count++
		}
	}

	if count != len(keys) {
		t.Fatalf("visited %d pairs, want %d", count, len(keys))
	}
}

func TestKeyGroupIteratorEmptyCollectionIsAtEnd(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	buildCollated(t, pref, 4, nil)

	it, err := newKeyGroupIterator[uint32, uint64](pref, 4, 64)
	if err != nil {
		t.Fatalf("newKeyGroupIterator: %v", err)
	}
	defer it.Close()

	if !it.atEnd {
		t.Fatal("iterator over empty collection should start at end")
	}
}

func TestKeyGroupIteratorEqual(t *testing.T) {
	end1 := terminalKeyGroupIterator[uint32, uint64]()
	end2 := terminalKeyGroupIterator[uint32, uint64]()
	if !end1.Equal(end2) {
		t.Fatal("two terminal iterators should compare equal")
	}

	pref := filepath.Join(t.TempDir(), "run")
	buildCollated(t, pref, 4, []uint32{1, 2, 3})

	it, err := newKeyGroupIterator[uint32, uint64](pref, 4, 64)
	if err != nil {
		t.Fatalf("newKeyGroupIterator: %v", err)
	}
	defer it.Close()

	if it.Equal(end1) {
		t.Fatal("non-terminal iterator should not equal a terminal one")
	}
}

// TestBulkIteratorDeliversEveryPairOnce checks spec.md §4.G's bulk
// contract: repeated Read calls deliver every pair exactly once,
// regardless of dst size relative to partition boundaries.
func TestBulkIteratorDeliversEveryPairOnce(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	keys := make([]uint32, 777)
	for i := range keys {
		keys[i] = uint32(i * 31 % 997)
	}
	buildCollated(t, pref, 8, keys)

	bi := newBulkIterator[uint32, uint64](pref, 8)
	defer bi.Close()

	seen := make(map[uint64]int)
	dst := make([]Pair[uint32, uint64], 13) // deliberately not partition-aligned
	total := 0
	for {
		n, err := bi.Read(dst)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
		for _, p := range dst[:n] {
			seen[p.Val]++
		}
		total += n
	}

	if total != len(keys) {
		t.Fatalf("total pairs read = %d, want %d", total, len(keys))
	}
	for _, k := range keys {
		if seen[uint64(k)*2] != 1 {
			t.Fatalf("key %d's value delivered %d times, want 1", k, seen[uint64(k)*2])
		}
	}
}

func TestBulkIteratorEmptyCollectionReadsZero(t *testing.T) {
	pref := filepath.Join(t.TempDir(), "run")
	buildCollated(t, pref, 4, nil)

	bi := newBulkIterator[uint32, uint64](pref, 4)
	defer bi.Close()

	n, err := bi.Read(make([]Pair[uint32, uint64], 10))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read over empty collection = %d, want 0", n)
	}
}

// Package collator collates large streams of key-value pairs deposited
// concurrently by many producers into a partitioned, per-partition-sorted
// collection backed by temp files, then exposes sequential or batched
// iteration over the result.
//
// # Basic Usage
//
// Depositing pairs:
//
//	c, err := collator.New[uint32, int64]("/tmp/run1", collator.XXHasher[uint32]{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	buf, err := c.CheckoutBuffer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	buf = append(buf, collator.Pair[uint32, int64]{Key: 42, Val: 1})
//	c.ReturnBuffer(buf)
//	if err := c.CloseDepositStream(); err != nil {
//	    log.Fatal(err)
//	}
//
// Collating and reading back:
//
//	if err := c.Collate(context.Background(), runtime.NumCPU()); err != nil {
//	    log.Fatal(err)
//	}
//	it, err := c.Begin()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	end := c.End()
//	for !it.Equal(end) {
//	    fmt.Println(it.Deref())
//	    if err := it.Advance(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	c.Close()
//
// # Package Structure
//
//   - Public API: collator.go (New, CheckoutBuffer/ReturnBuffer,
//     CloseDepositStream, Collate, Begin/BulkCursor, Close)
//   - Configuration: options.go (Option, With* functions)
//   - Data model: pair.go (Pair, the raw host-layout byte view)
//   - Key routing: hasher.go (Hasher, IdentityHasher, XXHasher,
//     Murmur3Hasher, XXH3Hasher)
//   - Ingest path: bufferpool.go (producer/mapper handoff), mapper.go
//     (background drain loop), partition.go (per-partition staging + file)
//   - Sort phase: collate.go (parallel per-partition sort and rewrite)
//   - Output: iterator.go (KeyGroupIterator, BulkIterator)
//   - Stats: stats.go (optional pair/key/mode counters)
//   - Platform: fallocate_*.go, fadvise_*.go, prefault_*.go
package collator

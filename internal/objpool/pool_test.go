package objpool

import (
	"sync"
	"testing"
)

func TestPushFetchLinearizable(t *testing.T) {
	var p Pool[int]

	if _, ok := p.Fetch(); ok {
		t.Fatal("Fetch on empty pool should fail")
	}

	p.Push(1)
	p.Push(2)
	p.Push(3)

	if got := p.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	v, ok := p.Fetch()
	if !ok || v != 3 {
		t.Fatalf("Fetch() = (%d, %v), want (3, true)", v, ok)
	}

	if got := p.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}

func TestConcurrentPushFetchConservesCount(t *testing.T) {
	var p Pool[int]

	const n = 10000
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			p.Push(v)
		}(i)
	}
	wg.Wait()

	if got := p.Size(); got != n {
		t.Fatalf("Size() after %d pushes = %d", n, got)
	}

	seen := make(chan int, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok := p.Fetch()
			if !ok {
				t.Error("Fetch failed before pool drained")
				return
			}
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	count := 0
	for range seen {
		count++
	}
	if count != n {
		t.Fatalf("fetched %d items, want %d", count, n)
	}
	if !p.Empty() {
		t.Fatal("pool should be empty after draining all pushed items")
	}
}

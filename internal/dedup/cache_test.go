package dedup

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSeenOrRecord(t *testing.T) {
	c := New(10, 5)
	if c.SeenOrRecord("p1") {
		t.Fatalf("first sighting reported as seen")
	}
	if !c.SeenOrRecord("p1") {
		t.Fatalf("second sighting not reported as seen")
	}
	if c.Len() != 1 {
		t.Fatalf("len mismatch: %v", c.Len())
	}
}

func TestTrimDropsOldest(t *testing.T) {
	c := New(10, 4)
	for i := range 11 {
		c.SeenOrRecord("k" + strconv.Itoa(i))
	}
	if c.Len() != 4 {
		t.Fatalf("len after trim mismatch: %v", c.Len())
	}
	// k7..k10 survive
	for i := 7; i <= 10; i++ {
		if !c.SeenOrRecord("k" + strconv.Itoa(i)) {
			t.Fatalf("k%d should still be recorded", i)
		}
	}
	if c.SeenOrRecord("k0") {
		t.Fatalf("k0 should have been evicted")
	}
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	if c.high != DefaultCapacity || c.low != DefaultCapacity/2 {
		t.Fatalf("defaults mismatch: %d/%d", c.high, c.low)
	}
}

func TestConcurrentCheckAndSet(t *testing.T) {
	c := New(100, 50)
	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.SeenOrRecord("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	if fresh.Load() != 1 {
		t.Fatalf("expected exactly one first sighting, got %d", fresh.Load())
	}
}

func BenchmarkSeenOrRecord(b *testing.B) {
	c := New(DefaultCapacity, 0)
	i := 0
	for b.Loop() {
		c.SeenOrRecord(strconv.Itoa(i))
		i++
	}
}

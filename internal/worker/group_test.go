package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	g := NewGroup(func(name string, err error) {
		mu.Lock()
		failed = append(failed, name)
		mu.Unlock()
	})

	var ran atomic.Bool
	g.Go("boom", func() { panic("bad packet") })
	g.Go("ok", func() { ran.Store(true) })
	g.Wait()

	if !ran.Load() {
		t.Fatalf("healthy task did not run")
	}
	if len(failed) != 1 || failed[0] != "boom" {
		t.Fatalf("panic not reported: %v", failed)
	}
}

func TestEveryStopsOnCancel(t *testing.T) {
	g := NewGroup(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	g.Every(ctx, "tick", 5*time.Millisecond, nil, func() { ticks.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	g.Wait()

	if ticks.Load() < 2 {
		t.Fatalf("expected at least two ticks, got %d", ticks.Load())
	}
}

func TestEveryStopsWhenNotAlive(t *testing.T) {
	g := NewGroup(nil)
	var alive atomic.Bool
	alive.Store(true)

	var ticks atomic.Int32
	g.Every(context.Background(), "tick", 5*time.Millisecond, alive.Load, func() {
		if ticks.Add(1) == 3 {
			alive.Store(false)
		}
	})
	g.Wait()

	if ticks.Load() != 3 {
		t.Fatalf("expected loop to exit after three ticks, got %d", ticks.Load())
	}
}

func TestEverySurvivesPanickingTick(t *testing.T) {
	var panics atomic.Int32
	g := NewGroup(func(string, error) { panics.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	g.Every(ctx, "flaky", 5*time.Millisecond, nil, func() {
		if ticks.Add(1) == 1 {
			panic("first tick")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	g.Wait()

	if panics.Load() != 1 {
		t.Fatalf("expected one recovered panic, got %d", panics.Load())
	}
	if ticks.Load() < 3 {
		t.Fatalf("loop died after panic: %d ticks", ticks.Load())
	}
}

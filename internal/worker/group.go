// Package worker runs supervised background goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Group tracks goroutines so they can be awaited on shutdown. A panic in
// one task is recovered and reported; it never takes down the process.
type Group struct {
	wg      sync.WaitGroup
	onPanic func(name string, err error)
}

func NewGroup(onPanic func(name string, err error)) *Group {
	if onPanic == nil {
		onPanic = func(string, error) {}
	}
	return &Group{onPanic: onPanic}
}

// Go runs fn in its own goroutine.
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.Protect(name, fn)
	}()
}

// Protect runs fn on the calling goroutine and recovers a panic from it.
func (g *Group) Protect(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.onPanic(name, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	fn()
}

// Every calls fn once per interval until ctx is done or alive returns false.
// A panic in one tick is recovered and the loop keeps going.
func (g *Group) Every(ctx context.Context, name string, interval time.Duration, alive func() bool, fn func()) {
	g.Go(name, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if alive != nil && !alive() {
					return
				}
				g.Protect(name, fn)
			}
		}
	})
}

// Wait blocks until every task started on the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

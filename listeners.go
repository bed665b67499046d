package meshsync

import (
	"fmt"
	"sync"

	"github.com/DobryySoul/meshsync/model"
)

// registry holds the subscribers for one event type.
type registry[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

func (r *registry[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs == nil {
		r.subs = make(map[int]func(T))
	}
	id := r.next
	r.next++
	r.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry[T]) snapshot() []func(T) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]func(T), 0, len(r.subs))
	for _, fn := range r.subs {
		out = append(out, fn)
	}
	return out
}

type listeners struct {
	users registry[model.User]
	plans registry[model.MealPlan]
	chat  registry[model.ChatMessage]
	peers registry[[]PeerInfo]
	logs  registry[LogEntry]
}

// OnUser registers fn for users inserted or replaced by remote updates.
// The returned func removes the subscription.
//
// Listeners run on engine goroutines and Stop waits for those goroutines, so
// a listener must not call Stop or Close directly. Call them from a new
// goroutine instead.
func (e *Engine) OnUser(fn func(model.User)) func() {
	return e.listeners.users.add(fn)
}

// OnMealPlan registers fn for meal plans inserted or replaced by remote updates.
func (e *Engine) OnMealPlan(fn func(model.MealPlan)) func() {
	return e.listeners.plans.add(fn)
}

// OnChatMessage registers fn for chat messages received from the mesh.
func (e *Engine) OnChatMessage(fn func(model.ChatMessage)) func() {
	return e.listeners.chat.add(fn)
}

// OnPeersChanged registers fn for peer table changes. It receives the new
// snapshot. Like every listener it must not call Stop or Close inline.
func (e *Engine) OnPeersChanged(fn func([]PeerInfo)) func() {
	return e.listeners.peers.add(fn)
}

// OnLog registers fn for engine log records. fn must not log through the
// engine's logger.
func (e *Engine) OnLog(fn func(LogEntry)) func() {
	return e.listeners.logs.add(fn)
}

// emit calls every subscriber of r on the calling goroutine. A panicking
// subscriber is recovered and does not affect the others.
func emit[T any](e *Engine, name string, r *registry[T], v T) {
	for _, fn := range r.snapshot() {
		e.tasks.Protect(name, func() { fn(v) })
	}
}

// emitLog is used from inside the log handler, so a panicking subscriber is
// reported to the error handler instead of being logged.
func (e *Engine) emitLog(entry LogEntry) {
	for _, fn := range e.listeners.logs.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.cfg.errorHandler(fmt.Errorf("meshsync: log listener panic: %v", r))
				}
			}()
			fn(entry)
		}()
	}
}

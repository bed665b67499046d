// Package peers tracks the devices currently reachable on the mesh.
package peers

import (
	"net/netip"
	"sort"
	"sync"
	"time"
)

const (
	DefaultTimeout         = 2 * time.Minute
	DefaultCleanupInterval = 30 * time.Second
)

// Peer is a point-in-time view of a known device.
type Peer struct {
	ID       string
	Name     string
	Addr     netip.AddrPort
	LastSeen time.Time
	Direct   bool
}

type entry struct {
	Peer
	syncClaimed bool
}

// Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	peers map[string]*entry
	clock func() time.Time
}

func New(clock func() time.Time) *Table {
	if clock == nil {
		clock = time.Now
	}
	return &Table{
		peers: make(map[string]*entry),
		clock: clock,
	}
}

// Upsert marks the peer as seen now and reports whether it was unknown.
// An indirect sighting never replaces the endpoint of a directly reachable
// peer; it only refreshes LastSeen.
func (t *Table) Upsert(id, name string, addr netip.AddrPort, direct bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	e, ok := t.peers[id]
	if !ok {
		t.peers[id] = &entry{Peer: Peer{
			ID:       id,
			Name:     name,
			Addr:     addr,
			LastSeen: now,
			Direct:   direct,
		}}
		return true
	}
	e.LastSeen = now
	if name != "" {
		e.Name = name
	}
	if direct || !e.Direct {
		e.Addr = addr
		e.Direct = direct
	}
	return false
}

func (t *Table) Get(id string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return e.Peer, true
}

// Snapshot returns all peers ordered by id.
func (t *Table) Snapshot() []Peer {
	t.mu.RLock()
	out := make([]Peer, 0, len(t.peers))
	for _, e := range t.peers {
		out = append(out, e.Peer)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EvictStale removes peers not seen within timeout and returns their ids.
func (t *Table) EvictStale(timeout time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock().Add(-timeout)
	var removed []string
	for id, e := range t.peers {
		if e.LastSeen.Before(cutoff) {
			delete(t.peers, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// ClaimSync returns true the first time it is called for a live entry.
// Eviction resets the claim, so a returning peer triggers a new catch-up.
func (t *Table) ClaimSync(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[id]
	if !ok || e.syncClaimed {
		return false
	}
	e.syncClaimed = true
	return true
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Package diag captures engine log records so they can be replayed to
// subscribers and inspected after the fact.
package diag

import (
	"sync"
	"time"
)

// DefaultBufferSize is the number of entries kept for Recent.
const DefaultBufferSize = 1000

type Entry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Recent returns up to limit entries, oldest first. limit <= 0 returns all.
func (b *Buffer) Recent(limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	start := b.head - n
	if start < 0 {
		start += len(b.entries)
	}
	out := make([]Entry, 0, n)
	for i := range n {
		out = append(out, b.entries[(start+i)%len(b.entries)])
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

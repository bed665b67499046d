package meshsync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DobryySoul/meshsync/internal/wire"
)

// metrics collects engine counters. Counters are lock-free; the per-kind
// breakdown sits behind a mutex.
type metrics struct {
	startTime time.Time

	packetsReceived atomic.Int64
	packetsSent     atomic.Int64
	bytesReceived   atomic.Int64
	bytesSent       atomic.Int64
	malformed       atomic.Int64
	duplicates      atomic.Int64
	hopLimitDrops   atomic.Int64
	relayed         atomic.Int64
	recordsApplied  atomic.Int64
	recordsStale    atomic.Int64
	syncRequests    atomic.Int64
	sendErrors      atomic.Int64
	storeErrors     atomic.Int64

	kindMu   sync.Mutex
	received map[wire.Kind]int64
}

func newMetrics() *metrics {
	return &metrics{
		startTime: time.Now(),
		received:  make(map[wire.Kind]int64),
	}
}

func (m *metrics) recordReceived(kind wire.Kind) {
	m.kindMu.Lock()
	m.received[kind]++
	m.kindMu.Unlock()
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Uptime          time.Duration    `json:"uptime"`
	Running         bool             `json:"running"`
	Peers           int              `json:"peers"`
	DedupEntries    int              `json:"dedup_entries"`
	PacketsReceived int64            `json:"packets_received"`
	PacketsSent     int64            `json:"packets_sent"`
	BytesReceived   int64            `json:"bytes_received"`
	BytesSent       int64            `json:"bytes_sent"`
	Malformed       int64            `json:"malformed"`
	Duplicates      int64            `json:"duplicates"`
	HopLimitDrops   int64            `json:"hop_limit_drops"`
	Relayed         int64            `json:"relayed"`
	RecordsApplied  int64            `json:"records_applied"`
	RecordsStale    int64            `json:"records_stale"`
	SyncRequests    int64            `json:"sync_requests"`
	SendErrors      int64            `json:"send_errors"`
	StoreErrors     int64            `json:"store_errors"`
	ReceivedByKind  map[string]int64 `json:"received_by_kind"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	m := e.metrics
	s := Stats{
		Uptime:          time.Since(m.startTime),
		Running:         e.running.Load(),
		Peers:           e.peers.Len(),
		DedupEntries:    e.dedup.Len(),
		PacketsReceived: m.packetsReceived.Load(),
		PacketsSent:     m.packetsSent.Load(),
		BytesReceived:   m.bytesReceived.Load(),
		BytesSent:       m.bytesSent.Load(),
		Malformed:       m.malformed.Load(),
		Duplicates:      m.duplicates.Load(),
		HopLimitDrops:   m.hopLimitDrops.Load(),
		Relayed:         m.relayed.Load(),
		RecordsApplied:  m.recordsApplied.Load(),
		RecordsStale:    m.recordsStale.Load(),
		SyncRequests:    m.syncRequests.Load(),
		SendErrors:      m.sendErrors.Load(),
		StoreErrors:     m.storeErrors.Load(),
		ReceivedByKind:  make(map[string]int64),
	}
	m.kindMu.Lock()
	for k, v := range m.received {
		s.ReceivedByKind[string(k)] = v
	}
	m.kindMu.Unlock()
	return s
}

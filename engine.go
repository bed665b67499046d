package meshsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/DobryySoul/meshsync/internal/dedup"
	"github.com/DobryySoul/meshsync/internal/diag"
	"github.com/DobryySoul/meshsync/internal/discovery"
	"github.com/DobryySoul/meshsync/internal/peers"
	"github.com/DobryySoul/meshsync/internal/relay"
	"github.com/DobryySoul/meshsync/internal/storage"
	"github.com/DobryySoul/meshsync/internal/transport"
	"github.com/DobryySoul/meshsync/internal/wire"
	"github.com/DobryySoul/meshsync/internal/worker"
	"github.com/DobryySoul/meshsync/model"
)

// Store persists users and meal plans. Getters must return ErrNotFound for
// absent records.
type Store = storage.Store

// LogEntry is one captured engine log record.
type LogEntry = diag.Entry

// PeerInfo is a point-in-time view of a device seen on the mesh.
type PeerInfo struct {
	DeviceID    string
	DisplayName string
	Endpoint    netip.AddrPort
	LastSeen    time.Time
	// Direct is false when the device was only heard through a relay and
	// Endpoint points at the relaying device.
	Direct bool
}

// NewMemoryStore returns a Store that keeps records in process memory.
func NewMemoryStore() Store {
	return storage.NewMemoryStore()
}

// OpenSQLiteStore opens (or creates) a SQLite database at path.
func OpenSQLiteStore(path string) (Store, error) {
	s, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type packetConn interface {
	Send(data []byte, to netip.AddrPort) error
	LocalAddr() netip.AddrPort
	Close() error
}

type senderFunc func(data []byte, to netip.AddrPort) error

func (f senderFunc) Send(data []byte, to netip.AddrPort) error { return f(data, to) }

// Engine replicates records between devices on the local network.
// It is safe for concurrent use by multiple goroutines.
type Engine struct {
	cfg       Config
	identity  DeviceIdentity
	store     Store
	log       *slog.Logger
	logs      *diag.Buffer
	peers     *peers.Table
	dedup     *dedup.Cache
	relay     *relay.Relay
	tasks     *worker.Group
	metrics   *metrics
	pacer     *rate.Limiter
	listeners listeners

	mu        sync.Mutex
	closed    bool
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	relayConn *transport.UDP
	mdns      *discovery.MDNS

	connMu    sync.RWMutex
	conn      packetConn
	broadcast netip.AddrPort

	extraMu sync.RWMutex
	extra   map[netip.AddrPort]struct{}
}

// New creates an engine bound to store. The engine does not touch the
// network until Start is called.
func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("meshsync: store cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		identity: cfg.Identity,
		store:    store,
		logs:     diag.NewBuffer(cfg.LogBufferSize),
		peers:    peers.New(cfg.clock),
		dedup:    dedup.New(cfg.DedupCapacity, 0),
		metrics:  newMetrics(),
		extra:    make(map[netip.AddrPort]struct{}, len(cfg.Seeds)),
	}
	e.log = slog.New(diag.NewHandler(e.logs, cfg.logger.Handler(), e.emitLog)).
		With("device", shortID(cfg.Identity.DeviceID))
	e.tasks = worker.NewGroup(func(name string, err error) {
		e.log.Error("task panicked", "task", name, "err", err)
	})
	e.relay = relay.New(cfg.Identity.DeviceID, senderFunc(e.send), func(err error) {
		e.reportErr("relay send failed", err)
	})

	limit := rate.Inf
	if cfg.SyncPacing > 0 {
		limit = rate.Every(cfg.SyncPacing)
	}
	e.pacer = rate.NewLimiter(limit, 1)

	for _, seed := range cfg.Seeds {
		e.extra[seed] = struct{}{}
	}
	return e, nil
}

// Start binds the mesh socket, starts the background loops and announces
// the device. Calling Start on a running engine is a no-op; a stopped
// engine can be started again.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.running.Load() {
		return nil
	}

	onErr := func(err error) { e.reportErr("transport error", err) }
	conn, err := transport.Listen(e.cfg.ListenAddr, e.handleDatagram, onErr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	if e.cfg.RelayPort > 0 {
		host, _, _ := net.SplitHostPort(e.cfg.ListenAddr)
		rc, err := transport.Listen(net.JoinHostPort(host, strconv.Itoa(e.cfg.RelayPort)), e.handleDatagram, onErr)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: relay port: %w", ErrBind, err)
		}
		e.relayConn = rc
	}
	e.attach(conn)

	if e.cfg.Discovery {
		m, err := discovery.NewMDNS(e.identity.DeviceID, e.identity.Name, int(conn.LocalAddr().Port()), e.addDiscovered)
		if err != nil {
			e.log.Warn("mdns discovery unavailable", "err", err)
		} else {
			e.mdns = m
		}
	}

	e.log.Info("engine started",
		"addr", conn.LocalAddr().String(),
		"relay_port", e.cfg.RelayPort,
		"broadcast", e.broadcastAddr().String(),
	)
	e.announce()
	return nil
}

// attach wires conn in as the outbound socket and starts the schedulers.
func (e *Engine) attach(conn packetConn) {
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.connMu.Lock()
	e.conn = conn
	e.broadcast = broadcastTarget(e.cfg.BroadcastAddr, conn.LocalAddr().Port())
	e.connMu.Unlock()

	e.running.Store(true)
	e.tasks.Every(e.ctx, "presence", e.cfg.PresenceInterval, e.running.Load, e.announce)
	e.tasks.Every(e.ctx, "peer-cleanup", e.cfg.CleanupInterval, e.running.Load, e.cleanup)
}

// Stop halts the loops, closes the sockets and waits for in-flight work.
// The peer table and store are left intact so Start can resume.
// Stop blocks until running listeners return and must not be called from
// inside one.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.cancel()
	e.mdns.Stop()
	e.mdns = nil

	var errs []error
	if e.relayConn != nil {
		errs = append(errs, e.relayConn.Close())
		e.relayConn = nil
	}
	e.connMu.Lock()
	conn := e.conn
	e.conn = nil
	e.connMu.Unlock()
	if conn != nil {
		errs = append(errs, conn.Close())
	}

	e.tasks.Wait()
	e.log.Info("engine stopped")
	return errors.Join(errs...)
}

// Close stops the engine and closes the store.
// Further calls to Start will return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	return errors.Join(e.stopLocked(), e.store.Close())
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Identity returns the device identity used on the wire.
func (e *Engine) Identity() DeviceIdentity {
	return e.identity
}

// LocalAddr returns the bound mesh endpoint, or the zero value when stopped.
func (e *Engine) LocalAddr() netip.AddrPort {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	if e.conn == nil {
		return netip.AddrPort{}
	}
	return e.conn.LocalAddr()
}

// CurrentPeers returns the peer table sorted by device id.
func (e *Engine) CurrentPeers() []PeerInfo {
	snap := e.peers.Snapshot()
	out := make([]PeerInfo, 0, len(snap))
	for _, p := range snap {
		out = append(out, PeerInfo{
			DeviceID:    p.ID,
			DisplayName: p.Name,
			Endpoint:    p.Addr,
			LastSeen:    p.LastSeen,
			Direct:      p.Direct,
		})
	}
	return out
}

// Diagnostics returns up to limit recent log entries, oldest first.
func (e *Engine) Diagnostics(limit int) []LogEntry {
	return e.logs.Recent(limit)
}

// BroadcastRecord floods rec to the whole mesh. It returns once the packet
// is queued; delivery failures are only logged.
func (e *Engine) BroadcastRecord(sess model.Session, rec model.Record) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	pkt, err := e.recordPacket(sess, rec)
	if err != nil {
		return err
	}
	return e.flood(pkt)
}

// SendRecordToPeer unicasts rec to a single known device.
func (e *Engine) SendRecordToPeer(sess model.Session, rec model.Record, peerID string) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	if _, ok := e.peers.Get(peerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	if _, _, err := encodeRecord(rec); err != nil {
		return err
	}
	e.tasks.Go("unicast", func() {
		if err := e.sendToPeer(sess, rec, peerID); err != nil {
			e.reportErr("unicast failed", err)
		}
	})
	return nil
}

// RequestFullSync asks every device on the mesh to send its records.
func (e *Engine) RequestFullSync() error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	e.log.Info("requesting full sync")
	return e.flood(e.newPacket(wire.KindSyncRequest, nil))
}

func (e *Engine) newPacket(kind wire.Kind, payload []byte) wire.Packet {
	pkt := wire.NewPacket(e.identity.DeviceID, e.identity.Name, kind, payload)
	pkt.MaxHops = e.cfg.MaxHops
	return pkt
}

func (e *Engine) recordPacket(sess model.Session, rec model.Record) (wire.Packet, error) {
	kind, payload, err := encodeRecord(rec)
	if err != nil {
		return wire.Packet{}, err
	}
	pkt := e.newPacket(kind, payload)
	if sess.DisplayName != "" {
		pkt.SenderName = sess.DisplayName
	}
	pkt.Version = rec.Stamp().Version
	return pkt, nil
}

func (e *Engine) sendToPeer(sess model.Session, rec model.Record, peerID string) error {
	peer, ok := e.peers.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	pkt, err := e.recordPacket(sess, rec)
	if err != nil {
		return err
	}
	pkt.Target = peerID
	data, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	return e.send(data, peer.Addr)
}

func (e *Engine) flood(pkt wire.Packet) error {
	data, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	e.tasks.Go("fan-out", func() {
		n := e.fanOut(data)
		e.log.Debug("packet sent", "kind", pkt.Kind, "packet", pkt.ID, "destinations", n)
	})
	return nil
}

// fanOut sends data to the broadcast address, every known peer and every
// seed or discovered endpoint. It returns the number of successful sends.
func (e *Engine) fanOut(data []byte) int {
	sent := 0
	for _, dest := range e.destinations() {
		if err := e.send(data, dest); err != nil {
			e.reportErr("send failed", err)
			continue
		}
		sent++
	}
	return sent
}

func (e *Engine) destinations() []netip.AddrPort {
	seen := make(map[netip.AddrPort]struct{})
	var out []netip.AddrPort
	add := func(ap netip.AddrPort) {
		if !ap.IsValid() || ap.Port() == 0 {
			return
		}
		if _, ok := seen[ap]; ok {
			return
		}
		seen[ap] = struct{}{}
		out = append(out, ap)
	}

	add(e.broadcastAddr())
	for _, p := range e.peers.Snapshot() {
		add(p.Addr)
	}
	e.extraMu.RLock()
	for ap := range e.extra {
		add(ap)
	}
	e.extraMu.RUnlock()
	return out
}

func (e *Engine) send(data []byte, to netip.AddrPort) error {
	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()
	if conn == nil {
		return ErrNotRunning
	}
	if err := conn.Send(data, to); err != nil {
		e.metrics.sendErrors.Add(1)
		return err
	}
	e.metrics.packetsSent.Add(1)
	e.metrics.bytesSent.Add(int64(len(data)))
	return nil
}

func (e *Engine) broadcastAddr() netip.AddrPort {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.broadcast
}

// announce advertises this device to every reachable endpoint.
func (e *Engine) announce() {
	data, err := wire.Encode(e.newPacket(wire.KindAnnounce, nil))
	if err != nil {
		e.reportErr("encode announce", err)
		return
	}
	n := e.fanOut(data)
	e.log.Debug("presence announced", "destinations", n)
}

// cleanup evicts peers that have been silent longer than the peer timeout.
func (e *Engine) cleanup() {
	removed := e.peers.EvictStale(e.cfg.PeerTimeout)
	if len(removed) == 0 {
		return
	}
	e.log.Info("evicted stale peers", "peers", removed)
	e.notifyPeers()
}

func (e *Engine) notifyPeers() {
	emit(e, "peers-listener", &e.listeners.peers, e.CurrentPeers())
}

// addDiscovered records an mDNS endpoint and greets it directly.
func (e *Engine) addDiscovered(entry discovery.Entry) {
	e.extraMu.Lock()
	_, known := e.extra[entry.Addr]
	e.extra[entry.Addr] = struct{}{}
	e.extraMu.Unlock()
	if known || !e.running.Load() {
		return
	}

	e.log.Info("mdns peer discovered", "peer", entry.DeviceID, "addr", entry.Addr.String())
	data, err := wire.Encode(e.newPacket(wire.KindAnnounce, nil))
	if err != nil {
		e.reportErr("encode announce", err)
		return
	}
	if err := e.send(data, entry.Addr); err != nil {
		e.reportErr("send failed", err)
	}
}

func (e *Engine) reportErr(msg string, err error) {
	e.log.Warn(msg, "err", err)
	e.cfg.errorHandler(err)
}

func broadcastTarget(addr string, port uint16) netip.AddrPort {
	if addr == "" || port == 0 {
		return netip.AddrPort{}
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(ip, port)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package meshsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DobryySoul/meshsync/internal/wire"
	"github.com/DobryySoul/meshsync/model"
)

const testBroadcast = "10.0.0.255"

var errConnClosed = errors.New("fake conn closed")

// sent is one datagram handed to a fake socket.
type sent struct {
	from netip.AddrPort
	to   netip.AddrPort
	pkt  wire.Packet
}

// fakeNet delivers datagrams between engines in process. Without links every
// node hears every other node.
type fakeNet struct {
	mu     sync.Mutex
	nodes  map[netip.AddrPort]*Engine
	links  map[[2]netip.AddrPort]bool
	log    []sent
	closed bool
	wg     sync.WaitGroup
}

func newFakeNet(t testing.TB) *fakeNet {
	n := &fakeNet{nodes: make(map[netip.AddrPort]*Engine)}
	t.Cleanup(n.shutdown)
	return n
}

// link restricts delivery to explicitly linked pairs.
func (n *fakeNet) link(a, b netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.links == nil {
		n.links = make(map[[2]netip.AddrPort]bool)
	}
	n.links[[2]netip.AddrPort{a, b}] = true
	n.links[[2]netip.AddrPort{b, a}] = true
}

func (n *fakeNet) join(e *Engine, addr netip.AddrPort) {
	n.mu.Lock()
	n.nodes[addr] = e
	n.mu.Unlock()
	e.attach(&fakeConn{net: n, addr: addr})
}

func (n *fakeNet) shutdown() {
	n.mu.Lock()
	n.closed = true
	nodes := make([]*Engine, 0, len(n.nodes))
	for _, e := range n.nodes {
		nodes = append(nodes, e)
	}
	n.mu.Unlock()

	n.wg.Wait()
	for _, e := range nodes {
		_ = e.Stop()
	}
}

func (n *fakeNet) reachable(from, to netip.AddrPort) bool {
	if from == to {
		return false
	}
	return n.links == nil || n.links[[2]netip.AddrPort{from, to}]
}

func (n *fakeNet) send(from, to netip.AddrPort, data []byte) {
	pkt, _ := wire.Decode(data)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.log = append(n.log, sent{from: from, to: to, pkt: pkt})
	if n.closed {
		return
	}

	var targets []*Engine
	if to.Addr().String() == testBroadcast {
		for addr, e := range n.nodes {
			if addr.Port() == to.Port() && n.reachable(from, addr) {
				targets = append(targets, e)
			}
		}
	} else if e, ok := n.nodes[to]; ok && n.reachable(from, to) {
		targets = append(targets, e)
	}

	for _, dst := range targets {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			dst.handleDatagram(bytes.Clone(data), from)
		}()
	}
}

// count returns how many packets of kind were sent to to.
func (n *fakeNet) count(to netip.AddrPort, kind wire.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.log {
		if s.to == to && s.pkt.Kind == kind {
			c++
		}
	}
	return c
}

func (n *fakeNet) sentTo(to netip.AddrPort) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.log {
		if s.to == to {
			out = append(out, s)
		}
	}
	return out
}

type fakeConn struct {
	net    *fakeNet
	addr   netip.AddrPort
	closed atomic.Bool
}

func (c *fakeConn) Send(data []byte, to netip.AddrPort) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.net.send(c.addr, to, data)
	return nil
}

func (c *fakeConn) LocalAddr() netip.AddrPort { return c.addr }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func addr(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine whose schedulers never tick during a test.
func newTestEngine(t testing.TB, id string, store Store, opts ...Option) *Engine {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	base := []Option{
		WithIdentity(DeviceIdentity{DeviceID: id, Name: id}),
		WithBroadcastAddr(""),
		WithPresenceInterval(time.Hour),
		WithPeerTimeout(2 * time.Hour),
		WithCleanupInterval(time.Hour),
		WithSyncPacing(0),
		WithLogger(quietLogger()),
	}
	e, err := New(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func datagram(t testing.TB, senderID string, kind wire.Kind, payload []byte, mutate func(*wire.Packet)) []byte {
	t.Helper()
	pkt := wire.NewPacket(senderID, senderID, kind, payload)
	if mutate != nil {
		mutate(&pkt)
	}
	data, err := wire.Encode(pkt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func recordDatagram(t testing.TB, senderID string, rec model.Record, mutate func(*wire.Packet)) []byte {
	t.Helper()
	kind, payload, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return datagram(t, senderID, kind, payload, mutate)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// settle gives asynchronous fan-outs time to run before asserting that
// something did not happen.
func settle() {
	time.Sleep(100 * time.Millisecond)
}

type failingStore struct {
	Store
	failID string
}

func (s failingStore) InsertUser(ctx context.Context, u model.User) error {
	if u.ID == s.failID {
		return errors.New("disk full")
	}
	return s.Store.InsertUser(ctx, u)
}

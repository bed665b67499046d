package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceName = "_meshsync._udp"
	domain      = "local."
	deviceKey   = "device="
)

// Entry is a mesh endpoint found on the local network.
type Entry struct {
	DeviceID string
	Addr     netip.AddrPort
}

// MDNS advertises the local device and reports other devices on the LAN.
type MDNS struct {
	deviceID string
	server   *zeroconf.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewMDNS registers deviceID on port and starts browsing. onPeer is called
// for each IPv4 endpoint of every other device that answers.
func NewMDNS(deviceID, name string, port int, onPeer func(Entry)) (*MDNS, error) {
	if name == "" {
		name = deviceID
	}
	server, err := zeroconf.Register(deviceID, ServiceName, domain, port, []string{
		deviceKey + deviceID,
		"name=" + name,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)
	m := &MDNS{
		deviceID: deviceID,
		server:   server,
		cancel:   cancel,
	}

	m.wg.Add(1)
	go m.browseLoop(entries, onPeer)

	if err := resolver.Browse(ctx, ServiceName, domain, entries); err != nil {
		cancel()
		server.Shutdown()
		m.wg.Wait()
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	return m, nil
}

func (m *MDNS) browseLoop(entries <-chan *zeroconf.ServiceEntry, onPeer func(Entry)) {
	defer m.wg.Done()
	for entry := range entries {
		if m.isSelf(entry) {
			continue
		}
		id := deviceID(entry)
		for _, ip := range entry.AddrIPv4 {
			addr, ok := toAddrPort(ip, entry.Port)
			if !ok {
				continue
			}
			onPeer(Entry{DeviceID: id, Addr: addr})
		}
	}
}

func (m *MDNS) isSelf(entry *zeroconf.ServiceEntry) bool {
	return slices.Contains(entry.Text, deviceKey+m.deviceID)
}

func deviceID(entry *zeroconf.ServiceEntry) string {
	for _, txt := range entry.Text {
		if id, ok := strings.CutPrefix(txt, deviceKey); ok {
			return id
		}
	}
	return entry.Instance
}

func toAddrPort(ip net.IP, port int) (netip.AddrPort, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok || port <= 0 || port > 65535 {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)), true
}

// Stop shuts down advertisement and browsing.
func (m *MDNS) Stop() {
	if m == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.server.Shutdown()
}

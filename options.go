package meshsync

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/DobryySoul/meshsync/internal/dedup"
	"github.com/DobryySoul/meshsync/internal/diag"
	"github.com/DobryySoul/meshsync/internal/peers"
	"github.com/DobryySoul/meshsync/internal/wire"
)

const (
	DefaultPort             = 8888
	DefaultRelayPort        = 8889
	DefaultBroadcastAddr    = "255.255.255.255"
	DefaultPresenceInterval = 10 * time.Second
	DefaultSyncPacing       = 50 * time.Millisecond
)

// Option configures the engine on creation.
// Return an error to reject an invalid option value.
type Option func(*Config) error

// Config holds runtime configuration for an engine.
// Users typically set it via Option helpers.
type Config struct {
	ListenAddr       string
	RelayPort        int
	BroadcastAddr    string
	Identity         DeviceIdentity
	Seeds            []netip.AddrPort
	Discovery        bool
	PresenceInterval time.Duration
	PeerTimeout      time.Duration
	CleanupInterval  time.Duration
	MaxHops          int
	DedupCapacity    int
	SyncPacing       time.Duration
	LogBufferSize    int

	logger       *slog.Logger
	errorHandler func(error)
	clock        func() time.Time
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultPort)),
		BroadcastAddr:    DefaultBroadcastAddr,
		PresenceInterval: DefaultPresenceInterval,
		PeerTimeout:      peers.DefaultTimeout,
		CleanupInterval:  peers.DefaultCleanupInterval,
		MaxHops:          wire.DefaultMaxHops,
		DedupCapacity:    dedup.DefaultCapacity,
		SyncPacing:       DefaultSyncPacing,
		LogBufferSize:    diag.DefaultBufferSize,
	}
}

func (c *Config) finalize() error {
	if c.Identity.DeviceID == "" {
		c.Identity = NewIdentity(c.Identity.Name)
	}
	if err := validateAddr(c.ListenAddr); err != nil {
		return err
	}
	if c.BroadcastAddr != "" {
		addr, err := netip.ParseAddr(c.BroadcastAddr)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("meshsync: broadcast addr %q must be an IPv4 address", c.BroadcastAddr)
		}
	}
	if c.PresenceInterval <= 0 || c.PeerTimeout <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("meshsync: intervals must be positive")
	}
	if c.PresenceInterval >= c.PeerTimeout {
		return fmt.Errorf("meshsync: presence interval %s must be shorter than peer timeout %s",
			c.PresenceInterval, c.PeerTimeout)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.errorHandler == nil {
		c.errorHandler = func(error) {}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return nil
}

// WithListenAddr sets the mesh bind address in host:port form.
// Port 0 picks a free port, which disables broadcast delivery.
func WithListenAddr(addr string) Option {
	return func(c *Config) error {
		if err := validateAddr(addr); err != nil {
			return err
		}
		c.ListenAddr = addr
		return nil
	}
}

// WithPort binds the mesh socket on all IPv4 interfaces at port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("meshsync: invalid port %d", port)
		}
		c.ListenAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
		return nil
	}
}

// WithRelayPort opens a second listener on port that feeds the same ingress
// path as the main socket. Zero disables it.
func WithRelayPort(port int) Option {
	return func(c *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("meshsync: invalid relay port %d", port)
		}
		c.RelayPort = port
		return nil
	}
}

// WithBroadcastAddr sets the IPv4 broadcast destination. An empty string
// disables broadcast; packets then only reach known peers and seeds.
func WithBroadcastAddr(addr string) Option {
	return func(c *Config) error {
		c.BroadcastAddr = addr
		return nil
	}
}

// WithIdentity sets the persistent device identity.
// If omitted, an ephemeral identity is generated.
func WithIdentity(id DeviceIdentity) Option {
	return func(c *Config) error {
		if id.DeviceID == "" {
			return fmt.Errorf("meshsync: device id cannot be empty")
		}
		c.Identity = id
		return nil
	}
}

// WithDeviceName sets the display name used for an ephemeral identity.
func WithDeviceName(name string) Option {
	return func(c *Config) error {
		c.Identity.Name = name
		return nil
	}
}

// WithSeeds sets endpoints that receive announcements and broadcasts in
// addition to the broadcast address, for networks that filter broadcast.
func WithSeeds(seeds []string) Option {
	return func(c *Config) error {
		parsed := make([]netip.AddrPort, 0, len(seeds))
		for _, seed := range seeds {
			ap, err := netip.ParseAddrPort(seed)
			if err != nil {
				return fmt.Errorf("meshsync: invalid seed %q: %w", seed, err)
			}
			parsed = append(parsed, ap)
		}
		c.Seeds = parsed
		return nil
	}
}

// WithDiscovery enables or disables mDNS advertisement and browsing.
func WithDiscovery(enabled bool) Option {
	return func(c *Config) error {
		c.Discovery = enabled
		return nil
	}
}

// WithPresenceInterval sets how often the device announces itself.
func WithPresenceInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval <= 0 {
			return fmt.Errorf("meshsync: presence interval must be positive")
		}
		c.PresenceInterval = interval
		return nil
	}
}

// WithPeerTimeout sets how long a silent peer stays in the peer table.
func WithPeerTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return fmt.Errorf("meshsync: peer timeout must be positive")
		}
		c.PeerTimeout = timeout
		return nil
	}
}

// WithCleanupInterval sets how often stale peers are evicted.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval <= 0 {
			return fmt.Errorf("meshsync: cleanup interval must be positive")
		}
		c.CleanupInterval = interval
		return nil
	}
}

// WithMaxHops sets the relay ceiling stamped on outbound packets.
func WithMaxHops(hops int) Option {
	return func(c *Config) error {
		if hops <= 0 {
			return fmt.Errorf("meshsync: max hops must be positive")
		}
		c.MaxHops = hops
		return nil
	}
}

// WithDedupCapacity sets the high-water mark of the duplicate filter.
func WithDedupCapacity(n int) Option {
	return func(c *Config) error {
		if n <= 1 {
			return fmt.Errorf("meshsync: dedup capacity must be greater than 1")
		}
		c.DedupCapacity = n
		return nil
	}
}

// WithSyncPacing sets the delay between records sent while answering a sync
// request. Zero sends without pacing.
func WithSyncPacing(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("meshsync: sync pacing cannot be negative")
		}
		c.SyncPacing = d
		return nil
	}
}

// WithLogBufferSize sets how many entries Diagnostics can return.
func WithLogBufferSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("meshsync: log buffer size must be positive")
		}
		c.LogBufferSize = n
		return nil
	}
}

// WithLogger sets the logger that engine records are forwarded to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("meshsync: logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithErrorHandler sets a callback for internal errors (decode, network, store).
// It is best-effort and must be fast and non-blocking.
func WithErrorHandler(handler func(error)) Option {
	return func(c *Config) error {
		if handler == nil {
			return fmt.Errorf("meshsync: error handler cannot be nil")
		}
		c.errorHandler = handler
		return nil
	}
}

func withClock(clock func() time.Time) Option {
	return func(c *Config) error {
		c.clock = clock
		return nil
	}
}

func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("meshsync: invalid address %q: %w", addr, err)
	}
	if host != "" {
		if _, err := netip.ParseAddr(host); err != nil {
			return fmt.Errorf("meshsync: invalid address %q: %w", addr, err)
		}
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("meshsync: invalid port in %q", addr)
	}
	return nil
}

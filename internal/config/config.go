// Package config loads CLI settings from a TOML file, MESHSYNC_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/DobryySoul/meshsync"
)

const (
	EnvPrefix      = "MESHSYNC"
	configName     = "config"
	defaultDirName = "meshsync"
)

type Config struct {
	DeviceName       string        `mapstructure:"device_name"`
	IdentityPath     string        `mapstructure:"identity_path"`
	DatabasePath     string        `mapstructure:"database_path"`
	Port             int           `mapstructure:"port"`
	RelayPort        int           `mapstructure:"relay_port"`
	BroadcastAddr    string        `mapstructure:"broadcast_addr"`
	Seeds            []string      `mapstructure:"seeds"`
	Discovery        bool          `mapstructure:"discovery"`
	PresenceInterval time.Duration `mapstructure:"presence_interval"`
	PeerTimeout      time.Duration `mapstructure:"peer_timeout"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	MaxHops          int           `mapstructure:"max_hops"`
	SyncPacing       time.Duration `mapstructure:"sync_pacing"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
}

// DefaultDir returns the directory holding the identity, database and
// config file when no explicit paths are given.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, defaultDirName)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	dir := DefaultDir()

	v.SetDefault("device_name", "")
	v.SetDefault("identity_path", filepath.Join(dir, "identity.toml"))
	v.SetDefault("database_path", filepath.Join(dir, "meshsync.db"))
	v.SetDefault("port", meshsync.DefaultPort)
	v.SetDefault("relay_port", 0)
	v.SetDefault("broadcast_addr", meshsync.DefaultBroadcastAddr)
	v.SetDefault("seeds", []string{})
	v.SetDefault("discovery", true)
	v.SetDefault("presence_interval", meshsync.DefaultPresenceInterval)
	v.SetDefault("peer_timeout", 2*time.Minute)
	v.SetDefault("cleanup_interval", 30*time.Second)
	v.SetDefault("max_hops", 10)
	v.SetDefault("sync_pacing", meshsync.DefaultSyncPacing)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the merged settings. An
// empty file searches the default directory and the working directory; a
// missing file is only an error when it was named explicitly.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.RelayPort < 0 || c.RelayPort > 65535 {
		return fmt.Errorf("config: relay_port %d out of range", c.RelayPort)
	}
	if c.RelayPort != 0 && c.RelayPort == c.Port {
		return fmt.Errorf("config: relay_port must differ from port")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

// Options converts the settings into engine options. Invalid values are
// reported by meshsync.New.
func (c Config) Options(identity meshsync.DeviceIdentity) []meshsync.Option {
	opts := []meshsync.Option{
		meshsync.WithIdentity(identity),
		meshsync.WithPort(c.Port),
		meshsync.WithRelayPort(c.RelayPort),
		meshsync.WithBroadcastAddr(c.BroadcastAddr),
		meshsync.WithDiscovery(c.Discovery),
		meshsync.WithPresenceInterval(c.PresenceInterval),
		meshsync.WithPeerTimeout(c.PeerTimeout),
		meshsync.WithCleanupInterval(c.CleanupInterval),
		meshsync.WithMaxHops(c.MaxHops),
		meshsync.WithSyncPacing(c.SyncPacing),
	}
	if len(c.Seeds) > 0 {
		opts = append(opts, meshsync.WithSeeds(c.Seeds))
	}
	return opts
}

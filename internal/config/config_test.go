package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DobryySoul/meshsync"
)

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 8888 {
		t.Fatalf("port mismatch: %v", cfg.Port)
	}
	if cfg.PresenceInterval != 10*time.Second || cfg.PeerTimeout != 2*time.Minute {
		t.Fatalf("interval mismatch: %v %v", cfg.PresenceInterval, cfg.PeerTimeout)
	}
	if !cfg.Discovery {
		t.Fatalf("discovery should default to on")
	}
	if filepath.Base(cfg.IdentityPath) != "identity.toml" {
		t.Fatalf("identity path mismatch: %v", cfg.IdentityPath)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshsync.toml")
	data := `
device_name = "kitchen"
port = 9000
relay_port = 9001
seeds = ["192.168.1.20:9000"]
presence_interval = "5s"
log_format = "json"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("MESHSYNC_PORT", "9100")
	t.Setenv("MESHSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DeviceName != "kitchen" {
		t.Fatalf("device name mismatch: %v", cfg.DeviceName)
	}
	if cfg.Port != 9100 {
		t.Fatalf("env should override file port, got %v", cfg.Port)
	}
	if cfg.RelayPort != 9001 {
		t.Fatalf("relay port mismatch: %v", cfg.RelayPort)
	}
	if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "192.168.1.20:9000" {
		t.Fatalf("seeds mismatch: %v", cfg.Seeds)
	}
	if cfg.PresenceInterval != 5*time.Second {
		t.Fatalf("presence mismatch: %v", cfg.PresenceInterval)
	}
	if level, _ := cfg.Level(); level.String() != "DEBUG" {
		t.Fatalf("level mismatch: %v", level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "port", body: "port = 0\n"},
		{name: "relay equals port", body: "port = 9000\nrelay_port = 9000\n"},
		{name: "log format", body: "log_format = \"xml\"\n"},
		{name: "log level", body: "log_level = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if _, err := Load(New(), path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}

func TestOptionsBuildEngine(t *testing.T) {
	isolate(t)
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.Seeds = []string{"10.0.0.2:8888"}

	id := meshsync.NewIdentity("test")
	e, err := meshsync.New(meshsync.NewMemoryStore(), cfg.Options(id)...)
	if err != nil {
		t.Fatalf("engine rejected config options: %v", err)
	}
	if e.Identity().DeviceID != id.DeviceID {
		t.Fatalf("identity not applied")
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/DobryySoul/meshsync"
	"github.com/DobryySoul/meshsync/internal/config"
	"github.com/DobryySoul/meshsync/model"
)

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(t.TempDir())
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v failed: %v", args, err)
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	out := execute(t, "version")
	if !strings.HasPrefix(out, "meshsync version 1.2.3") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestIdentityCommandIsStable(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "identity.toml")

	first := execute(t, "identity", "--identity", path, "--device-name", "pantry")
	second := execute(t, "identity", "--identity", path)
	if first != second {
		t.Fatalf("identity changed between runs:\n%s\n%s", first, second)
	}
	if !strings.Contains(first, "Name:      pantry") {
		t.Fatalf("name missing: %q", first)
	}
}

func TestPrinter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := newPrinter(&buf)
	p.now = func() time.Time { return time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC) }

	p.chat(model.ChatMessage{SenderName: "Alice", Content: "dinner?"})
	p.peers([]meshsync.PeerInfo{{
		DeviceID:    "dev-b",
		DisplayName: "kitchen",
		Endpoint:    netip.MustParseAddrPort("192.168.1.20:8888"),
		Direct:      false,
	}})

	out := buf.String()
	for _, want := range []string{
		"09:30:00 chat   <Alice> dinner?",
		"1 known",
		"dev-b kitchen 192.168.1.20:8888 (relayed)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "peer", "dev-b")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rec["msg"] != "shown" || rec["peer"] != "dev-b" {
		t.Fatalf("record mismatch: %v", rec)
	}
}

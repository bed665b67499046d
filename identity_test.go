package meshsync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "identity.toml")

	first, err := LoadOrCreateIdentity(path, "kitchen")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first.DeviceID == "" || first.Name != "kitchen" {
		t.Fatalf("identity mismatch: %+v", first)
	}

	second, err := LoadOrCreateIdentity(path, "renamed")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Fatalf("device id changed: %v != %v", second.DeviceID, first.DeviceID)
	}
	if second.Name != "kitchen" {
		t.Fatalf("name should not change on reload: %v", second.Name)
	}
}

func TestLoadOrCreateIdentityCorrupt(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.toml")
	if err := os.WriteFile(garbage, []byte("device_id = "), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadOrCreateIdentity(garbage, ""); !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected ErrIdentity, got %v", err)
	}

	badID := filepath.Join(dir, "bad-id.toml")
	if err := os.WriteFile(badID, []byte("device_id = \"not-a-uuid\"\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadOrCreateIdentity(badID, ""); !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected ErrIdentity, got %v", err)
	}
}

func TestEphemeralIdentity(t *testing.T) {
	a, err := LoadOrCreateIdentity("", "tablet")
	if err != nil {
		t.Fatalf("ephemeral failed: %v", err)
	}
	b := NewIdentity("tablet")
	if a.DeviceID == b.DeviceID {
		t.Fatalf("ephemeral identities should differ")
	}
}

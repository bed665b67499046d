package meshsync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// DeviceIdentity names this device on the mesh. DeviceID never changes once
// it has been written to disk.
type DeviceIdentity struct {
	DeviceID  string    `toml:"device_id"`
	Name      string    `toml:"name"`
	CreatedAt time.Time `toml:"created_at"`
}

// NewIdentity returns a fresh identity. An empty name falls back to the
// host name.
func NewIdentity(name string) DeviceIdentity {
	if name == "" {
		name, _ = os.Hostname()
	}
	return DeviceIdentity{
		DeviceID:  uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// LoadOrCreateIdentity reads the identity stored at path, creating and
// persisting a new one when the file does not exist. name is only used for
// a newly created identity. An empty path returns an ephemeral identity.
func LoadOrCreateIdentity(path, name string) (DeviceIdentity, error) {
	if path == "" {
		return NewIdentity(name), nil
	}

	var id DeviceIdentity
	_, err := toml.DecodeFile(path, &id)
	switch {
	case err == nil:
		if _, perr := uuid.Parse(id.DeviceID); perr != nil {
			return DeviceIdentity{}, fmt.Errorf("%w: %s: device id %q", ErrIdentity, path, id.DeviceID)
		}
		return id, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return DeviceIdentity{}, fmt.Errorf("%w: %s: %w", ErrIdentity, path, err)
	}

	id = NewIdentity(name)
	if err := writeIdentity(path, id); err != nil {
		return DeviceIdentity{}, err
	}
	return id, nil
}

func writeIdentity(path string, id DeviceIdentity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("meshsync: create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".identity-*")
	if err != nil {
		return fmt.Errorf("meshsync: write identity: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(id); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("meshsync: encode identity: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("meshsync: write identity: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("meshsync: write identity: %w", err)
	}
	return nil
}

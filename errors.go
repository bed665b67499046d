package meshsync

import (
	"errors"

	"github.com/DobryySoul/meshsync/internal/storage"
	"github.com/DobryySoul/meshsync/internal/transport"
	"github.com/DobryySoul/meshsync/internal/wire"
)

var (
	// ErrBind indicates that the mesh port could not be bound on Start.
	ErrBind = errors.New("meshsync: bind failed")
	// ErrClosed indicates that the engine was closed and cannot be restarted.
	ErrClosed = errors.New("meshsync: engine closed")
	// ErrNotRunning indicates that the engine has not been started or was stopped.
	ErrNotRunning = errors.New("meshsync: engine not running")
	// ErrUnknownPeer indicates that the target device is not in the peer table.
	ErrUnknownPeer = errors.New("meshsync: unknown peer")
	// ErrStore wraps failures reported by the persistent store.
	ErrStore = errors.New("meshsync: store failure")
	// ErrUnsupportedRecord indicates a record type the engine cannot replicate.
	ErrUnsupportedRecord = errors.New("meshsync: unsupported record")
	// ErrIdentity indicates a missing or corrupt identity file.
	ErrIdentity = errors.New("meshsync: invalid identity")

	// ErrNotFound must be returned by Store getters for absent records.
	ErrNotFound = storage.ErrNotFound
	// ErrMalformedPacket matches datagrams that failed to decode.
	ErrMalformedPacket = wire.ErrMalformed
	// ErrSend matches per-destination send failures.
	ErrSend = transport.ErrSend
)

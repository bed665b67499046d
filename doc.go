// Package meshsync replicates application records between devices on the
// same local network without a server.
//
// # Overview
//
// Every device runs an Engine bound to a UDP port (8888 by default). Packets
// are JSON envelopes sent to the IPv4 broadcast address and to every known
// peer. Devices relay broadcast packets to their own peers, so two devices
// that cannot hear each other still converge through a third one. A hop
// counter bounds relaying and a duplicate filter drops packets already seen.
//
// # Data model
//
// Users and meal plans are persisted through a Store and merged with a
// last-write-wins rule: higher Version wins, then later update time. Equal
// stamps keep the local copy. Chat messages are delivered to listeners but
// never stored.
//
// # Peers
//
// Devices announce themselves every presence interval and are evicted after
// the peer timeout. The first announcement from a new device triggers a full
// sync request so a device that joins late catches up.
//
// # Observability
//
// Engine logs go through log/slog. The last records are kept in memory
// (Diagnostics) and streamed to OnLog subscribers.
//
// Example
//
//	store := meshsync.NewMemoryStore()
//	engine, err := meshsync.New(store,
//		meshsync.WithDeviceName("kitchen-tablet"),
//		meshsync.WithSeeds([]string{"192.168.1.20:8888"}),
//	)
//	if err != nil {
//		// handle error
//	}
//	engine.OnUser(func(u model.User) { fmt.Println("user", u.Username) })
//	if err := engine.Start(); err != nil {
//		// handle error
//	}
//	defer engine.Stop()
package meshsync

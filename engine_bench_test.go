package meshsync

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/DobryySoul/meshsync/internal/wire"
	"github.com/DobryySoul/meshsync/model"
)

func BenchmarkApplyLWW(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	users := make([]model.User, 0, 100)
	for i := range 100 {
		u := testUser("u"+strconv.Itoa(i), int64(i+1), now.Add(time.Duration(i)*time.Nanosecond))
		if err := store.InsertUser(ctx, u); err != nil {
			b.Fatalf("seed failed: %v", err)
		}
		users = append(users, u)
	}

	for b.Loop() {
		for _, u := range users {
			if _, err := applyLWW(ctx, u, store.GetUser, store.InsertUser, store.UpdateUser); err != nil {
				b.Fatalf("apply failed: %v", err)
			}
		}
	}
}

func BenchmarkHandleDuplicateDatagram(b *testing.B) {
	mesh := newFakeNet(b)
	e := newTestEngine(b, "dev-b", nil)
	mesh.join(e, addrB)

	data := datagram(b, "dev-a", wire.KindAnnounce, nil, nil)
	e.handleDatagram(data, addrA)

	for b.Loop() {
		e.handleDatagram(data, addrA)
	}
}

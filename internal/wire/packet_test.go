package wire

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	p := NewPacket("dev-a", "alice", KindMealPlan, []byte(`{"id":"mp1","version":2}`))
	p.Version = 2
	p.Target = "dev-b"

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ID != p.ID || got.SenderID != "dev-a" || got.Target != "dev-b" {
		t.Fatalf("header mismatch: %#v", got)
	}
	if got.Kind != KindMealPlan || got.Version != 2 || got.MaxHops != DefaultMaxHops {
		t.Fatalf("fields mismatch: %#v", got)
	}
	if string(got.Payload) != `{"id":"mp1","version":2}` {
		t.Fatalf("payload mismatch: %s", got.Payload)
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Encode(NewPacket("dev-a", "alice", KindAnnounce, nil))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("  \n")},
		{"truncated", valid[:len(valid)/2]},
		{"not json", []byte("hello")},
		{"missing sender", []byte(`{"id":"x","kind":"announce","max_hops":10}`)},
		{"missing kind", []byte(`{"id":"x","sender_id":"a","max_hops":10}`)},
		{"negative hops", []byte(`{"id":"x","sender_id":"a","kind":"announce","hops":-1,"max_hops":10}`)},
		{"zero max hops", []byte(`{"id":"x","sender_id":"a","kind":"announce"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	p, err := Decode([]byte(`{"id":"x","sender_id":"a","kind":"presence_v2","max_hops":4,"extra":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Kind.Known() {
		t.Fatalf("expected unknown kind")
	}
}

func TestDedupKey(t *testing.T) {
	p := Packet{ID: "abc", SenderID: "a"}
	if p.DedupKey() != "abc" {
		t.Fatalf("key mismatch: %v", p.DedupKey())
	}

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p = Packet{SenderID: "a", SentAt: ts, Kind: KindAnnounce}
	want := "a|" + strconv.FormatInt(ts.UnixNano(), 10) + "|announce"
	if p.DedupKey() != want {
		t.Fatalf("key mismatch: %v", p.DedupKey())
	}
}

func BenchmarkEncodeDecode(b *testing.B) {
	p := NewPacket("dev-a", "alice", KindUser, []byte(`{"id":"u1","username":"alice","version":1}`))
	for b.Loop() {
		data, err := Encode(p)
		if err != nil {
			b.Fatalf("encode failed: %v", err)
		}
		if _, err := Decode(data); err != nil {
			b.Fatalf("decode failed: %v", err)
		}
	}
}

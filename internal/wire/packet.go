package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxHops bounds how many relays a packet may undergo.
const DefaultMaxHops = 10

// ErrMalformed is returned by Decode for truncated or invalid datagrams.
var ErrMalformed = errors.New("wire: malformed packet")

type Kind string

const (
	KindUser        Kind = "user"
	KindMealPlan    Kind = "meal_plan"
	KindChatMessage Kind = "chat_message"
	KindSyncRequest Kind = "sync_request"
	KindAnnounce    Kind = "announce"
)

// Known reports whether this build knows how to dispatch k.
// Unknown kinds still decode so newer peers can flood through older ones.
func (k Kind) Known() bool {
	switch k {
	case KindUser, KindMealPlan, KindChatMessage, KindSyncRequest, KindAnnounce:
		return true
	}
	return false
}

// IsRecord reports whether k carries a replicated record.
func (k Kind) IsRecord() bool {
	return k == KindUser || k == KindMealPlan || k == KindChatMessage
}

type Packet struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name,omitempty"`
	Target     string          `json:"target,omitempty"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Version    int64           `json:"version,omitempty"`
	SentAt     time.Time       `json:"sent_at"`
	Hops       int             `json:"hops"`
	MaxHops    int             `json:"max_hops"`
}

// NewPacket returns a hop-0 packet with a fresh identifier.
func NewPacket(senderID, senderName string, kind Kind, payload []byte) Packet {
	return Packet{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       kind,
		Payload:    payload,
		SentAt:     time.Now(),
		MaxHops:    DefaultMaxHops,
	}
}

// Broadcast reports whether the packet is meant for the whole mesh.
func (p Packet) Broadcast() bool {
	return p.Target == ""
}

// DedupKey identifies a packet across retries and relays.
func (p Packet) DedupKey() string {
	if p.ID != "" {
		return p.ID
	}
	return p.SenderID + "|" + strconv.FormatInt(p.SentAt.UnixNano(), 10) + "|" + string(p.Kind)
}

func Encode(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func Decode(data []byte) (Packet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Packet{}, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.SenderID == "" {
		return Packet{}, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	if p.Kind == "" {
		return Packet{}, fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	if p.Hops < 0 || p.MaxHops <= 0 {
		return Packet{}, fmt.Errorf("%w: invalid hops %d/%d", ErrMalformed, p.Hops, p.MaxHops)
	}
	return p, nil
}

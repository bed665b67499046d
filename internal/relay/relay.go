// Package relay decides where an inbound packet is forwarded and performs
// the fan-out.
package relay

import (
	"fmt"
	"net/netip"

	"github.com/DobryySoul/meshsync/internal/peers"
	"github.com/DobryySoul/meshsync/internal/wire"
)

type Decision int

const (
	Flood Decision = iota
	Forward
	DropDelivered
	DropHopLimit
	DropUnknownTarget
)

func (d Decision) String() string {
	switch d {
	case Flood:
		return "flood"
	case Forward:
		return "forward"
	case DropDelivered:
		return "delivered"
	case DropHopLimit:
		return "hop-limit"
	case DropUnknownTarget:
		return "unknown-target"
	default:
		return "unknown"
	}
}

// Plan is the outcome of a relay decision. Packet carries the incremented
// hop count and is only meaningful when Decision is Flood or Forward.
type Plan struct {
	Decision     Decision
	Packet       wire.Packet
	Destinations []netip.AddrPort
}

// Sender transmits one datagram.
type Sender interface {
	Send(data []byte, to netip.AddrPort) error
}

type Relay struct {
	self    string
	sender  Sender
	onError func(error)
}

func New(selfID string, sender Sender, onError func(error)) *Relay {
	if onError == nil {
		onError = func(error) {}
	}
	return &Relay{
		self:    selfID,
		sender:  sender,
		onError: onError,
	}
}

// Plan computes the relay decision without sending anything.
func (r *Relay) Plan(pkt wire.Packet, from netip.AddrPort, known []peers.Peer) Plan {
	if pkt.Target == r.self {
		return Plan{Decision: DropDelivered}
	}
	if pkt.Hops >= pkt.MaxHops {
		return Plan{Decision: DropHopLimit}
	}
	next := pkt
	next.Hops++

	if !pkt.Broadcast() {
		for _, p := range known {
			if p.ID == pkt.Target && p.Addr.IsValid() && p.Addr != from {
				return Plan{Decision: Forward, Packet: next, Destinations: []netip.AddrPort{p.Addr}}
			}
		}
		return Plan{Decision: DropUnknownTarget}
	}

	seen := make(map[netip.AddrPort]struct{}, len(known))
	dests := make([]netip.AddrPort, 0, len(known))
	for _, p := range known {
		if p.ID == r.self || p.ID == pkt.SenderID || !p.Addr.IsValid() || p.Addr == from {
			continue
		}
		if _, ok := seen[p.Addr]; ok {
			continue
		}
		seen[p.Addr] = struct{}{}
		dests = append(dests, p.Addr)
	}
	return Plan{Decision: Flood, Packet: next, Destinations: dests}
}

// Forward plans and sends. A failed destination is reported and skipped.
func (r *Relay) Forward(pkt wire.Packet, from netip.AddrPort, known []peers.Peer) Plan {
	plan := r.Plan(pkt, from, known)
	if len(plan.Destinations) == 0 {
		return plan
	}
	data, err := wire.Encode(plan.Packet)
	if err != nil {
		r.onError(fmt.Errorf("relay: %w", err))
		return plan
	}
	for _, dest := range plan.Destinations {
		if err := r.sender.Send(data, dest); err != nil {
			r.onError(fmt.Errorf("relay: %w", err))
		}
	}
	return plan
}

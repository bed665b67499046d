package meshsync

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/DobryySoul/meshsync/internal/relay"
	"github.com/DobryySoul/meshsync/internal/wire"
	"github.com/DobryySoul/meshsync/model"
)

// handleDatagram is the single ingress path for every listener.
func (e *Engine) handleDatagram(data []byte, from netip.AddrPort) {
	if !e.running.Load() {
		return
	}
	e.metrics.packetsReceived.Add(1)
	e.metrics.bytesReceived.Add(int64(len(data)))

	pkt, err := wire.Decode(data)
	if err != nil {
		e.metrics.malformed.Add(1)
		e.reportErr("dropped malformed packet", fmt.Errorf("from %s: %w", from, err))
		return
	}
	if pkt.SenderID == e.identity.DeviceID {
		return
	}
	if pkt.Hops > pkt.MaxHops {
		e.metrics.hopLimitDrops.Add(1)
		e.log.Debug("dropped packet over hop limit", "packet", pkt.ID, "hops", pkt.Hops, "max_hops", pkt.MaxHops)
		return
	}
	if e.dedup.SeenOrRecord(pkt.DedupKey()) {
		e.metrics.duplicates.Add(1)
		return
	}
	e.metrics.recordReceived(pkt.Kind)

	direct := pkt.Hops == 0
	if e.peers.Upsert(pkt.SenderID, pkt.SenderName, from, direct) {
		e.log.Info("peer discovered",
			"peer", pkt.SenderID,
			"name", pkt.SenderName,
			"addr", from.String(),
			"direct", direct,
		)
		e.notifyPeers()
	}

	if !pkt.Broadcast() && pkt.Target != e.identity.DeviceID {
		e.relayAsync(pkt, from)
		return
	}
	e.dispatch(pkt)
	if pkt.Broadcast() {
		e.relayAsync(pkt, from)
	}
}

func (e *Engine) dispatch(pkt wire.Packet) {
	switch pkt.Kind {
	case wire.KindUser:
		applyRecord(e, pkt, e.store.GetUser, e.store.InsertUser, e.store.UpdateUser, &e.listeners.users)
	case wire.KindMealPlan:
		applyRecord(e, pkt, e.store.GetMealPlan, e.store.InsertMealPlan, e.store.UpdateMealPlan, &e.listeners.plans)
	case wire.KindChatMessage:
		msg, err := decodeRecord[model.ChatMessage](pkt.Payload)
		if err != nil {
			e.metrics.malformed.Add(1)
			e.reportErr("dropped malformed chat message", err)
			return
		}
		emit(e, "chat-listener", &e.listeners.chat, msg)
	case wire.KindSyncRequest:
		e.metrics.syncRequests.Add(1)
		e.log.Info("sync requested", "peer", pkt.SenderID)
		ctx, requester := e.ctx, pkt.SenderID
		e.tasks.Go("sync-fulfill", func() { e.fulfillSync(ctx, requester) })
	case wire.KindAnnounce:
		if e.peers.ClaimSync(pkt.SenderID) {
			e.tasks.Go("catch-up", func() {
				if err := e.RequestFullSync(); err != nil && !errors.Is(err, ErrNotRunning) {
					e.reportErr("catch-up sync failed", err)
				}
			})
		}
	default:
		e.log.Debug("ignored unknown packet kind", "kind", pkt.Kind, "peer", pkt.SenderID)
	}
}

func (e *Engine) relayAsync(pkt wire.Packet, from netip.AddrPort) {
	known := e.peers.Snapshot()
	e.tasks.Go("relay", func() {
		plan := e.relay.Forward(pkt, from, known)
		switch plan.Decision {
		case relay.Flood, relay.Forward:
			e.metrics.relayed.Add(int64(len(plan.Destinations)))
		case relay.DropHopLimit:
			e.metrics.hopLimitDrops.Add(1)
			e.log.Debug("relay stopped at hop limit", "packet", pkt.ID, "hops", pkt.Hops)
		case relay.DropUnknownTarget:
			e.log.Debug("relay target unknown", "packet", pkt.ID, "target", pkt.Target)
		}
	})
}

// applyRecord decodes a record packet and merges it into the store,
// notifying subs when the stored record changed.
func applyRecord[R model.Record](
	e *Engine,
	pkt wire.Packet,
	get func(context.Context, string) (R, error),
	insert, update func(context.Context, R) error,
	subs *registry[R],
) {
	rec, err := decodeRecord[R](pkt.Payload)
	if err != nil {
		e.metrics.malformed.Add(1)
		e.reportErr("dropped malformed record", err)
		return
	}
	changed, err := applyLWW(e.ctx, rec, get, insert, update)
	if err != nil {
		e.metrics.storeErrors.Add(1)
		e.reportErr("store update failed", fmt.Errorf("%w: %s %s: %w", ErrStore, pkt.Kind, rec.RecordID(), err))
		return
	}
	if !changed {
		e.metrics.recordsStale.Add(1)
		e.log.Debug("kept local record", "kind", pkt.Kind, "id", rec.RecordID(), "version", rec.Stamp().Version)
		return
	}
	e.metrics.recordsApplied.Add(1)
	e.log.Info("record applied",
		"kind", pkt.Kind,
		"id", rec.RecordID(),
		"version", rec.Stamp().Version,
		"peer", pkt.SenderID,
	)
	emit(e, string(pkt.Kind)+"-listener", subs, rec)
}

// applyLWW inserts remote when absent and replaces the local copy only when
// remote is strictly newer. It reports whether the store changed.
func applyLWW[R model.Record](
	ctx context.Context,
	remote R,
	get func(context.Context, string) (R, error),
	insert, update func(context.Context, R) error,
) (bool, error) {
	local, err := get(ctx, remote.RecordID())
	if errors.Is(err, ErrNotFound) {
		if err := insert(ctx, remote); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !remote.Stamp().NewerThan(local.Stamp()) {
		return false, nil
	}
	if err := update(ctx, remote); err != nil {
		return false, err
	}
	return true, nil
}

// fulfillSync sends every stored user and meal plan to requester, one
// targeted packet per record, paced by the sync limiter.
func (e *Engine) fulfillSync(ctx context.Context, requester string) {
	var records []model.Record
	users, err := e.store.Users(ctx)
	if err != nil {
		e.metrics.storeErrors.Add(1)
		e.reportErr("list users for sync", fmt.Errorf("%w: %w", ErrStore, err))
	}
	for _, u := range users {
		records = append(records, u)
	}
	plans, err := e.store.MealPlans(ctx)
	if err != nil {
		e.metrics.storeErrors.Add(1)
		e.reportErr("list meal plans for sync", fmt.Errorf("%w: %w", ErrStore, err))
	}
	for _, p := range plans {
		records = append(records, p)
	}

	sess := model.Session{DisplayName: e.identity.Name}
	sent := 0
	for _, rec := range records {
		if err := e.pacer.Wait(ctx); err != nil {
			return
		}
		err := e.sendToPeer(sess, rec, requester)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrUnknownPeer), errors.Is(err, ErrNotRunning):
			e.log.Warn("sync aborted", "peer", requester, "sent", sent, "err", err)
			return
		default:
			e.reportErr("sync send failed", err)
		}
	}
	e.log.Info("sync request fulfilled", "peer", requester, "records", sent)
}

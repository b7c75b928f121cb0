package signaling

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// Evict removes a peer, deleting its room if it was the last member, closes
// its connection and tells the remaining peers. It is safe to call more than
// once for the same peer; only the first call returns true.
func (h *Hub) Evict(ctx context.Context, code, peerID string, reason EvictReason) bool {
	p, roomClosed, ok := h.reg.leave(code, peerID)
	if !ok {
		return false
	}

	_ = p.conn.Close()
	p.markReady()
	log.Info().Str("module", "signaling.evict").Str("room", code).Str("peer", peerID).Str("reason", string(reason)).Bool("room_closed", roomClosed).Msg("peer left")

	for _, o := range h.observers {
		o.PeerLeft(ctx, code, peerID, reason, roomClosed)
	}
	if !roomClosed {
		h.BroadcastJSON(ctx, code, models.PeerEvent{Type: models.SignalTypePeerLeft, PeerID: peerID}, peerID)
	}
	return true
}

package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// DefaultSendTimeout bounds a single send when no WithSendTimeout is given.
const DefaultSendTimeout = 3 * time.Second

// EvictReason labels why a peer was removed.
type EvictReason string

const (
	ReasonDisconnect EvictReason = "disconnect"
	ReasonStale      EvictReason = "stale"
	ReasonSendFailed EvictReason = "send_failed"
	ReasonClosed     EvictReason = "closed"
)

// Observer is notified of membership changes and routed traffic. Calls are
// made outside the registry lock and must not block for long.
type Observer interface {
	PeerJoined(ctx context.Context, code, peerID string, roomCreated bool)
	PeerLeft(ctx context.Context, code, peerID string, reason EvictReason, roomClosed bool)
	MessageRouted(msgType string)
	RelayDropped(msgType string)
}

// NopObserver can be embedded to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) PeerJoined(context.Context, string, string, bool)             {}
func (NopObserver) PeerLeft(context.Context, string, string, EvictReason, bool) {}
func (NopObserver) MessageRouted(string)                                        {}
func (NopObserver) RelayDropped(string)                                         {}

// Hub performs every send and membership change against a Registry.
type Hub struct {
	reg         *Registry
	sendTimeout time.Duration
	observers   []Observer
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSendTimeout sets the deadline applied to every send. Non-positive
// values keep the default.
func WithSendTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithObserver adds o to the observers notified by the Hub, in the order
// the options are given.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}

// NewHub returns a Hub operating on reg.
func NewHub(reg *Registry, opts ...HubOption) *Hub {
	h := &Hub{
		reg:         reg,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the registry the Hub mutates.
func (h *Hub) Registry() *Registry { return h.reg }

// Join registers p in the room, tells p who is already there and announces
// p to everyone else. If active_peers cannot be delivered p is evicted and
// the error is returned. Frames other senders address to p while the welcome
// is in flight are held back until it has been written.
func (h *Hub) Join(ctx context.Context, code string, p *Peer) error {
	existing, created, err := h.reg.Join(code, p)
	if err != nil {
		return fmt.Errorf("join room %s: %w", code, err)
	}
	log.Info().Str("module", "signaling.hub").Str("room", code).Str("peer", p.ID).Int("existing", len(existing)).Msg("peer joined")
	for _, o := range h.observers {
		o.PeerJoined(ctx, code, p.ID, created)
	}

	welcome, err := json.Marshal(models.ActivePeersMessage{
		Type:   models.SignalTypeActivePeers,
		PeerID: p.ID,
		Peers:  existing,
	})
	if err != nil {
		h.Evict(ctx, code, p.ID, ReasonSendFailed)
		return fmt.Errorf("marshal active_peers: %w", err)
	}
	if err := h.send(ctx, target{id: p.ID, conn: p.conn}, welcome); err != nil {
		h.Evict(ctx, code, p.ID, ReasonSendFailed)
		return fmt.Errorf("send active_peers: %w", err)
	}
	p.markReady()

	h.BroadcastJSON(ctx, code, models.PeerEvent{Type: models.SignalTypePeerJoined, PeerID: p.ID}, p.ID)
	return nil
}

// Unicast delivers data to one peer. A failed send evicts that peer.
func (h *Hub) Unicast(ctx context.Context, code, peerID string, data []byte) error {
	t, ok := h.reg.lookup(code, peerID)
	if !ok {
		return ErrPeerNotFound
	}
	if err := h.send(ctx, t, data); err != nil {
		log.Warn().Err(err).Str("module", "signaling.hub").Str("room", code).Str("peer", peerID).Msg("unicast failed")
		h.Evict(ctx, code, peerID, ReasonSendFailed)
		return err
	}
	return nil
}

// Probe sends the application-level liveness probe.
func (h *Hub) Probe(ctx context.Context, code, peerID string) error {
	return h.Unicast(ctx, code, peerID, pingFrame)
}

// CloseRoom evicts every peer of the room and returns how many were removed.
func (h *Hub) CloseRoom(ctx context.Context, code string) int {
	n := 0
	for _, id := range h.reg.PeerIDs(code) {
		if h.Evict(ctx, code, id, ReasonClosed) {
			n++
		}
	}
	return n
}

// send writes data to t within the send timeout. Waiting for t's welcome
// counts against the same deadline.
func (h *Hub) send(ctx context.Context, t target, data []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if t.ready != nil {
		select {
		case <-t.ready:
		case <-sendCtx.Done():
			return fmt.Errorf("%w: %v", ErrSendTimeout, sendCtx.Err())
		}
	}
	return t.conn.Send(sendCtx, data)
}

func (h *Hub) routed(msgType string) {
	for _, o := range h.observers {
		o.MessageRouted(msgType)
	}
}

func (h *Hub) dropped(msgType string) {
	for _, o := range h.observers {
		o.RelayDropped(msgType)
	}
}

var (
	pingFrame = mustMarshal(models.ControlMessage{Type: models.SignalTypePing})
	pongFrame = mustMarshal(models.ControlMessage{Type: models.SignalTypePong})
)

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

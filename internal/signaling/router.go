package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// Labels reported to observers for frames that carry no usable type.
const (
	labelMalformed = "malformed"
	labelUnknown   = "unknown"
)

var errBadPayload = errors.New("bad payload")

// Router interprets inbound frames of one room member.
type Router struct {
	hub *Hub
}

// NewRouter returns a Router that delivers through hub.
func NewRouter(hub *Hub) *Router {
	return &Router{hub: hub}
}

// Handle processes one frame sent by peerID. Every frame refreshes the
// sender's heartbeat, even ones that are then dropped.
func (r *Router) Handle(ctx context.Context, code, peerID string, frame []byte) {
	if !r.hub.reg.Touch(code, peerID) {
		return
	}

	// Relayed frames go out as text frames, which must be valid UTF-8.
	if !utf8.Valid(frame) {
		r.malformed(code, peerID, "invalid utf-8")
		return
	}
	if !gjson.ValidBytes(frame) {
		r.malformed(code, peerID, "invalid json")
		return
	}
	doc := gjson.ParseBytes(frame)
	if !doc.IsObject() {
		r.malformed(code, peerID, "not an object")
		return
	}
	typ := doc.Get("type")
	if typ.Type != gjson.String {
		r.malformed(code, peerID, "missing type")
		return
	}

	t := models.SignalType(typ.Str)
	var err error
	switch {
	case t.IsRelay():
		r.relay(ctx, code, peerID, t, doc, frame)
	case t == models.SignalTypeMediaStatus:
		err = r.mediaStatus(ctx, code, peerID, frame)
	case t == models.SignalTypePing:
		_ = r.hub.Unicast(ctx, code, peerID, pongFrame)
	case t == models.SignalTypePong:
	case t == models.SignalTypeRTCConnected, t == models.SignalTypeRTCDisconnected:
		err = r.link(code, peerID, t == models.SignalTypeRTCConnected, frame)
	default:
		log.Warn().Str("module", "signaling.router").Str("room", code).Str("peer", peerID).Str("type", typ.Str).Msg("unrecognized message type")
		r.hub.routed(labelUnknown)
		return
	}

	if err != nil {
		r.malformed(code, peerID, err.Error())
		return
	}
	r.hub.routed(string(t))
}

func (r *Router) malformed(code, peerID, why string) {
	log.Warn().Str("module", "signaling.router").Str("room", code).Str("peer", peerID).Str("reason", why).Msg("dropping malformed frame")
	r.hub.routed(labelMalformed)
}

// relay forwards the frame to its target with `from` set to the sender. The
// rest of the payload is passed through untouched.
func (r *Router) relay(ctx context.Context, code, peerID string, t models.SignalType, doc gjson.Result, frame []byte) {
	target := doc.Get("target")
	if target.Type != gjson.String || target.Str == "" {
		log.Debug().Str("module", "signaling.router").Str("room", code).Str("peer", peerID).Str("type", string(t)).Msg("relay without target")
		r.hub.dropped(string(t))
		return
	}

	out, err := sjson.SetBytes(frame, "from", peerID)
	if err != nil {
		log.Error().Err(err).Str("module", "signaling.router").Msg("set from")
		r.hub.dropped(string(t))
		return
	}

	if err := r.hub.Unicast(ctx, code, target.Str, out); err != nil {
		if errors.Is(err, ErrPeerNotFound) {
			log.Debug().Str("module", "signaling.router").Str("room", code).Str("peer", peerID).Str("target", target.Str).Msg("relay target not in room")
		}
		r.hub.dropped(string(t))
	}
}

func (r *Router) mediaStatus(ctx context.Context, code, peerID string, frame []byte) error {
	var req models.MediaStatusRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return errBadPayload
	}
	state, ok := r.hub.reg.UpdateMedia(code, peerID, req.Update())
	if !ok {
		return nil
	}
	r.hub.BroadcastJSON(ctx, code, models.MediaStatusMessage{
		Type:   models.SignalTypeMediaStatus,
		PeerID: peerID,
		Status: state,
	}, peerID)
	return nil
}

func (r *Router) link(code, peerID string, connected bool, frame []byte) error {
	var req models.LinkRequest
	if err := json.Unmarshal(frame, &req); err != nil || req.PeerID == "" {
		return errBadPayload
	}
	r.hub.reg.Link(code, peerID, req.PeerID, connected)
	return nil
}

package signaling

import (
	"sort"
	"time"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// Room owns the peers connected under one code. Code and CreatedAt are
// immutable; the peer map is guarded by the Registry lock.
type Room struct {
	Code      string
	CreatedAt time.Time

	peers map[string]*Peer
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		Code:      code,
		CreatedAt: now,
		peers:     make(map[string]*Peer),
	}
}

func (r *Room) sortedPeers() []*Peer {
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].connectedAt.Equal(out[j].connectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].connectedAt.Before(out[j].connectedAt)
	})
	return out
}

func (r *Room) summary() models.RoomSummary {
	return models.RoomSummary{Code: r.Code, PeerCount: len(r.peers), CreatedAt: r.CreatedAt}
}

func (r *Room) detail() models.RoomDetail {
	peers := r.sortedPeers()
	out := models.RoomDetail{
		Code:      r.Code,
		CreatedAt: r.CreatedAt,
		Peers:     make([]models.PeerDetail, 0, len(peers)),
	}
	for _, p := range peers {
		out.Peers = append(out.Peers, p.detail())
	}
	return out
}

package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// Peer is one connected participant. All fields except ID, conn and ready
// are guarded by the Registry lock.
type Peer struct {
	ID   string
	conn Conn

	// Closed once active_peers has been written (or the peer is gone).
	// Other senders wait on it so the welcome is always the first frame.
	ready     chan struct{}
	readyOnce sync.Once

	media         models.MediaState
	connectedAt   time.Time
	lastHeartbeat time.Time

	// Ids this peer reports a direct media link with. Entries may outlive
	// the peer they name.
	linked map[string]struct{}
}

// NewPeer wraps conn as a participant whose heartbeat starts at now.
func NewPeer(id string, conn Conn, now time.Time) *Peer {
	return &Peer{
		ID:            id,
		conn:          conn,
		ready:         make(chan struct{}),
		connectedAt:   now,
		lastHeartbeat: now,
		linked:        make(map[string]struct{}),
	}
}

func (p *Peer) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *Peer) summary() models.PeerSummary {
	return models.PeerSummary{PeerID: p.ID, MediaState: p.media}
}

func (p *Peer) detail() models.PeerDetail {
	linked := make([]string, 0, len(p.linked))
	for id := range p.linked {
		linked = append(linked, id)
	}
	sort.Strings(linked)
	return models.PeerDetail{
		PeerID:        p.ID,
		MediaState:    p.media,
		ConnectedAt:   p.connectedAt,
		LastHeartbeat: p.lastHeartbeat,
		LinkedPeers:   linked,
	}
}

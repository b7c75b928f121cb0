package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// Registry maps room codes to live rooms. Every read and write of rooms,
// their peer maps and peer state goes through mu, and no network I/O ever
// happens while it is held.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	now   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for peer and room timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// target is a borrowed connection handle taken from a snapshot.
type target struct {
	id    string
	conn  Conn
	ready <-chan struct{}
}

// peerRef names a peer for eviction.
type peerRef struct {
	code string
	id   string
}

// Join inserts p into the room for code, creating the room if this is the
// first join. It returns the peers that were already present and whether
// the room was created. Check-and-create and insertion happen in one
// critical section so concurrent first joiners share a single Room.
func (r *Registry) Join(code string, p *Peer) ([]models.PeerSummary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.getOrCreateLocked(code)
	if _, exists := room.peers[p.ID]; exists {
		return nil, false, ErrDuplicatePeer
	}
	created := len(room.peers) == 0

	existing := make([]models.PeerSummary, 0, len(room.peers))
	for _, other := range room.sortedPeers() {
		existing = append(existing, other.summary())
	}
	room.peers[p.ID] = p
	return existing, created, nil
}

// getOrCreateLocked is the atomic check-and-create. It is only reached from
// Join, which inserts a peer before releasing the lock, so no empty room is
// ever observable.
func (r *Registry) getOrCreateLocked(code string) *Room {
	if room, ok := r.rooms[code]; ok {
		return room
	}
	room := newRoom(code, r.now())
	r.rooms[code] = room
	log.Info().Str("module", "signaling.registry").Str("room", code).Msg("room created")
	return room
}

// Get returns the live room for code.
func (r *Registry) Get(code string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	return room, ok
}

// removeLocked drops an empty room. It must run in the same critical section
// that removed the room's last peer.
func (r *Registry) removeLocked(code string) bool {
	room, ok := r.rooms[code]
	if !ok || len(room.peers) > 0 {
		return false
	}
	delete(r.rooms, code)
	log.Info().Str("module", "signaling.registry").Str("room", code).Msg("removed empty room")
	return true
}

// leave removes a peer and, if it was the last one, its room. ok is false
// when the peer was not present.
func (r *Registry) leave(code, id string) (p *Peer, roomRemoved bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, found := r.rooms[code]
	if !found {
		return nil, false, false
	}
	p, ok = room.peers[id]
	if !ok {
		return nil, false, false
	}
	delete(room.peers, id)
	roomRemoved = r.removeLocked(code)
	return p, roomRemoved, true
}

// Touch refreshes a peer's heartbeat.
func (r *Registry) Touch(code, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.peerLocked(code, id)
	if p == nil {
		return false
	}
	p.lastHeartbeat = r.now()
	return true
}

// UpdateMedia applies a partial media update and returns the resulting state.
func (r *Registry) UpdateMedia(code, id string, upd models.MediaUpdate) (models.MediaState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.peerLocked(code, id)
	if p == nil {
		return models.MediaState{}, false
	}
	p.media = upd.Apply(p.media)
	return p.media, true
}

// Link records (or forgets) that peer id holds a direct media link with other.
func (r *Registry) Link(code, id, other string, linked bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.peerLocked(code, id)
	if p == nil {
		return false
	}
	if linked {
		p.linked[other] = struct{}{}
	} else {
		delete(p.linked, other)
	}
	return true
}

func (r *Registry) peerLocked(code, id string) *Peer {
	room, ok := r.rooms[code]
	if !ok {
		return nil
	}
	return room.peers[id]
}

// lookup borrows the connection of a single peer.
func (r *Registry) lookup(code, id string) (target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.peerLocked(code, id)
	if p == nil {
		return target{}, false
	}
	return target{id: id, conn: p.conn, ready: p.ready}, true
}

// targets snapshots the connections of every peer in the room except exclude.
func (r *Registry) targets(code, exclude string) ([]target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	out := make([]target, 0, len(room.peers))
	for id, p := range room.peers {
		if id == exclude {
			continue
		}
		out = append(out, target{id: id, conn: p.conn, ready: p.ready})
	}
	return out, true
}

// stale lists peers whose last heartbeat is older than after.
func (r *Registry) stale(now time.Time, after time.Duration) []peerRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []peerRef
	for code, room := range r.rooms {
		for id, p := range room.peers {
			if now.Sub(p.lastHeartbeat) > after {
				out = append(out, peerRef{code: code, id: id})
			}
		}
	}
	return out
}

// PeerIDs returns the ids currently in the room.
func (r *Registry) PeerIDs(code string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room.peers))
	for id := range room.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the room's state.
func (r *Registry) Snapshot(code string) (models.RoomDetail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return models.RoomDetail{}, false
	}
	return room.detail(), true
}

// Rooms lists every live room ordered by code.
func (r *Registry) Rooms() []models.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

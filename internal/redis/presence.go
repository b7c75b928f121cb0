package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/internal/signaling"
)

const (
	DefaultPresenceTTL = 24 * time.Hour

	// DefaultPresenceQueue bounds the writes waiting for the worker.
	DefaultPresenceQueue = 1024

	opTimeout = 2 * time.Second
)

type presenceOp struct {
	code   string
	peerID string
	join   bool
}

// Presence mirrors room membership into Redis sets keyed room:<code>:peers
// so other services can see who is connected. Writes are queued and applied
// by a single worker; a full queue or a Redis failure is logged and never
// affects signaling.
//
// Every write touches only its own peer id, so writes for a closing room and
// for a room reopened under the same code commute. A set whose last member
// is removed disappears in Redis, and the TTL reclaims anything left behind.
type Presence struct {
	signaling.NopObserver

	client *redis.Client
	ttl    time.Duration

	mu     sync.RWMutex
	closed bool
	ops    chan presenceOp
	done   chan struct{}
}

// NewPresence starts the write worker. Callers must Close the Presence to
// flush pending writes and stop the worker.
func NewPresence(client *redis.Client, ttl time.Duration, queue int) *Presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if queue <= 0 {
		queue = DefaultPresenceQueue
	}
	p := &Presence{
		client: client,
		ttl:    ttl,
		ops:    make(chan presenceOp, queue),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// PeersKey is the Redis key of a room's member set.
func PeersKey(code string) string {
	return "room:" + code + ":peers"
}

// PeerJoined queues the peer's addition to the room set.
func (p *Presence) PeerJoined(_ context.Context, code, peerID string, _ bool) {
	p.enqueue(presenceOp{code: code, peerID: peerID, join: true})
}

// PeerLeft queues the peer's removal from the room set.
func (p *Presence) PeerLeft(_ context.Context, code, peerID string, _ signaling.EvictReason, _ bool) {
	p.enqueue(presenceOp{code: code, peerID: peerID})
}

// Close stops accepting writes, applies the ones already queued and waits
// for the worker to exit.
func (p *Presence) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ops)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Presence) enqueue(op presenceOp) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ops <- op:
	default:
		log.Warn().Str("module", "redis.presence").Str("room", op.code).Str("peer", op.peerID).Msg("presence queue full, dropping write")
	}
}

func (p *Presence) run() {
	defer close(p.done)
	for op := range p.ops {
		p.apply(op)
	}
}

func (p *Presence) apply(op presenceOp) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := PeersKey(op.code)
	var err error
	if op.join {
		_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, key, op.peerID)
			pipe.Expire(ctx, key, p.ttl)
			return nil
		})
	} else {
		err = p.client.SRem(ctx, key, op.peerID).Err()
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "redis.presence").Str("room", op.code).Str("peer", op.peerID).Bool("join", op.join).Msg("presence write failed")
	}
}

package signaling

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultReapInterval = 60 * time.Second
	DefaultStaleAfter   = 120 * time.Second
)

// Reaper periodically evicts peers whose heartbeat has lapsed.
type Reaper struct {
	hub        *Hub
	interval   time.Duration
	staleAfter time.Duration
}

// NewReaper returns a Reaper for hub. Non-positive durations fall back to
// DefaultReapInterval and DefaultStaleAfter.
func NewReaper(hub *Hub, interval, staleAfter time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reaper{hub: hub, interval: interval, staleAfter: staleAfter}
}

// Run sweeps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Str("module", "signaling.reaper").Dur("interval", r.interval).Dur("stale_after", r.staleAfter).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signaling.reaper").Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx, r.hub.reg.Now())
		}
	}
}

// Sweep evicts every peer silent for longer than the stale threshold at now
// and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	n := 0
	for _, ref := range r.hub.reg.stale(now, r.staleAfter) {
		if r.hub.Evict(ctx, ref.code, ref.id, ReasonStale) {
			n++
		}
	}
	if n > 0 {
		log.Info().Str("module", "signaling.reaper").Int("evicted", n).Msg("reaped stale peers")
	}
	return n
}

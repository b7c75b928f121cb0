package signaling

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Broadcast sends data to every peer of the room except exclude and returns
// the number of successful deliveries. Connections are snapshotted under the
// registry lock and written to concurrently after it is released; peers whose
// send failed are evicted once the pass completes.
func (h *Hub) Broadcast(ctx context.Context, code string, data []byte, exclude string) int {
	targets, ok := h.reg.targets(code, exclude)
	if !ok || len(targets) == 0 {
		return 0
	}

	var (
		wg     conc.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, t := range targets {
		t := t
		wg.Go(func() {
			if err := h.send(ctx, t, data); err != nil {
				log.Debug().Err(err).Str("module", "signaling.broadcast").Str("room", code).Str("peer", t.id).Msg("send failed")
				mu.Lock()
				failed = append(failed, t.id)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	log.Debug().Str("module", "signaling.broadcast").Str("room", code).Int("sent_to", len(targets)-len(failed)).Int("dropped", len(failed)).Msg("broadcast result")

	for _, id := range failed {
		h.Evict(ctx, code, id, ReasonSendFailed)
	}
	return len(targets) - len(failed)
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(ctx context.Context, code string, v any, exclude string) int {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signaling.broadcast").Msg("marshal broadcast")
		return 0
	}
	return h.Broadcast(ctx, code, data, exclude)
}

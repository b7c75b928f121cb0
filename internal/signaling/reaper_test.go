package signaling

import (
	"context"
	"testing"
	"time"
)

func TestReaperSweepEvictsStalePeers(t *testing.T) {
	f := newFixture(t)
	reaper := NewReaper(f.hub, time.Minute, 120*time.Second)
	a := f.join(t, "abc", "A")
	b := f.join(t, "abc", "B")
	f.join(t, "solo", "S")
	f.resetAll()

	f.clock.Advance(100 * time.Second)
	f.reg.Touch("abc", "A")
	f.clock.Advance(30 * time.Second)

	if n := reaper.Sweep(context.Background(), f.clock.Now()); n != 2 {
		t.Fatalf("expected B and S reaped, got %d", n)
	}
	if ids := f.reg.PeerIDs("abc"); len(ids) != 1 || ids[0] != "A" {
		t.Fatalf("only A should remain, got %v", ids)
	}
	if _, ok := f.reg.Get("solo"); ok {
		t.Fatal("room of reaped last peer should be gone")
	}
	if b.closeCount() != 1 {
		t.Fatal("stale connection should be closed")
	}
	if left := a.ofType(t, "peer_left"); len(left) != 1 || left[0]["peer_id"] != "B" {
		t.Fatalf("A should be told B left, got %v", left)
	}
	if f.obs.left["B"] != ReasonStale {
		t.Fatalf("unexpected reason %q", f.obs.left["B"])
	}

	if n := reaper.Sweep(context.Background(), f.clock.Now()); n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d", n)
	}
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	reaper := NewReaper(f.hub, 5*time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewReaperDefaults(t *testing.T) {
	r := NewReaper(NewHub(NewRegistry()), 0, 0)
	if r.interval != DefaultReapInterval || r.staleAfter != DefaultStaleAfter {
		t.Fatalf("unexpected defaults %v %v", r.interval, r.staleAfter)
	}
}

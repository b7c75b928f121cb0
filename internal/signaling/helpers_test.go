package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   int
	failSend bool
	// hang makes Send wait for its context like an unresponsive socket.
	hang bool
	// gate, when set, holds every Send until it is closed.
	gate chan struct{}
}

func (c *fakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	hang, gate := c.hang, c.gate
	c.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed > 0 {
		return ErrConnClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// ofType decodes every sent frame whose type matches.
func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range c.frames() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("sent frame is not json: %s", f)
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingObserver struct {
	NopObserver
	mu      sync.Mutex
	joined  []string
	left    map[string]EvictReason
	closed  []string
	routed  map[string]int
	dropped map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		left:    make(map[string]EvictReason),
		routed:  make(map[string]int),
		dropped: make(map[string]int),
	}
}

func (o *recordingObserver) PeerJoined(_ context.Context, _, peerID string, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joined = append(o.joined, peerID)
}

func (o *recordingObserver) PeerLeft(_ context.Context, code, peerID string, reason EvictReason, roomClosed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.left[peerID] = reason
	if roomClosed {
		o.closed = append(o.closed, code)
	}
}

func (o *recordingObserver) MessageRouted(msgType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routed[msgType]++
}

func (o *recordingObserver) RelayDropped(msgType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[msgType]++
}

type fixture struct {
	clock *testClock
	reg   *Registry
	hub   *Hub
	obs   *recordingObserver
	conns map[string]*fakeConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	reg := NewRegistry(WithClock(clock.Now))
	obs := newRecordingObserver()
	return &fixture{
		clock: clock,
		reg:   reg,
		hub:   NewHub(reg, WithObserver(obs), WithSendTimeout(time.Second)),
		obs:   obs,
		conns: make(map[string]*fakeConn),
	}
}

// join connects a peer with a fresh fake conn and fails the test on error.
func (f *fixture) join(t *testing.T, code, id string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	f.conns[id] = conn
	if err := f.hub.Join(context.Background(), code, NewPeer(id, conn, f.clock.Now())); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return conn
}

func (f *fixture) resetAll() {
	for _, c := range f.conns {
		c.reset()
	}
}

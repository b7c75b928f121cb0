package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/meet-signaling/internal/auth"
	"github.com/mossy-p/meet-signaling/internal/middleware"
	"github.com/mossy-p/meet-signaling/internal/signaling"
)

const (
	testRoom      = "abc-defg-hij"
	testJWTSecret = "operator-secret"
	testRoomKey   = "room-secret"
)

type testServer struct {
	*httptest.Server
	hub    *signaling.Hub
	tokens *auth.JWTValidator
}

func newTestServer(t *testing.T, validator auth.Validator, gw GatewayOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewJWTValidator(testRoomKey)
	if validator == nil {
		validator = tokens
	}
	hub := signaling.NewHub(signaling.NewRegistry(), signaling.WithSendTimeout(time.Second))
	srv := httptest.NewServer(SetupRouter(Deps{
		Hub:            hub,
		Validator:      validator,
		AllowedOrigins: []string{"https://meet.example.com"},
		JWTSecret:      testJWTSecret,
		Gateway:        gw,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, tokens: tokens}
}

func (s *testServer) roomToken(t *testing.T, room string) string {
	t.Helper()
	tok, err := s.tokens.Issue(auth.RoomClaims{Room: room})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) wsURL(room, token string) string {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/room/" + room
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (s *testServer) dial(t *testing.T, room string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.wsURL(room, s.roomToken(t, room)), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad frame %s: %v", data, err)
	}
	return m
}

func expectType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	m := readFrame(t, ws)
	if m["type"] != typ {
		t.Fatalf("expected %s, got %v", typ, m)
	}
	return m
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if ce.Code != code {
		t.Fatalf("close code=%d, want %d", ce.Code, code)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSignalingTwoPeerSession(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{})

	a := s.dial(t, testRoom)
	welcomeA := expectType(t, a, "active_peers")
	idA := welcomeA["peer_id"].(string)
	if peers := welcomeA["peers"].([]any); len(peers) != 0 {
		t.Fatalf("first peer should see an empty room, got %v", peers)
	}

	b := s.dial(t, testRoom)
	welcomeB := expectType(t, b, "active_peers")
	idB := welcomeB["peer_id"].(string)
	peers := welcomeB["peers"].([]any)
	if len(peers) != 1 || peers[0].(map[string]any)["peer_id"] != idA {
		t.Fatalf("B should see A, got %v", peers)
	}

	joined := expectType(t, a, "peer_joined")
	if joined["peer_id"] != idB {
		t.Fatalf("A should be told about B, got %v", joined)
	}

	send(t, a, map[string]any{"type": "offer", "target": idB, "sdp": "v=0", "from": "forged"})
	offer := expectType(t, b, "offer")
	if offer["from"] != idA || offer["sdp"] != "v=0" || offer["target"] != idB {
		t.Fatalf("unexpected relayed offer %v", offer)
	}

	send(t, b, map[string]any{"type": "media_status", "status": map[string]any{"audioOn": true}})
	status := expectType(t, a, "media_status")
	flags := status["status"].(map[string]any)
	if status["peer_id"] != idB || flags["audioOn"] != true || flags["videoOn"] != false || flags["screenSharing"] != false {
		t.Fatalf("unexpected media_status %v", status)
	}

	send(t, a, map[string]any{"type": "ping"})
	expectType(t, a, "pong")

	b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.Close()
	left := expectType(t, a, "peer_left")
	if left["peer_id"] != idB {
		t.Fatalf("unexpected peer_left %v", left)
	}

	a.Close()
	waitFor(t, "room removal", func() bool { return s.hub.Registry().Len() == 0 })
}

func TestSignalingRejectsInvalidToken(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{})

	for name, url := range map[string]string{
		"missing":    s.wsURL(testRoom, ""),
		"other room": s.wsURL(testRoom, s.roomToken(t, "zzz-zzzz-zzz")),
		"garbage":    s.wsURL(testRoom, "garbage"),
	} {
		t.Run(name, func(t *testing.T) {
			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer ws.Close()
			expectClose(t, ws, CloseInvalidToken)
		})
	}
	if s.hub.Registry().Len() != 0 {
		t.Fatal("rejected peers must not create rooms")
	}
}

func TestSignalingValidatorErrorClosesWithInternalError(t *testing.T) {
	failing := auth.ValidatorFunc(func(context.Context, string, string) (bool, error) {
		return false, errors.New("database down")
	})
	s := newTestServer(t, failing, GatewayOptions{})

	ws, _, err := websocket.DefaultDialer.Dial(s.wsURL(testRoom, "tok"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	expectClose(t, ws, websocket.CloseInternalServerErr)
}

func TestSignalingTokenFromCookie(t *testing.T) {
	seen := make(chan string, 1)
	validator := auth.ValidatorFunc(func(_ context.Context, token, _ string) (bool, error) {
		seen <- token
		return token == "cookie-token", nil
	})
	s := newTestServer(t, validator, GatewayOptions{})

	header := http.Header{}
	header.Set("Cookie", TokenCookie+"=cookie-token")
	ws, _, err := websocket.DefaultDialer.Dial(s.wsURL(testRoom, ""), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	expectType(t, ws, "active_peers")
	if got := <-seen; got != "cookie-token" {
		t.Fatalf("validator saw %q", got)
	}
}

func TestSignalingIdleProbe(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{IdleTimeout: 100 * time.Millisecond})

	ws := s.dial(t, testRoom)
	expectType(t, ws, "active_peers")
	expectType(t, ws, "ping")

	send(t, ws, map[string]any{"type": "pong"})
	expectType(t, ws, "ping")
	if s.hub.Registry().Len() != 1 {
		t.Fatal("a peer answering probes stays connected")
	}
}

func TestSignalingRateLimitDropsWithoutDisconnect(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{RateLimit: 0.001, RateBurst: 1})

	ws := s.dial(t, testRoom)
	expectType(t, ws, "active_peers")

	send(t, ws, map[string]any{"type": "ping"})
	expectType(t, ws, "pong")

	// Over the limit: dropped, then the next allowed frame would be far away.
	send(t, ws, map[string]any{"type": "ping"})
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("rate limited ping should not be answered")
	}
	if ids := s.hub.Registry().PeerIDs(testRoom); len(ids) != 1 {
		t.Fatal("rate limiting must not disconnect the peer")
	}
}

func TestSignalingOversizedFrameDisconnects(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{ReadLimit: 128})

	ws := s.dial(t, testRoom)
	expectType(t, ws, "active_peers")

	send(t, ws, map[string]any{"type": "offer", "sdp": strings.Repeat("x", 1024)})
	waitFor(t, "eviction", func() bool { return s.hub.Registry().Len() == 0 })
}

func TestSignalingRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(testRoom, s.roomToken(t, testRoom)), header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	header.Set("Origin", "https://meet.example.com")
	ws, _, err := websocket.DefaultDialer.Dial(s.wsURL(testRoom, s.roomToken(t, testRoom)), header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	ws.Close()
}

func operatorToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OperatorClaims{UserID: "op"}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func apiRequest(t *testing.T, s *testServer, method, path string, authorized bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestRoomsAPI(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{})

	resp, _ := apiRequest(t, s, http.MethodGet, "/api/rooms", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: %d", resp.StatusCode)
	}

	a := s.dial(t, testRoom)
	idA := expectType(t, a, "active_peers")["peer_id"].(string)
	send(t, a, map[string]any{"type": "media_status", "status": map[string]any{"videoOn": true}})
	send(t, a, map[string]any{"type": "rtc_connected", "peer_id": "someone"})
	send(t, a, map[string]any{"type": "ping"})
	expectType(t, a, "pong")

	resp, body := apiRequest(t, s, http.MethodGet, "/api/rooms", true)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list: %d %v", resp.StatusCode, body)
	}

	resp, body = apiRequest(t, s, http.MethodGet, "/api/rooms/"+testRoom, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	peer := body["peers"].([]any)[0].(map[string]any)
	if peer["peer_id"] != idA || peer["videoOn"] != true || peer["audioOn"] != false {
		t.Fatalf("unexpected peer %v", peer)
	}
	if linked := peer["linkedPeers"].([]any); len(linked) != 1 || linked[0] != "someone" {
		t.Fatalf("unexpected links %v", linked)
	}

	resp, _ = apiRequest(t, s, http.MethodGet, "/api/rooms/nope", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room: %d", resp.StatusCode)
	}

	resp, body = apiRequest(t, s, http.MethodDelete, "/api/rooms/"+testRoom, true)
	if resp.StatusCode != http.StatusOK || body["evicted"] != float64(1) {
		t.Fatalf("delete: %d %v", resp.StatusCode, body)
	}
	expectClose(t, a, websocket.CloseNormalClosure)
	if s.hub.Registry().Len() != 0 {
		t.Fatal("closed room still live")
	}

	resp, _ = apiRequest(t, s, http.MethodDelete, "/api/rooms/"+testRoom, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, GatewayOptions{})
	resp, body := apiRequest(t, s, http.MethodGet, "/health", false)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}
}

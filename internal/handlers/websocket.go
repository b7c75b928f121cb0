package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mossy-p/meet-signaling/internal/auth"
	"github.com/mossy-p/meet-signaling/internal/signaling"
)

const (
	// CloseInvalidToken is sent when the room token is missing or rejected.
	CloseInvalidToken = 4403

	// TokenCookie carries the room token when the query parameter is absent.
	TokenCookie = "token_room"
)

// GatewayOptions tune a signaling connection. A zero IdleTimeout or
// ReadLimit falls back to 30s and 64 KiB; a zero RateLimit disables rate
// limiting.
type GatewayOptions struct {
	IdleTimeout    time.Duration
	ReadLimit      int64
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// SignalingHandler accepts room WebSocket connections and runs one receive
// loop per peer.
type SignalingHandler struct {
	hub       *signaling.Hub
	router    *signaling.Router
	validator auth.Validator
	opts      GatewayOptions
	upgrader  websocket.Upgrader
}

// NewSignalingHandler returns a handler that admits peers to hub and feeds
// their frames to router.
func NewSignalingHandler(hub *signaling.Hub, router *signaling.Router, validator auth.Validator, opts GatewayOptions) *SignalingHandler {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 * 1024
	}
	h := &SignalingHandler{
		hub:       hub,
		router:    router,
		validator: validator,
		opts:      opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(requestOrigin(r), h.opts.AllowedOrigins)
		},
	}
	return h
}

// HandleSignaling serves GET /ws/room/:code.
func (h *SignalingHandler) HandleSignaling(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room code is required"})
		return
	}

	token := c.Query("token")
	if token == "" {
		token, _ = c.Cookie(TokenCookie)
	}
	admitted, verr := h.validator.Validate(c.Request.Context(), token, code)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "handlers.ws").Str("room", code).Msg("failed to upgrade connection")
		return
	}
	conn := signaling.NewWSConn(ws)

	if verr != nil {
		log.Error().Err(verr).Str("module", "handlers.ws").Str("room", code).Msg("token validation failed")
		_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "token validation unavailable")
		return
	}
	if !admitted {
		log.Info().Str("module", "handlers.ws").Str("room", code).Msg("rejected room token")
		_ = conn.CloseWithCode(CloseInvalidToken, auth.ErrInvalidToken.Error())
		return
	}

	ws.SetReadLimit(h.opts.ReadLimit)

	// The request context ends when the handler returns; cleanup sends must
	// outlive it.
	ctx := context.WithoutCancel(c.Request.Context())
	peerID := uuid.NewString()
	peer := signaling.NewPeer(peerID, conn, h.hub.Registry().Now())

	if err := h.hub.Join(ctx, code, peer); err != nil {
		log.Warn().Err(err).Str("module", "handlers.ws").Str("room", code).Str("peer", peerID).Msg("join failed")
		_ = conn.Close()
		return
	}
	defer h.hub.Evict(ctx, code, peerID, signaling.ReasonDisconnect)

	h.receive(ctx, ws, code, peerID)
}

// receive dispatches frames in arrival order until the socket fails or an
// idle probe cannot be delivered. Reads happen on a separate goroutine so the
// idle timer never has to interrupt a read.
func (h *SignalingHandler) receive(ctx context.Context, ws *websocket.Conn, code, peerID string) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	limit := rate.Inf
	if h.opts.RateLimit > 0 {
		limit = rate.Limit(h.opts.RateLimit)
	}
	burst := h.opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	idle := time.NewTimer(h.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case data := <-frames:
			idle.Reset(h.opts.IdleTimeout)
			if !limiter.Allow() {
				h.hub.Registry().Touch(code, peerID)
				log.Warn().Str("module", "handlers.ws").Str("room", code).Str("peer", peerID).Msg("rate limited, dropping frame")
				continue
			}
			h.router.Handle(ctx, code, peerID, data)

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("module", "handlers.ws").Str("room", code).Str("peer", peerID).Msg("read error")
			}
			return

		case <-idle.C:
			if err := h.hub.Probe(ctx, code, peerID); err != nil {
				log.Info().Err(err).Str("module", "handlers.ws").Str("room", code).Str("peer", peerID).Msg("idle probe failed")
				return
			}
			idle.Reset(h.opts.IdleTimeout)
		}
	}
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/internal/signaling"
)

// RoomsHandler exposes live, in-memory room state to operators.
type RoomsHandler struct {
	hub *signaling.Hub
}

// NewRoomsHandler returns the room inspection handlers backed by hub.
func NewRoomsHandler(hub *signaling.Hub) *RoomsHandler {
	return &RoomsHandler{hub: hub}
}

// ListRooms returns every live room with its peer count.
func (h *RoomsHandler) ListRooms(c *gin.Context) {
	rooms := h.hub.Registry().Rooms()
	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// GetRoom returns the peers of one room with their media state.
func (h *RoomsHandler) GetRoom(c *gin.Context) {
	code := c.Param("code")

	room, ok := h.hub.Registry().Snapshot(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// CloseRoom force-disconnects every peer of a room.
func (h *RoomsHandler) CloseRoom(c *gin.Context) {
	code := c.Param("code")

	if _, ok := h.hub.Registry().Get(code); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	evicted := h.hub.CloseRoom(context.WithoutCancel(c.Request.Context()), code)
	log.Info().Str("module", "handlers.rooms").Str("room", code).Str("user_id", c.GetString("user_id")).Int("evicted", evicted).Msg("room closed by operator")

	c.JSON(http.StatusOK, gin.H{
		"code":    code,
		"evicted": evicted,
	})
}

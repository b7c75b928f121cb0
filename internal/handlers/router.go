package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/meet-signaling/internal/auth"
	"github.com/mossy-p/meet-signaling/internal/logging"
	"github.com/mossy-p/meet-signaling/internal/middleware"
	"github.com/mossy-p/meet-signaling/internal/signaling"
)

// Deps are the collaborators SetupRouter wires into the routes.
type Deps struct {
	Hub       *signaling.Hub
	Validator auth.Validator
	// Served on /metrics when set.
	Metrics        http.Handler
	AllowedOrigins []string
	JWTSecret      string
	Gateway        GatewayOptions
}

// SetupRouter wires every HTTP and WebSocket route.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger())

	// Runs before routing so preflight requests never hit a handler.
	router.Use(OriginFilter(d.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	rooms := NewRoomsHandler(d.Hub)
	apiGroup := router.Group("/api", middleware.JWTAuth(d.JWTSecret))
	{
		apiGroup.GET("/rooms", rooms.ListRooms)
		apiGroup.GET("/rooms/:code", rooms.GetRoom)
		apiGroup.DELETE("/rooms/:code", rooms.CloseRoom)
	}

	gw := d.Gateway
	gw.AllowedOrigins = d.AllowedOrigins
	ws := NewSignalingHandler(d.Hub, signaling.NewRouter(d.Hub), d.Validator, gw)
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/room/:code", ws.HandleSignaling)
	}

	return router
}

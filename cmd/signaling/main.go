package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/meet-signaling/config"
	"github.com/mossy-p/meet-signaling/internal/auth"
	"github.com/mossy-p/meet-signaling/internal/handlers"
	"github.com/mossy-p/meet-signaling/internal/logging"
	"github.com/mossy-p/meet-signaling/internal/metrics"
	"github.com/mossy-p/meet-signaling/internal/postgres"
	"github.com/mossy-p/meet-signaling/internal/redis"
	"github.com/mossy-p/meet-signaling/internal/signaling"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Init("info", false)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	validator, closeValidator, err := newValidator(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up token validation")
	}
	defer closeValidator()

	m := metrics.New()
	hubOpts := []signaling.HubOption{
		signaling.WithSendTimeout(cfg.Signaling.SendTimeout),
		signaling.WithObserver(m),
	}

	// Presence mirroring is optional; signaling works without Redis.
	if cfg.Redis.Host != "" {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, presence mirroring disabled")
		} else {
			defer client.Close()
			presence := redis.NewPresence(client, cfg.Redis.PresenceTTL, cfg.Redis.PresenceQueue)
			// Runs before client.Close so queued writes are flushed.
			defer presence.Close()
			hubOpts = append(hubOpts, signaling.WithObserver(presence))
			log.Info().Msg("Redis connection established")
		}
	}

	hub := signaling.NewHub(signaling.NewRegistry(), hubOpts...)
	reaper := signaling.NewReaper(hub, cfg.Signaling.ReapInterval, cfg.Signaling.StaleAfter)
	go reaper.Run(ctx)

	router := handlers.SetupRouter(handlers.Deps{
		Hub:            hub,
		Validator:      validator,
		Metrics:        m.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		Gateway: handlers.GatewayOptions{
			IdleTimeout: cfg.Signaling.IdleTimeout,
			ReadLimit:   cfg.Signaling.ReadLimit,
			RateLimit:   cfg.Signaling.RateLimit,
			RateBurst:   cfg.Signaling.RateBurst,
		},
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("auth_mode", cfg.Auth.Mode).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Hijacked WebSocket connections are not closed by Shutdown.
	for _, room := range hub.Registry().Rooms() {
		hub.CloseRoom(shutdownCtx, room.Code)
	}
	log.Info().Msg("Server exited gracefully")
}

func newValidator(ctx context.Context, cfg *config.Config) (auth.Validator, func(), error) {
	switch cfg.Auth.Mode {
	case config.AuthModePostgres:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			ApplicationName: "meet-signaling",
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Postgres connection established")
		return auth.NewPostgresValidator(pool), pool.Close, nil
	case config.AuthModeJWT:
		return auth.NewJWTValidator(cfg.Auth.RoomSecret), func() {}, nil
	default:
		log.Warn().Msg("room token validation disabled")
		return auth.AllowAll{}, func() {}, nil
	}
}

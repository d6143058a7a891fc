package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/auth"
	"github.com/freeeve/polite-concession/internal/config"
	"github.com/freeeve/polite-concession/internal/handler"
	"github.com/freeeve/polite-concession/internal/logger"
	"github.com/freeeve/polite-concession/internal/metrics"
	"github.com/freeeve/polite-concession/internal/middleware"
	"github.com/freeeve/polite-concession/internal/repository/postgres"
	redisrepo "github.com/freeeve/polite-concession/internal/repository/redis"
	"github.com/freeeve/polite-concession/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment")
	}
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	log.Info().Str("databaseURL", cfg.DatabaseURL).Int("maxRounds", cfg.MaxRounds).
		Dur("idleTimeout", cfg.IdleTimeout).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for idle timer expiry events.
	if err := redisClient.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (idle sessions rely on polling)")
	}

	// Repos
	sessionRepo := postgres.NewSessionRepo(db)
	roundRepo := postgres.NewRoundRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	negotiationSvc := service.NewNegotiationService(sessionRepo, roundRepo, redisClient, wsHub, service.Options{
		DefaultParams: agent.Params(cfg.AgentParams()),
		MaxRounds:     cfg.MaxRounds,
		StateTTL:      cfg.StateTTL,
		IdleTimeout:   cfg.IdleTimeout,
	})

	// Idle listener (abort sessions the remote party abandoned)
	idleListener := service.NewIdleListener(redisClient.Underlying(), negotiationSvc, redisClient)

	// Router
	mux := http.NewServeMux()
	handler.Routes(mux, auth.Middleware(jwtMgr), handler.Handlers{
		Auth:     handler.NewAuthHandler(jwtMgr),
		Sessions: handler.NewSessionHandler(negotiationSvc, jwtMgr),
		WS:       handler.NewWSHandler(wsHub, jwtMgr, negotiationSvc),
		Checks:   map[string]handler.Check{
			"postgres": db.PingContext,
			"redis":    redisClient.Ping,
		},
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS(cfg.AllowedOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Restore hosted sessions interrupted by the last shutdown
	restored, err := negotiationSvc.RestoreActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to restore active sessions (non-fatal)")
	} else {
		log.Info().Int("sessions", restored).Msg("Active sessions restored")
	}

	go idleListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}

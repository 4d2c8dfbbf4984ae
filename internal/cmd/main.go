package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/appconfig"
	"github.com/jkoski/splitsecond/internal/broadcast"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := appconfig.NewConfigFromEnv()
	gameCfg, err := loadGameConfig(getEnv("GAME_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load game config")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, all identities fall back to client-declared hints")
	}

	// Connect to database
	db, err := setupDatabase(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis (ranking store)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to ping Redis")
	}
	pingCancel()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	// Connect to NATS (lifecycle broadcast bus)
	nc, err := broadcast.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
	}
	defer nc.Close()
	log.Info().Str("url", cfg.NATS.URL).Msg("connected to NATS")

	services := setupServices(db, redisClient, nc, gameCfg, []byte(jwtSecret))
	server := setupServer(services)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background loops: broadcast fan-out, lifecycle ticks, sweepers
	go services.ConnManager.Start(ctx)
	go services.Coordinator.RunTicks(ctx, gameCfg.tickInterval())
	go services.Limiter.RunSweeper(ctx.Done(), 5*time.Minute)
	go services.Registry.RunSweeper(ctx.Done(), gameCfg.sessionSweepInterval(), gameCfg.sessionMaxIdle())

	if err := services.Consumer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start event consumer")
	}

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	services.Consumer.Stop()
	cancel()

	// Give background loops time to clean up
	time.Sleep(1 * time.Second)

	log.Info().Msg("shutdown complete")
}

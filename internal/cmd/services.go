package main

import (
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/jkoski/splitsecond/internal/archive"
	"github.com/jkoski/splitsecond/internal/broadcast"
	"github.com/jkoski/splitsecond/internal/game/ranking"
	"github.com/jkoski/splitsecond/internal/game/ratelimit"
	"github.com/jkoski/splitsecond/internal/game/session"
	"github.com/jkoski/splitsecond/internal/game/tournament"
	"github.com/jkoski/splitsecond/internal/gateway"
	"github.com/jkoski/splitsecond/internal/identity"
	"github.com/jkoski/splitsecond/internal/schedule"
	"github.com/jkoski/splitsecond/internal/wallet"
)

type Services struct {
	Coordinator *tournament.Coordinator
	SessionApp  *session.App
	Registry    *session.Registry
	Limiter     *ratelimit.Limiter
	ConnManager *gateway.ConnectionManager
	WSHandler   *gateway.WebSocketHandler
	Consumer    *gateway.EventConsumer
}

func setupServices(db *sql.DB, redisClient *redis.Client, nc *nats.Conn, gameCfg *GameConfig, jwtSecret []byte) *Services {
	// Wire up dependency injection chain
	// Stores → coordinator → session state machine → gateway
	clock := clockwork.NewRealClock()

	// Ranking store and its read-through leaderboard cache
	orderedSet := ranking.NewRedisOrderedSet(redisClient)
	rankingStore := ranking.NewStore(orderedSet)
	coordCfg := gameCfg.coordinatorConfig()
	leaderboardCache := ranking.NewCache(rankingStore, clock, gameCfg.cacheTTL(), coordCfg.TopN)

	// External collaborators on Postgres
	scheduleRepo := schedule.NewRepository(db)
	archiveRepo := archive.NewRepository(db)
	walletRepo := wallet.NewRepository(db)

	// Tournament lifecycle coordinator
	publisher := broadcast.NewPublisher(nc)
	coordinator := tournament.New(clock, coordCfg, scheduleRepo, rankingStore, archiveRepo, publisher, leaderboardCache)

	// Session state machine
	registry := session.NewRegistry(clock)
	limiter := ratelimit.NewLimiter(clock, gameCfg.rateBudgets())
	verifier := identity.NewJWTVerifier(jwtSecret)
	sessionApp := session.NewApp(clock, registry, coordinator, rankingStore, leaderboardCache, limiter, walletRepo, verifier)

	// Gateway
	sessionHandler := gateway.NewSessionHandler(sessionApp, limiter)
	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), sessionHandler)
	wsHandler := gateway.NewWebSocketHandler(connManager)
	consumer := gateway.NewEventConsumer(connManager, nc)

	return &Services{
		Coordinator: coordinator,
		SessionApp:  sessionApp,
		Registry:    registry,
		Limiter:     limiter,
		ConnManager: connManager,
		WSHandler:   wsHandler,
		Consumer:    consumer,
	}
}

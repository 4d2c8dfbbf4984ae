package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/game/ranking"
	"github.com/jkoski/splitsecond/internal/game/ratelimit"
	"github.com/jkoski/splitsecond/internal/models"
)

// Resolver is what the session machine needs from the tournament
// coordinator: a tournament to bind to and its secret target.
type Resolver interface {
	ResolveCurrent(ctx context.Context) *models.Tournament
	TargetFor(id uuid.UUID) int64
	NewTarget() int64
}

// RankingStore records and reads tournament scores.
type RankingStore interface {
	UpsertIfBetter(ctx context.Context, tournamentID uuid.UUID, player models.Player, scoreMs int64) (bool, error)
	Rank(ctx context.Context, tournamentID uuid.UUID, playerID string) (int64, error)
	Best(ctx context.Context, tournamentID uuid.UUID, playerID string) (int64, error)
}

// Snapshotter serves the cached leaderboard; it never blocks a scoring
// response.
type Snapshotter interface {
	Snapshot(ctx context.Context, tournamentID uuid.UUID) []models.RankingEntry
}

// Limiter admits session events.
type Limiter interface {
	Allow(connID string, kind ratelimit.Kind) bool
}

// Wallet gates tournament attempts with a consume/refund contract.
type Wallet interface {
	Consume(ctx context.Context, playerID string) error
	Refund(ctx context.Context, playerID string) error
}

// Verifier checks an identity token. A failure falls back to the
// client-declared identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Player, error)
}

// App is the per-connection session state machine. The server alone measures
// elapsed time: only serverStart and the stop-side clock read determine the
// score, never anything the client reports.
type App struct {
	clock       clockwork.Clock
	registry    *Registry
	coordinator Resolver
	rankings    RankingStore
	leaderboard Snapshotter
	limiter     Limiter
	wallet      Wallet
	verifier    Verifier
}

// NewApp wires the session state machine.
func NewApp(clock clockwork.Clock, registry *Registry, coordinator Resolver, rankings RankingStore, leaderboard Snapshotter, limiter Limiter, wallet Wallet, verifier Verifier) *App {
	return &App{
		clock:       clock,
		registry:    registry,
		coordinator: coordinator,
		rankings:    rankings,
		leaderboard: leaderboard,
		limiter:     limiter,
		wallet:      wallet,
		verifier:    verifier,
	}
}

// Init creates a fresh session for the connection, overwriting any prior
// one. The tournament id and target are locked here for the session's whole
// lifetime.
func (a *App) Init(ctx context.Context, connID string, req InitRequest) (*InitResult, error) {
	if !a.limiter.Allow(connID, ratelimit.KindInit) {
		return nil, ErrRateLimited
	}

	player := a.resolveIdentity(ctx, req)
	now := a.clock.Now()

	if req.Mode == models.ModePractice {
		sess := &models.Session{
			ConnID:   connID,
			Player:   player,
			Mode:     models.ModePractice,
			TargetMs: a.coordinator.NewTarget(),
			Status:   models.SessionReady,
			Tournament: models.Tournament{
				ID:     uuid.New(),
				Origin: models.OriginRolling,
			},
		}
		a.registry.Put(sess)
		return &InitResult{
			TargetMs:     sess.TargetMs,
			TournamentID: sess.Tournament.ID.String(),
			Phase:        models.PhasePlay,
			Player:       player,
		}, nil
	}

	t := a.coordinator.ResolveCurrent(ctx)
	if t == nil {
		// No tournament currently accepting entries; no target is issued.
		return &InitResult{NoTournament: true, Phase: models.PhaseNone, Player: player}, nil
	}

	sess := &models.Session{
		ConnID:     connID,
		Player:     player,
		Mode:       models.ModeTournament,
		Tournament: *t,
		TargetMs:   a.coordinator.TargetFor(t.ID),
		Status:     models.SessionReady,
	}

	if best, err := a.rankings.Best(ctx, t.ID, player.ID); err == nil {
		sess.BestMs = &best
	} else if !errors.Is(err, ranking.ErrNotRanked) {
		log.Warn().Err(err).Str("player_id", player.ID).Msg("best score read failed on init")
	}
	var rank *int64
	if r, err := a.rankings.Rank(ctx, t.ID, player.ID); err == nil {
		rank = &r
	} else if !errors.Is(err, ranking.ErrNotRanked) {
		log.Warn().Err(err).Str("player_id", player.ID).Msg("rank read failed on init")
	}

	a.registry.Put(sess)
	return &InitResult{
		TargetMs:     sess.TargetMs,
		BestMs:       sess.BestMs,
		Rank:         rank,
		TimeLeftMs:   t.PlayTimeLeftAt(now).Milliseconds(),
		TournamentID: t.ID.String(),
		Phase:        t.PhaseAt(now),
		Player:       player,
		Leaderboard:  a.leaderboard.Snapshot(ctx, t.ID),
	}, nil
}

// Start begins an attempt. In tournament mode it first consumes from the
// attempt wallet; a denial performs no state change.
func (a *App) Start(ctx context.Context, connID string) (*models.Session, error) {
	sess := a.registry.Get(connID)
	if sess == nil {
		return nil, ErrNoSession
	}
	if !a.limiter.Allow(connID, ratelimit.KindStart) {
		return nil, ErrRateLimited
	}
	if sess.Status == models.SessionRunning {
		return nil, ErrAttemptInProgress
	}

	if sess.Mode == models.ModeTournament {
		if err := a.wallet.Consume(ctx, sess.Player.ID); err != nil {
			if errors.Is(err, ErrNoAttempts) {
				return nil, ErrNoAttempts
			}
			log.Error().Err(err).Str("player_id", sess.Player.ID).Msg("attempt wallet consume failed")
			return nil, err
		}
	}

	sess.ServerStart = a.clock.Now()
	sess.Status = models.SessionRunning
	log.Debug().
		Str("conn_id", connID).
		Str("player_id", sess.Player.ID).
		Msg("attempt started")
	return sess, nil
}

// Stop scores a running attempt. It is idempotent: when the session is not
// RUNNING the call is a silent no-op, which blocks double submission and
// replay. The returned result is nil for a no-op.
func (a *App) Stop(ctx context.Context, connID string) (*StopResult, error) {
	sess := a.registry.Get(connID)
	if sess == nil {
		return nil, ErrNoSession
	}
	if !a.limiter.Allow(connID, ratelimit.KindStop) {
		return nil, ErrRateLimited
	}
	if sess.Status != models.SessionRunning {
		return nil, nil
	}

	now := a.clock.Now()
	serverDuration := now.Sub(sess.ServerStart).Milliseconds()
	diff := serverDuration - sess.TargetMs
	if diff < 0 {
		diff = -diff
	}
	win := diff == 0

	sess.Status = models.SessionFinished

	result := &StopResult{
		Win:              win,
		DiffMs:           diff,
		ServerDurationMs: serverDuration,
		TargetMs:         sess.TargetMs,
		TournamentID:     sess.Tournament.ID.String(),
		Phase:            sess.Tournament.PhaseAt(now),
		TimeLeftMs:       sess.Tournament.PlayTimeLeftAt(now).Milliseconds(),
	}

	if sess.BestMs == nil || diff < *sess.BestMs {
		best := diff
		sess.BestMs = &best
		result.IsNewRecord = true
	}
	result.BestMs = sess.BestMs

	if sess.Mode != models.ModeTournament {
		log.Debug().
			Str("conn_id", connID).
			Int64("diff_ms", diff).
			Bool("win", win).
			Msg("practice attempt scored")
		return result, nil
	}

	written, err := a.rankings.UpsertIfBetter(ctx, sess.Tournament.ID, sess.Player, diff)
	if err != nil {
		// Never fabricate a confirmed score: the write is logged here and
		// effectively retried on the player's next attempt.
		log.Error().
			Err(err).
			Str("player_id", sess.Player.ID).
			Str("tournament_id", sess.Tournament.ID.String()).
			Msg("score write failed")
		result.IsNewRecord = false
	} else {
		result.IsNewRecord = written
	}

	// Rank is always freshly queried after the write, so a best-effort
	// upsert can never produce a wrong eligibility outcome.
	if r, rErr := a.rankings.Rank(ctx, sess.Tournament.ID, sess.Player.ID); rErr == nil {
		result.Rank = &r
	} else if !errors.Is(rErr, ranking.ErrNotRanked) {
		log.Warn().Err(rErr).Str("player_id", sess.Player.ID).Msg("rank read failed after stop")
	}
	if best, bErr := a.rankings.Best(ctx, sess.Tournament.ID, sess.Player.ID); bErr == nil {
		result.BestMs = &best
	}

	result.Leaderboard = a.leaderboard.Snapshot(ctx, sess.Tournament.ID)

	log.Info().
		Str("conn_id", connID).
		Str("player_id", sess.Player.ID).
		Int64("server_duration_ms", serverDuration).
		Int64("diff_ms", diff).
		Bool("win", win).
		Bool("new_record", result.IsNewRecord).
		Msg("attempt scored")
	return result, nil
}

const refundTimeout = 10 * time.Second

// Remove drops the connection's session on disconnect. Committed scores need
// no rollback (writes are commit-on-success), but an attempt still RUNNING
// never reached scoring, so its consumed wallet attempt is handed back.
func (a *App) Remove(connID string) {
	sess := a.registry.Get(connID)
	a.registry.Remove(connID)
	if sess == nil || sess.Mode != models.ModeTournament || sess.Status != models.SessionRunning {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refundTimeout)
	defer cancel()
	if err := a.wallet.Refund(ctx, sess.Player.ID); err != nil {
		log.Error().Err(err).Str("player_id", sess.Player.ID).Msg("attempt refund failed")
		return
	}
	log.Debug().
		Str("conn_id", connID).
		Str("player_id", sess.Player.ID).
		Msg("mid-attempt disconnect, attempt refunded")
}

// Session exposes the connection's session for the gateway's advisory
// elapsed pusher.
func (a *App) Session(connID string) *models.Session {
	return a.registry.Get(connID)
}

func (a *App) resolveIdentity(ctx context.Context, req InitRequest) models.Player {
	if req.Token != "" {
		player, err := a.verifier.Verify(ctx, req.Token)
		if err == nil {
			return player
		}
		log.Warn().Err(err).Msg("identity verification failed, falling back to declared identity")
	}

	id := req.IdentityHint
	if id == "" {
		id = uuid.New().String()
	}
	name := req.IdentityHint
	if name == "" {
		name = "anonymous"
	}
	return models.Player{ID: id, DisplayName: name, Verified: false}
}

package tournament

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/game/events"
	"github.com/jkoski/splitsecond/internal/models"
)

// ScheduleSource feeds the coordinator's admission checks. Durable schedule
// storage lives behind it.
type ScheduleSource interface {
	ListUpcoming(ctx context.Context, from, until time.Time) ([]models.ScheduleEntry, error)
	ListDaily(ctx context.Context) ([]models.ScheduleEntry, error)
}

// Rankings is what the coordinator reads from the ranking store when
// archiving and announcing winners.
type Rankings interface {
	TopN(ctx context.Context, tournamentID uuid.UUID, n int64) ([]models.RankingEntry, error)
}

// Archiver receives fire-and-forget snapshots of finished tournaments. It
// must never block the scoring path, so the coordinator only calls it from
// detached goroutines.
type Archiver interface {
	RecordTournament(ctx context.Context, t models.Tournament, final bool, top []models.RankingEntry) error
	RecordRewards(ctx context.Context, t models.Tournament, winners []models.RankingEntry, tiers []models.RewardTier) error
}

// Publisher emits lifecycle broadcasts. Delivery is best-effort.
type Publisher interface {
	PublishPhaseChanged(payload events.PhaseChangedPayload)
	PublishTournamentEnded(payload events.TournamentEndedPayload)
}

// Invalidator lets the coordinator drop the leaderboard cache on rollover.
type Invalidator interface {
	Invalidate()
}

// Config tunes the coordinator. The durations apply to rolling-slot
// tournaments; scheduled entries carry their own.
type Config struct {
	PlayDuration        time.Duration
	LeaderboardDuration time.Duration
	TargetMinMs         int64
	TargetMaxMs         int64
	AutoRotate          bool
	TopN                int64
	ScheduleLookahead   time.Duration
	ArchiveTimeout      time.Duration
}

// DefaultConfig matches a five-minute rolling cadence.
func DefaultConfig() Config {
	return Config{
		PlayDuration:        4 * time.Minute,
		LeaderboardDuration: time.Minute,
		TargetMinMs:         3000,
		TargetMaxMs:         15000,
		AutoRotate:          true,
		TopN:                10,
		ScheduleLookahead:   time.Minute,
		ArchiveTimeout:      10 * time.Second,
	}
}

// Coordinator is the single global tournament lifecycle state machine. The
// phase is always re-derived from wall-clock time against the current
// tournament's start and durations; lastPhase exists only to detect whether
// a transition still needs broadcasting. Tick never overlaps with itself:
// RunTicks schedules the next tick only after the previous one returns.
type Coordinator struct {
	clock     clockwork.Clock
	cfg       Config
	schedule  ScheduleSource
	rankings  Rankings
	archive   Archiver
	publisher Publisher
	cache     Invalidator

	mu         sync.Mutex
	autoRotate bool
	current    *models.Tournament
	lastPhase  models.Phase
	targets    map[uuid.UUID]int64
	tiers      map[uuid.UUID][]models.RewardTier
	admitted   map[uuid.UUID]time.Time // schedule entry id -> occurrence start already admitted
	rng        *rand.Rand
}

// New creates a coordinator. cache may be nil.
func New(clock clockwork.Clock, cfg Config, schedule ScheduleSource, rankings Rankings, archive Archiver, publisher Publisher, cache Invalidator) *Coordinator {
	return &Coordinator{
		clock:      clock,
		cfg:        cfg,
		schedule:   schedule,
		rankings:   rankings,
		archive:    archive,
		publisher:  publisher,
		cache:      cache,
		autoRotate: cfg.AutoRotate,
		lastPhase:  models.PhaseNone,
		targets:    make(map[uuid.UUID]int64),
		tiers:      make(map[uuid.UUID][]models.RewardTier),
		admitted:   make(map[uuid.UUID]time.Time),
		rng:        rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// SetAutoRotate toggles default rolling-slot rotation at runtime.
func (c *Coordinator) SetAutoRotate(enabled bool) {
	c.mu.Lock()
	c.autoRotate = enabled
	c.mu.Unlock()
}

// ResolveCurrent returns the tournament currently accepting entries, or nil
// when none is live (auto-rotation disabled and no custom tournament
// active). Practice sessions never call this; they use NewTarget with a
// throwaway id.
func (c *Coordinator) ResolveCurrent(ctx context.Context) *models.Tournament {
	now := c.clock.Now()

	c.mu.Lock()
	if c.current != nil {
		if c.current.PhaseAt(now) != models.PhaseEnded {
			t := *c.current
			c.mu.Unlock()
			return &t
		}
		// The current round ended between ticks. Close it out exactly as a
		// tick would, so a resolve racing the timer never skips the final
		// archive, the ended broadcast, or the per-id cleanup.
		ended := *c.current
		c.mu.Unlock()

		oneOffs, daily, err := c.probeSchedule(ctx, now)
		if err != nil {
			log.Warn().Err(err).Msg("schedule probe failed on resolve, falling back to rotation")
			oneOffs, daily = nil, nil
		}
		c.endTournament(ctx, ended, now, oneOffs, daily)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current == nil || c.current.PhaseAt(now) == models.PhaseEnded {
			return nil
		}
		t := *c.current
		return &t
	}

	// Nothing live: try admission so a session arriving between ticks still
	// binds to the right tournament.
	admitted := c.admitLocked(ctx, now)
	if admitted == nil {
		c.mu.Unlock()
		return nil
	}
	t := *admitted
	c.lastPhase = t.PhaseAt(now)
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate()
	}
	c.publisher.PublishPhaseChanged(c.phaseChangedPayload(t, t.PhaseAt(now), now))
	return &t
}

// TargetFor lazily creates the secret target duration for a tournament id
// and caches it for the id's whole lifetime. Every competitor in one
// instance sees the same target; that is the fairness guarantee.
func (c *Coordinator) TargetFor(id uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target, ok := c.targets[id]; ok {
		return target
	}
	target := c.randomTargetLocked()
	c.targets[id] = target
	log.Info().
		Str("tournament_id", id.String()).
		Int64("target_ms", target).
		Msg("target created for tournament")
	return target
}

// NewTarget returns a fresh random target for a practice attempt. Practice
// targets are per-session and never cached.
func (c *Coordinator) NewTarget() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.randomTargetLocked()
}

func (c *Coordinator) randomTargetLocked() int64 {
	span := c.cfg.TargetMaxMs - c.cfg.TargetMinMs
	if span <= 0 {
		return c.cfg.TargetMinMs
	}
	return c.cfg.TargetMinMs + c.rng.Int63n(span+1)
}

// Override is the admission point for the out-of-scope management plane: it
// starts a manual tournament immediately, taking priority over the rolling
// slot. The previous tournament, if any, is abandoned without a final
// archive; the management plane owns that trade-off.
func (c *Coordinator) Override(entry models.ScheduleEntry) models.Tournament {
	now := c.clock.Now()

	c.mu.Lock()
	t := models.Tournament{
		ID:                  uuid.New(),
		Origin:              models.OriginManual,
		Start:               now,
		PlayDuration:        entry.PlayDuration,
		LeaderboardDuration: entry.LeaderboardDuration,
	}
	c.current = &t
	c.lastPhase = models.PhasePlay
	if len(entry.RewardTiers) > 0 {
		c.tiers[t.ID] = entry.RewardTiers
	}
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate()
	}
	c.publisher.PublishPhaseChanged(c.phaseChangedPayload(t, models.PhasePlay, now))

	log.Info().
		Str("tournament_id", t.ID.String()).
		Dur("play_duration", t.PlayDuration).
		Msg("manual tournament admitted via override")
	return t
}

func (c *Coordinator) phaseChangedPayload(t models.Tournament, phase models.Phase, now time.Time) events.PhaseChangedPayload {
	return events.PhaseChangedPayload{
		TournamentID:          t.ID.String(),
		Phase:                 string(phase),
		TimeLeftMs:            t.PlayTimeLeftAt(now).Milliseconds(),
		LeaderboardTimeLeftMs: t.LeaderboardTimeLeftAt(now).Milliseconds(),
		ChangedAt:             now,
	}
}

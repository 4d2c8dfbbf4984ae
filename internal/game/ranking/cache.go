package ranking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/models"
)

// Cache is a short-TTL read-through cache over Store.TopN, scoped to one
// tournament id at a time. A rollover to a new id invalidates it immediately
// so a stale cross-tournament snapshot is never served. Read failures
// degrade to the last known value (or an empty list) and never block a
// scoring response.
type Cache struct {
	store *Store
	clock clockwork.Clock
	ttl   time.Duration
	topN  int64

	mu           sync.Mutex
	tournamentID uuid.UUID
	entries      []models.RankingEntry
	fetchedAt    time.Time
	valid        bool
	refreshing   bool
}

// NewCache creates a leaderboard cache holding the top topN entries.
func NewCache(store *Store, clock clockwork.Clock, ttl time.Duration, topN int64) *Cache {
	return &Cache{store: store, clock: clock, ttl: ttl, topN: topN}
}

// Snapshot returns the cached top-N for the tournament, refreshing when the
// TTL has lapsed or the id changed. The store fetch happens outside the
// mutex and is single-flight: while one caller refreshes, concurrent callers
// get the stale snapshot immediately instead of queueing behind a slow read.
func (c *Cache) Snapshot(ctx context.Context, tournamentID uuid.UUID) []models.RankingEntry {
	now := c.clock.Now()

	c.mu.Lock()
	if c.valid && c.tournamentID == tournamentID && now.Sub(c.fetchedAt) < c.ttl {
		entries := c.entries
		c.mu.Unlock()
		return entries
	}
	if c.refreshing {
		entries := c.staleLocked(tournamentID)
		c.mu.Unlock()
		return entries
	}
	c.refreshing = true
	c.mu.Unlock()

	entries, err := c.store.TopN(ctx, tournamentID, c.topN)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false

	if err != nil {
		log.Warn().
			Err(err).
			Str("tournament_id", tournamentID.String()).
			Msg("leaderboard refresh failed, serving stale snapshot")
		return c.staleLocked(tournamentID)
	}

	c.tournamentID = tournamentID
	c.entries = entries
	c.fetchedAt = now
	c.valid = true
	return entries
}

func (c *Cache) staleLocked(tournamentID uuid.UUID) []models.RankingEntry {
	if c.valid && c.tournamentID == tournamentID {
		return c.entries
	}
	return nil
}

// Invalidate drops the cached snapshot. Called when the active tournament
// changes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.entries = nil
	c.mu.Unlock()
}

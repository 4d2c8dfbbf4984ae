package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jkoski/splitsecond/internal/models"
)

// Repository is the durable archive for finished tournaments. Every call is
// fire-and-forget from the caller's point of view and must never sit on the
// scoring path.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordTournament upserts a leaderboard snapshot for the tournament. The
// non-final snapshot at the LEADERBOARD transition is advisory; the final
// one at ENDED overwrites it.
func (r *Repository) RecordTournament(ctx context.Context, t models.Tournament, final bool, top []models.RankingEntry) error {
	snapshot, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("marshal leaderboard snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tournament_archive
		   (tournament_id, origin, started_at, play_ms, leaderboard_ms, final, leaderboard, archived_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (tournament_id)
		 DO UPDATE SET final = EXCLUDED.final, leaderboard = EXCLUDED.leaderboard, archived_at = now()`,
		t.ID, string(t.Origin), t.Start,
		t.PlayDuration.Milliseconds(), t.LeaderboardDuration.Milliseconds(),
		final, snapshot)
	if err != nil {
		return fmt.Errorf("record tournament %s: %w", t.ID, err)
	}
	return nil
}

// RecordRewards books which winners earned which reward tier. Distribution
// itself is external.
func (r *Repository) RecordRewards(ctx context.Context, t models.Tournament, winners []models.RankingEntry, tiers []models.RewardTier) error {
	for _, tier := range tiers {
		for _, w := range winners {
			if int(w.Rank) < tier.FromRank || int(w.Rank) > tier.ToRank {
				continue
			}
			_, err := r.db.ExecContext(ctx,
				`INSERT INTO tournament_rewards (tournament_id, player_id, rank, score_ms, reward, recorded_at)
				 VALUES ($1, $2, $3, $4, $5, now())
				 ON CONFLICT (tournament_id, player_id) DO NOTHING`,
				t.ID, w.PlayerID, w.Rank, w.ScoreMs, tier.Reward)
			if err != nil {
				return fmt.Errorf("record reward for %s: %w", w.PlayerID, err)
			}
		}
	}
	return nil
}

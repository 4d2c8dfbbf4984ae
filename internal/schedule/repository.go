package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/models"
)

// Repository reads tournament schedule entries from Postgres. It feeds the
// coordinator's admission checks; writes happen through the out-of-scope
// management plane.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListUpcoming returns one-off entries whose window could overlap
// [from, until]: fired already but not expired, or firing before until.
func (r *Repository) ListUpcoming(ctx context.Context, from, until time.Time) ([]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, fire_at, play_ms, leaderboard_ms, reward_tiers
		 FROM schedule_entries
		 WHERE kind = 'ONE_OFF'
		   AND fire_at <= $2
		   AND fire_at + (play_ms + leaderboard_ms) * interval '1 millisecond' > $1
		 ORDER BY fire_at`, from, until)
	if err != nil {
		return nil, fmt.Errorf("list upcoming schedule entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		var (
			entry   models.ScheduleEntry
			playMs  int64
			lbMs    int64
			tiersJS []byte
		)
		if err := rows.Scan(&entry.ID, &entry.FireAt, &playMs, &lbMs, &tiersJS); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		entry.Kind = models.ScheduleOneOff
		entry.PlayDuration = time.Duration(playMs) * time.Millisecond
		entry.LeaderboardDuration = time.Duration(lbMs) * time.Millisecond
		entry.RewardTiers = parseTiers(entry.ID.String(), tiersJS)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListDaily returns every daily-recurring entry.
func (r *Repository) ListDaily(ctx context.Context) ([]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, daily_hour, daily_minute, play_ms, leaderboard_ms, reward_tiers
		 FROM schedule_entries
		 WHERE kind = 'DAILY'
		 ORDER BY daily_hour, daily_minute`)
	if err != nil {
		return nil, fmt.Errorf("list daily schedule entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		var (
			entry   models.ScheduleEntry
			playMs  int64
			lbMs    int64
			tiersJS []byte
		)
		if err := rows.Scan(&entry.ID, &entry.DailyHour, &entry.DailyMinute, &playMs, &lbMs, &tiersJS); err != nil {
			return nil, fmt.Errorf("scan daily schedule entry: %w", err)
		}
		entry.Kind = models.ScheduleDaily
		entry.PlayDuration = time.Duration(playMs) * time.Millisecond
		entry.LeaderboardDuration = time.Duration(lbMs) * time.Millisecond
		entry.RewardTiers = parseTiers(entry.ID.String(), tiersJS)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func parseTiers(entryID string, raw []byte) []models.RewardTier {
	if len(raw) == 0 {
		return nil
	}
	var tiers []models.RewardTier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		log.Warn().Err(err).Str("schedule_entry", entryID).Msg("malformed reward tiers, ignoring")
		return nil
	}
	return tiers
}

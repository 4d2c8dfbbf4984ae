package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkoski/splitsecond/internal/appconfig"
)

// Entry mirrors the JSON schedule snapshot
type Entry struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	FireAt        string          `json:"fire_at,omitempty"`
	DailyHour     int             `json:"daily_hour,omitempty"`
	DailyMinute   int             `json:"daily_minute,omitempty"`
	PlayMs        int64           `json:"play_ms"`
	LeaderboardMs int64           `json:"leaderboard_ms"`
	RewardTiers   json.RawMessage `json:"reward_tiers,omitempty"`
}

func main() {
	path := "internal/assets/schedule.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared appconfig
	cfg := appconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total    = len(entries)
		upserted int
		errs     int
	)

	for _, e := range entries {
		var fireAt any
		if e.FireAt != "" {
			fireAt = e.FireAt
		}
		var tiers any
		if len(e.RewardTiers) > 0 {
			tiers = string(e.RewardTiers)
		}

		_, err := pool.Exec(context.Background(), `
            INSERT INTO schedule_entries (
              id, kind, fire_at, daily_hour, daily_minute,
              play_ms, leaderboard_ms, reward_tiers
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8
            )
            ON CONFLICT (id) DO UPDATE SET
              kind = EXCLUDED.kind,
              fire_at = EXCLUDED.fire_at,
              daily_hour = EXCLUDED.daily_hour,
              daily_minute = EXCLUDED.daily_minute,
              play_ms = EXCLUDED.play_ms,
              leaderboard_ms = EXCLUDED.leaderboard_ms,
              reward_tiers = EXCLUDED.reward_tiers
        `,
			e.ID, e.Kind, fireAt, e.DailyHour, e.DailyMinute,
			e.PlayMs, e.LeaderboardMs, tiers,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting entry %s: %v\n", e.ID, err)
			errs++
			continue
		}
		upserted++
	}

	// 4) Print summary
	fmt.Printf(
		"Schedule seed complete: %d total, %d upserted, %d errors\n",
		total, upserted, errs,
	)
}

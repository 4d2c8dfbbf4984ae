package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleKind distinguishes one-off entries from daily-recurring ones.
type ScheduleKind string

const (
	ScheduleOneOff ScheduleKind = "ONE_OFF"
	ScheduleDaily  ScheduleKind = "DAILY"
)

// ScheduleEntry describes a custom tournament to admit. One-off entries fire
// at FireAt; daily entries fire every day at DailyHour:DailyMinute server
// time. Each entry carries its own durations.
type ScheduleEntry struct {
	ID                  uuid.UUID     `json:"id"`
	Kind                ScheduleKind  `json:"kind"`
	FireAt              time.Time     `json:"fire_at,omitempty"`
	DailyHour           int           `json:"daily_hour,omitempty"`
	DailyMinute         int           `json:"daily_minute,omitempty"`
	PlayDuration        time.Duration `json:"play_duration"`
	LeaderboardDuration time.Duration `json:"leaderboard_duration"`
	RewardTiers         []RewardTier  `json:"reward_tiers,omitempty"`
}

// RewardTier maps a leaderboard position range to a reward code bucket.
// Distribution itself is external bookkeeping.
type RewardTier struct {
	FromRank int    `json:"from_rank"` // zero-based, inclusive
	ToRank   int    `json:"to_rank"`   // inclusive
	Reward   string `json:"reward"`
}

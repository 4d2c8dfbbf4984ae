package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase defines where a tournament is in its lifecycle. Phases only move
// forward: NONE -> PLAY -> LEADERBOARD -> ENDED.
type Phase string

const (
	PhaseNone        Phase = "NONE"
	PhasePlay        Phase = "PLAY"
	PhaseLeaderboard Phase = "LEADERBOARD"
	PhaseEnded       Phase = "ENDED"
)

// Origin records how a tournament came to exist.
type Origin string

const (
	OriginRolling   Origin = "ROLLING"
	OriginManual    Origin = "MANUAL"
	OriginScheduled Origin = "SCHEDULED"
	OriginDaily     Origin = "DAILY"
)

// Tournament is one time-boxed competitive round. Start and the two
// durations are fixed at creation; the phase is always recomputed from
// wall-clock time against them.
type Tournament struct {
	ID                  uuid.UUID     `json:"id"`
	Origin              Origin        `json:"origin"`
	Start               time.Time     `json:"start"`
	PlayDuration        time.Duration `json:"play_duration"`
	LeaderboardDuration time.Duration `json:"leaderboard_duration"`
}

// PhaseAt derives the lifecycle phase from wall-clock time.
func (t Tournament) PhaseAt(now time.Time) Phase {
	switch {
	case now.Before(t.Start):
		return PhaseNone
	case now.Sub(t.Start) < t.PlayDuration:
		return PhasePlay
	case now.Sub(t.Start) < t.PlayDuration+t.LeaderboardDuration:
		return PhaseLeaderboard
	default:
		return PhaseEnded
	}
}

// PlayTimeLeftAt returns how much scoring time remains, clamped at zero.
func (t Tournament) PlayTimeLeftAt(now time.Time) time.Duration {
	left := t.Start.Add(t.PlayDuration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// LeaderboardTimeLeftAt returns how long results stay visible, clamped at zero.
func (t Tournament) LeaderboardTimeLeftAt(now time.Time) time.Duration {
	left := t.Start.Add(t.PlayDuration + t.LeaderboardDuration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

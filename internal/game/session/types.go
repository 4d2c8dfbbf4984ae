package session

import (
	"errors"

	"github.com/jkoski/splitsecond/internal/models"
)

var (
	// ErrNoSession means the connection sent start/stop before init.
	ErrNoSession = errors.New("no session for connection")
	// ErrRateLimited means the event was dropped by the rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrAttemptInProgress means start arrived while an attempt was running.
	ErrAttemptInProgress = errors.New("attempt already running")
	// ErrNoAttempts means the attempt wallet denied start.
	ErrNoAttempts = errors.New("no attempts left")
)

// InitRequest is the payload of an init event.
type InitRequest struct {
	IdentityHint string      `json:"identity_hint"`
	Token        string      `json:"token,omitempty"`
	Mode         models.Mode `json:"mode"`
}

// InitResult answers an init event. When NoTournament is set no target is
// issued and the session is not created.
type InitResult struct {
	NoTournament bool                  `json:"no_tournament,omitempty"`
	TargetMs     int64                 `json:"target_ms,omitempty"`
	BestMs       *int64                `json:"best_ms,omitempty"`
	Rank         *int64                `json:"rank,omitempty"`
	TimeLeftMs   int64                 `json:"time_left_ms"`
	TournamentID string                `json:"tournament_id,omitempty"`
	Phase        models.Phase          `json:"phase"`
	Player       models.Player         `json:"player"`
	Leaderboard  []models.RankingEntry `json:"leaderboard,omitempty"`
}

// StopResult answers the first stop of a running attempt.
type StopResult struct {
	Win              bool                  `json:"win"`
	DiffMs           int64                 `json:"diff_ms"`
	ServerDurationMs int64                 `json:"server_duration_ms"`
	TargetMs         int64                 `json:"target_ms"`
	Rank             *int64                `json:"rank,omitempty"`
	BestMs           *int64                `json:"best_ms,omitempty"`
	IsNewRecord      bool                  `json:"is_new_record"`
	Leaderboard      []models.RankingEntry `json:"leaderboard,omitempty"`
	TournamentID     string                `json:"tournament_id"`
	Phase            models.Phase          `json:"phase"`
	TimeLeftMs       int64                 `json:"time_left_ms"`
}

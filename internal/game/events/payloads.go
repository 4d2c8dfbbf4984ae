package events

import "time"

// Broadcast payload types shared between the tournament coordinator and the
// gateway. They live here so neither package has to import the other.

// PhaseChangedPayload is emitted whenever the live tournament moves to a new
// phase. Delivery is best-effort; receivers treat it as idempotent.
type PhaseChangedPayload struct {
	TournamentID          string    `json:"tournament_id"`
	Phase                 string    `json:"phase"`
	TimeLeftMs            int64     `json:"time_left_ms"`
	LeaderboardTimeLeftMs int64     `json:"leaderboard_time_left_ms"`
	ChangedAt             time.Time `json:"changed_at"`
}

// TopWinner is one leaderboard row carried in a TournamentEnded broadcast.
type TopWinner struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	ScoreMs     int64  `json:"score_ms"`
}

// TournamentEndedPayload is emitted once when a tournament reaches ENDED.
type TournamentEndedPayload struct {
	TournamentID string      `json:"tournament_id"`
	TopWinners   []TopWinner `json:"top_winners"`
	EndedAt      time.Time   `json:"ended_at"`
}

// ElapsedPayload is the advisory ~10 Hz timer push while an attempt is
// running. It is display-only and never used for scoring.
type ElapsedPayload struct {
	ElapsedMs int64     `json:"elapsed_ms"`
	PushedAt  time.Time `json:"pushed_at"`
}

package models

import "github.com/google/uuid"

// RankingEntry is a player's best (lowest) timing error in one tournament.
// At most one entry exists per (tournament, player) pair.
type RankingEntry struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	PlayerID     string    `json:"player_id"`
	DisplayName  string    `json:"display_name"`
	ScoreMs      int64     `json:"score_ms"`
	Rank         int64     `json:"rank"` // zero-based, ascending by score
}

package models

import "time"

// SessionStatus defines the state of one in-flight attempt.
type SessionStatus string

const (
	SessionReady    SessionStatus = "READY"
	SessionRunning  SessionStatus = "RUNNING"
	SessionFinished SessionStatus = "FINISHED"
)

// Mode selects whether an attempt counts toward a tournament ranking.
type Mode string

const (
	ModePractice   Mode = "PRACTICE"
	ModeTournament Mode = "TOURNAMENT"
)

// Session is the ephemeral per-connection attempt state. It lives only in
// process memory and is lost on restart. The whole tournament record is
// resolved once at creation and carried here, never recomputed mid-session;
// a late stop after a rollover is still scored against it.
type Session struct {
	ConnID      string        `json:"conn_id"`
	Player      Player        `json:"player"`
	Mode        Mode          `json:"mode"`
	Tournament  Tournament    `json:"tournament"`
	TargetMs    int64         `json:"target_ms"`
	ServerStart time.Time     `json:"server_start"` // zero = not started
	Status      SessionStatus `json:"status"`
	BestMs      *int64        `json:"best_ms,omitempty"`
}

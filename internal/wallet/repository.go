package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jkoski/splitsecond/internal/game/session"
)

// Repository implements the attempt wallet on Postgres. Consume is a single
// conditional UPDATE, so a denied attempt changes nothing.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Consume spends one attempt. Returns session.ErrNoAttempts when the player
// has none left (or no wallet row at all).
func (r *Repository) Consume(ctx context.Context, playerID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE attempt_wallets SET attempts = attempts - 1, updated_at = now()
		 WHERE player_id = $1 AND attempts > 0`, playerID)
	if err != nil {
		return fmt.Errorf("consume attempt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume attempt rows affected: %w", err)
	}
	if affected == 0 {
		return session.ErrNoAttempts
	}
	return nil
}

// Refund returns one attempt, creating the wallet row if needed.
func (r *Repository) Refund(ctx context.Context, playerID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attempt_wallets (player_id, attempts, updated_at)
		 VALUES ($1, 1, now())
		 ON CONFLICT (player_id)
		 DO UPDATE SET attempts = attempt_wallets.attempts + 1, updated_at = now()`, playerID)
	if err != nil {
		return fmt.Errorf("refund attempt: %w", err)
	}
	return nil
}

package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/models"
)

// ErrNotRanked is returned by Rank when the player has no entry yet.
var ErrNotRanked = errors.New("player not ranked")

// OrderedSet is the external ranking primitive: members sorted ascending by
// score, lower = better. It has no native "keep-lowest" upsert; Store layers
// that on top.
type OrderedSet interface {
	// Score returns the member's score, or ErrNotRanked.
	Score(ctx context.Context, set, member string) (int64, error)
	// Add writes the member's score unconditionally.
	Add(ctx context.Context, set, member string, score int64) error
	// Rank returns the member's zero-based ascending position, or ErrNotRanked.
	Rank(ctx context.Context, set, member string) (int64, error)
	// Range returns up to n members from the front, best first.
	Range(ctx context.Context, set string, n int64) ([]ScoredMember, error)
	// Card returns the number of members.
	Card(ctx context.Context, set string) (int64, error)
	// SetName records a member's display name beside the set.
	SetName(ctx context.Context, set, member, name string) error
	// Names resolves display names for members; unknown members map to "".
	Names(ctx context.Context, set string, members []string) (map[string]string, error)
}

// ScoredMember is one (member, score) pair from the primitive.
type ScoredMember struct {
	Member string
	Score  int64
}

// Store wraps the ordered-set primitive with the ranking semantics the game
// needs: at most one entry per (tournament, player), always the minimum
// score ever recorded.
type Store struct {
	set OrderedSet
}

// NewStore creates a ranking store over the given primitive.
func NewStore(set OrderedSet) *Store {
	return &Store{set: set}
}

func setKey(tournamentID uuid.UUID) string {
	return "ranking:" + tournamentID.String()
}

// UpsertIfBetter writes the score only if the player has no entry or the new
// score is strictly lower. The read-then-write is best-effort, not
// linearizable: the same player improving from two connections at once can
// leave a marginally stale best visible for one cycle. Callers re-read rank
// after every write, so eligibility outcomes are never wrong.
func (s *Store) UpsertIfBetter(ctx context.Context, tournamentID uuid.UUID, player models.Player, scoreMs int64) (bool, error) {
	set := setKey(tournamentID)

	existing, err := s.set.Score(ctx, set, player.ID)
	switch {
	case errors.Is(err, ErrNotRanked):
		// No prior entry, write below.
	case err != nil:
		return false, fmt.Errorf("read existing score: %w", err)
	case scoreMs >= existing:
		return false, nil
	}

	if err := s.set.Add(ctx, set, player.ID, scoreMs); err != nil {
		return false, fmt.Errorf("write score: %w", err)
	}
	if err := s.set.SetName(ctx, set, player.ID, player.DisplayName); err != nil {
		log.Warn().
			Err(err).
			Str("tournament_id", tournamentID.String()).
			Str("player_id", player.ID).
			Msg("failed to record display name")
	}

	log.Info().
		Str("tournament_id", tournamentID.String()).
		Str("player_id", player.ID).
		Int64("score_ms", scoreMs).
		Msg("new best score recorded")
	return true, nil
}

// Rank returns the player's zero-based ascending position, or ErrNotRanked.
func (s *Store) Rank(ctx context.Context, tournamentID uuid.UUID, playerID string) (int64, error) {
	return s.set.Rank(ctx, setKey(tournamentID), playerID)
}

// Best returns the player's stored best score, or ErrNotRanked.
func (s *Store) Best(ctx context.Context, tournamentID uuid.UUID, playerID string) (int64, error) {
	return s.set.Score(ctx, setKey(tournamentID), playerID)
}

// TopN returns the best n entries with display names resolved.
func (s *Store) TopN(ctx context.Context, tournamentID uuid.UUID, n int64) ([]models.RankingEntry, error) {
	set := setKey(tournamentID)

	members, err := s.set.Range(ctx, set, n)
	if err != nil {
		return nil, fmt.Errorf("range ranking set: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member
	}
	names, err := s.set.Names(ctx, set, ids)
	if err != nil {
		log.Warn().Err(err).Str("tournament_id", tournamentID.String()).Msg("failed to resolve display names")
		names = map[string]string{}
	}

	entries := make([]models.RankingEntry, len(members))
	for i, m := range members {
		entries[i] = models.RankingEntry{
			TournamentID: tournamentID,
			PlayerID:     m.Member,
			DisplayName:  names[m.Member],
			ScoreMs:      m.Score,
			Rank:         int64(i),
		}
	}
	return entries, nil
}

// Count returns how many players have an entry in the tournament.
func (s *Store) Count(ctx context.Context, tournamentID uuid.UUID) (int64, error) {
	return s.set.Card(ctx, setKey(tournamentID))
}

package ranking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/jkoski/splitsecond/internal/models"
)

// fakeOrderedSet is an in-memory OrderedSet with the same ascending,
// insertion-stable ordering contract as the real primitive.
type fakeOrderedSet struct {
	mu     sync.Mutex
	scores map[string]map[string]int64 // set -> member -> score
	names  map[string]map[string]string
	order  map[string][]string // insertion order per set, for stable ties
	err    error               // when set, every call fails
}

func newFakeOrderedSet() *fakeOrderedSet {
	return &fakeOrderedSet{
		scores: make(map[string]map[string]int64),
		names:  make(map[string]map[string]string),
		order:  make(map[string][]string),
	}
}

func (f *fakeOrderedSet) sorted(set string) []ScoredMember {
	members := make([]ScoredMember, 0, len(f.scores[set]))
	for _, m := range f.order[set] {
		members = append(members, ScoredMember{Member: m, Score: f.scores[set][m]})
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Score < members[j].Score
	})
	return members
}

func (f *fakeOrderedSet) Score(_ context.Context, set, member string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	score, ok := f.scores[set][member]
	if !ok {
		return 0, ErrNotRanked
	}
	return score, nil
}

func (f *fakeOrderedSet) Add(_ context.Context, set, member string, score int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.scores[set] == nil {
		f.scores[set] = make(map[string]int64)
	}
	if _, exists := f.scores[set][member]; !exists {
		f.order[set] = append(f.order[set], member)
	}
	f.scores[set][member] = score
	return nil
}

func (f *fakeOrderedSet) Rank(_ context.Context, set, member string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	for i, m := range f.sorted(set) {
		if m.Member == member {
			return int64(i), nil
		}
	}
	return 0, ErrNotRanked
}

func (f *fakeOrderedSet) Range(_ context.Context, set string, n int64) ([]ScoredMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	members := f.sorted(set)
	if int64(len(members)) > n {
		members = members[:n]
	}
	return members, nil
}

func (f *fakeOrderedSet) Card(_ context.Context, set string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.scores[set])), nil
}

func (f *fakeOrderedSet) SetName(_ context.Context, set, member, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.names[set] == nil {
		f.names[set] = make(map[string]string)
	}
	f.names[set][member] = name
	return nil
}

func (f *fakeOrderedSet) Names(_ context.Context, set string, members []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m] = f.names[set][m]
	}
	return names, nil
}

func (f *fakeOrderedSet) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func player(id, name string) models.Player {
	return models.Player{ID: id, DisplayName: name}
}

func TestStore_UpsertIfBetter_KeepsLowest(t *testing.T) {
	ctx := context.Background()
	set := newFakeOrderedSet()
	store := NewStore(set)
	tid := uuid.New()

	written, err := store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 250)
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Fatal("first score should be written")
	}

	// A worse (higher) score never changes the stored entry.
	written, err = store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 400)
	if err != nil {
		t.Fatal(err)
	}
	if written {
		t.Error("worse score should not be written")
	}
	if best, _ := store.Best(ctx, tid, "alice"); best != 250 {
		t.Errorf("Best = %d, want 250", best)
	}

	// An equal score is not an improvement either.
	if written, _ = store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 250); written {
		t.Error("equal score should not be written")
	}

	written, err = store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Error("strictly lower score should be written")
	}
	if best, _ := store.Best(ctx, tid, "alice"); best != 100 {
		t.Errorf("Best = %d, want 100", best)
	}
}

func TestStore_RankOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeOrderedSet())
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("bob", "Bob"), 300)
	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)
	store.UpsertIfBetter(ctx, tid, player("carol", "Carol"), 200)

	rankA, err := store.Rank(ctx, tid, "alice")
	if err != nil {
		t.Fatal(err)
	}
	rankB, _ := store.Rank(ctx, tid, "bob")
	if rankA != 0 {
		t.Errorf("rank(alice) = %d, want 0", rankA)
	}
	if rankB != 2 {
		t.Errorf("rank(bob) = %d, want 2", rankB)
	}
	if rankA >= rankB {
		t.Error("lower score must rank ahead of higher score")
	}

	if _, err := store.Rank(ctx, tid, "nobody"); !errors.Is(err, ErrNotRanked) {
		t.Errorf("rank of unknown player = %v, want ErrNotRanked", err)
	}

	// Rank after a non-improving write is still freshly correct.
	store.UpsertIfBetter(ctx, tid, player("bob", "Bob"), 500)
	if rank, _ := store.Rank(ctx, tid, "bob"); rank != 2 {
		t.Errorf("rank(bob) after worse write = %d, want 2", rank)
	}
}

func TestStore_TieBreakStable(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeOrderedSet())
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 150)
	store.UpsertIfBetter(ctx, tid, player("bob", "Bob"), 150)

	first, err := store.TopN(ctx, tid, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, _ := store.TopN(ctx, tid, 10)
		for j := range first {
			if again[j].PlayerID != first[j].PlayerID {
				t.Fatal("tie-break order must be stable across repeated queries")
			}
		}
	}
}

func TestStore_TopNAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeOrderedSet())
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("bob", "Bob"), 300)
	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)
	store.UpsertIfBetter(ctx, tid, player("carol", "Carol"), 200)

	top, err := store.TopN(ctx, tid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].PlayerID != "alice" || top[0].Rank != 0 || top[0].DisplayName != "Alice" {
		t.Errorf("top[0] = %+v, want alice at rank 0", top[0])
	}
	if top[1].PlayerID != "carol" || top[1].Rank != 1 {
		t.Errorf("top[1] = %+v, want carol at rank 1", top[1])
	}

	count, err := store.Count(ctx, tid)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

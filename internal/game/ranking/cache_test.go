package ranking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jkoski/splitsecond/internal/models"
)

func TestCache_ReadThroughAndTTL(t *testing.T) {
	ctx := context.Background()
	set := newFakeOrderedSet()
	store := NewStore(set)
	clock := clockwork.NewFakeClock()
	cache := NewCache(store, clock, 10*time.Second, 5)
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)

	snap := cache.Snapshot(ctx, tid)
	if len(snap) != 1 || snap[0].PlayerID != "alice" {
		t.Fatalf("snapshot = %+v, want alice", snap)
	}

	// Inside the TTL the cache serves the old view.
	store.UpsertIfBetter(ctx, tid, player("bob", "Bob"), 50)
	if snap = cache.Snapshot(ctx, tid); len(snap) != 1 {
		t.Errorf("snapshot inside TTL should be cached, got %d entries", len(snap))
	}

	clock.Advance(11 * time.Second)
	if snap = cache.Snapshot(ctx, tid); len(snap) != 2 || snap[0].PlayerID != "bob" {
		t.Errorf("snapshot after TTL = %+v, want refreshed with bob first", snap)
	}
}

func TestCache_InvalidatedByTournamentChange(t *testing.T) {
	ctx := context.Background()
	set := newFakeOrderedSet()
	store := NewStore(set)
	clock := clockwork.NewFakeClock()
	cache := NewCache(store, clock, time.Minute, 5)

	oldID, newID := uuid.New(), uuid.New()
	store.UpsertIfBetter(ctx, oldID, player("alice", "Alice"), 100)
	store.UpsertIfBetter(ctx, newID, player("bob", "Bob"), 200)

	cache.Snapshot(ctx, oldID)

	// A rollover must never serve the previous tournament's snapshot, even
	// with a fresh TTL.
	snap := cache.Snapshot(ctx, newID)
	if len(snap) != 1 || snap[0].PlayerID != "bob" {
		t.Errorf("snapshot after rollover = %+v, want bob only", snap)
	}
}

// gatedOrderedSet can hold a Range call open so the test controls when a
// cache refresh completes.
type gatedOrderedSet struct {
	*fakeOrderedSet
	gateMu  sync.Mutex
	gated   bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedOrderedSet() *gatedOrderedSet {
	return &gatedOrderedSet{
		fakeOrderedSet: newFakeOrderedSet(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (g *gatedOrderedSet) gate() {
	g.gateMu.Lock()
	g.gated = true
	g.gateMu.Unlock()
}

func (g *gatedOrderedSet) Range(ctx context.Context, set string, n int64) ([]ScoredMember, error) {
	g.gateMu.Lock()
	gated := g.gated
	g.gateMu.Unlock()
	if gated {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.fakeOrderedSet.Range(ctx, set, n)
}

func TestCache_RefreshNeverBlocksConcurrentReads(t *testing.T) {
	ctx := context.Background()
	set := newGatedOrderedSet()
	store := NewStore(set)
	clock := clockwork.NewFakeClock()
	cache := NewCache(store, clock, 10*time.Second, 5)
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)
	cache.Snapshot(ctx, tid)

	// Expire the snapshot, then hold the next refresh open inside the store.
	clock.Advance(11 * time.Second)
	set.gate()

	refreshed := make(chan []models.RankingEntry)
	go func() { refreshed <- cache.Snapshot(ctx, tid) }()
	<-set.entered

	// While the refresh is stuck, a scoring response still gets an answer
	// immediately: the stale snapshot.
	stale := cache.Snapshot(ctx, tid)
	if len(stale) != 1 || stale[0].PlayerID != "alice" {
		t.Fatalf("snapshot during refresh = %+v, want stale alice", stale)
	}

	close(set.release)
	fresh := <-refreshed
	if len(fresh) != 1 || fresh[0].PlayerID != "alice" {
		t.Errorf("refreshed snapshot = %+v, want alice", fresh)
	}
}

func TestCache_DegradesOnStoreError(t *testing.T) {
	ctx := context.Background()
	set := newFakeOrderedSet()
	store := NewStore(set)
	clock := clockwork.NewFakeClock()
	cache := NewCache(store, clock, 10*time.Second, 5)
	tid := uuid.New()

	store.UpsertIfBetter(ctx, tid, player("alice", "Alice"), 100)
	cache.Snapshot(ctx, tid)

	set.fail(errors.New("connection refused"))
	clock.Advance(11 * time.Second)

	// Last known value survives a failed refresh.
	snap := cache.Snapshot(ctx, tid)
	if len(snap) != 1 || snap[0].PlayerID != "alice" {
		t.Errorf("snapshot during outage = %+v, want stale alice", snap)
	}

	// With no prior value for the id, the cache degrades to empty.
	cache.Invalidate()
	if snap = cache.Snapshot(ctx, tid); snap != nil {
		t.Errorf("snapshot with no fallback = %+v, want nil", snap)
	}
}

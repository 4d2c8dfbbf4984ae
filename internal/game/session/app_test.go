package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jkoski/splitsecond/internal/game/ranking"
	"github.com/jkoski/splitsecond/internal/game/ratelimit"
	"github.com/jkoski/splitsecond/internal/models"
)

type fakeResolver struct {
	current *models.Tournament
	target  int64
}

func (f *fakeResolver) ResolveCurrent(context.Context) *models.Tournament { return f.current }
func (f *fakeResolver) TargetFor(uuid.UUID) int64                         { return f.target }
func (f *fakeResolver) NewTarget() int64                                  { return f.target }

type fakeRankingStore struct {
	mu     sync.Mutex
	scores map[string]int64 // playerID -> best, single tournament
	err    error
	writes int
}

func newFakeRankingStore() *fakeRankingStore {
	return &fakeRankingStore{scores: make(map[string]int64)}
}

func (f *fakeRankingStore) UpsertIfBetter(_ context.Context, _ uuid.UUID, player models.Player, score int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if existing, ok := f.scores[player.ID]; ok && score >= existing {
		return false, nil
	}
	f.scores[player.ID] = score
	f.writes++
	return true, nil
}

func (f *fakeRankingStore) Rank(_ context.Context, _ uuid.UUID, playerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	score, ok := f.scores[playerID]
	if !ok {
		return 0, ranking.ErrNotRanked
	}
	var better []int64
	for _, s := range f.scores {
		if s < score {
			better = append(better, s)
		}
	}
	sort.Slice(better, func(i, j int) bool { return better[i] < better[j] })
	return int64(len(better)), nil
}

func (f *fakeRankingStore) Best(_ context.Context, _ uuid.UUID, playerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	score, ok := f.scores[playerID]
	if !ok {
		return 0, ranking.ErrNotRanked
	}
	return score, nil
}

type fakeSnapshotter struct{}

func (fakeSnapshotter) Snapshot(context.Context, uuid.UUID) []models.RankingEntry { return nil }

type fakeLimiter struct {
	denied map[ratelimit.Kind]bool
}

func (f *fakeLimiter) Allow(_ string, kind ratelimit.Kind) bool {
	return !f.denied[kind]
}

type fakeWallet struct {
	mu       sync.Mutex
	attempts int
	consumed int
}

func (f *fakeWallet) Consume(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts <= 0 {
		return ErrNoAttempts
	}
	f.attempts--
	f.consumed++
	return nil
}

func (f *fakeWallet) Refund(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return nil
}

type fakeVerifier struct{ err error }

func (f *fakeVerifier) Verify(_ context.Context, token string) (models.Player, error) {
	if f.err != nil {
		return models.Player{}, f.err
	}
	return models.Player{ID: "verified-" + token, DisplayName: "Verified", Verified: true}, nil
}

type harness struct {
	app      *App
	clock    *clockwork.FakeClock
	resolver *fakeResolver
	store    *fakeRankingStore
	limiter  *fakeLimiter
	wallet   *fakeWallet
}

func newHarness() *harness {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	resolver := &fakeResolver{
		current: &models.Tournament{
			ID:                  uuid.New(),
			Origin:              models.OriginRolling,
			Start:               clock.Now(),
			PlayDuration:        4 * time.Minute,
			LeaderboardDuration: time.Minute,
		},
		target: 5000,
	}
	store := newFakeRankingStore()
	limiter := &fakeLimiter{denied: map[ratelimit.Kind]bool{}}
	wallet := &fakeWallet{attempts: 3}
	app := NewApp(clock, NewRegistry(clock), resolver, store, fakeSnapshotter{}, limiter, wallet, &fakeVerifier{err: errors.New("no verifier")})
	return &harness{app: app, clock: clock, resolver: resolver, store: store, limiter: limiter, wallet: wallet}
}

func (h *harness) initTournament(t *testing.T, connID string) *InitResult {
	t.Helper()
	res, err := h.app.Init(context.Background(), connID, InitRequest{IdentityHint: connID, Mode: models.ModeTournament})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestApp_ExactMatchWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	if _, err := h.app.Start(ctx, "conn-1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(5000 * time.Millisecond)

	res, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Win || res.DiffMs != 0 {
		t.Errorf("win=%v diff=%d, want win=true diff=0", res.Win, res.DiffMs)
	}
	if res.ServerDurationMs != 5000 {
		t.Errorf("serverDuration = %d, want 5000", res.ServerDurationMs)
	}
	if !res.IsNewRecord {
		t.Error("first scored attempt should be a new record")
	}
	if res.Rank == nil || *res.Rank != 0 {
		t.Errorf("rank = %v, want 0", res.Rank)
	}
}

func TestApp_NearMissScores(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(5125 * time.Millisecond)

	res, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Win {
		t.Error("5125ms against a 5000ms target is not a win")
	}
	if res.DiffMs != 125 {
		t.Errorf("diff = %d, want 125", res.DiffMs)
	}
}

func TestApp_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(time.Second)

	first, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("first stop while RUNNING must produce a scored result")
	}

	// Every subsequent stop is a silent no-op: no result, no error, no write.
	writes := h.store.writes
	for i := 0; i < 3; i++ {
		res, err := h.app.Stop(ctx, "conn-1")
		if err != nil {
			t.Fatal(err)
		}
		if res != nil {
			t.Fatal("replayed stop must not produce a second result")
		}
	}
	if h.store.writes != writes {
		t.Error("replayed stop must not write to the ranking store")
	}
}

func TestApp_StopBeforeStartIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	res, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Error("stop before start must be a no-op")
	}
}

func TestApp_WorseScoreKeepsBest(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(5100 * time.Millisecond) // diff 100
	h.app.Stop(ctx, "conn-1")

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(5400 * time.Millisecond) // diff 400, worse

	res, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsNewRecord {
		t.Error("a worse score is not a new record")
	}
	if res.BestMs == nil || *res.BestMs != 100 {
		t.Errorf("best = %v, want 100", res.BestMs)
	}
	if res.Rank == nil {
		t.Error("rank must still be freshly queried after a non-improving stop")
	}
}

func TestApp_InitNoTournament(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.current = nil

	res, err := h.app.Init(ctx, "conn-1", InitRequest{IdentityHint: "alice", Mode: models.ModeTournament})
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoTournament {
		t.Fatal("init with no live tournament must say so")
	}
	if res.TargetMs != 0 {
		t.Error("no target may be issued without a tournament")
	}
	if _, err := h.app.Start(ctx, "conn-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("start without session = %v, want ErrNoSession", err)
	}
}

func TestApp_InitOverwritesPriorSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")
	h.app.Start(ctx, "conn-1")

	h.initTournament(t, "conn-1")
	sess := h.app.Session("conn-1")
	if sess.Status != models.SessionReady {
		t.Errorf("status after re-init = %s, want READY", sess.Status)
	}
}

func TestApp_StartGatedByWallet(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.wallet.attempts = 0
	h.initTournament(t, "conn-1")

	_, err := h.app.Start(ctx, "conn-1")
	if !errors.Is(err, ErrNoAttempts) {
		t.Fatalf("start with empty wallet = %v, want ErrNoAttempts", err)
	}
	sess := h.app.Session("conn-1")
	if sess.Status != models.SessionReady || !sess.ServerStart.IsZero() {
		t.Error("a denied start must perform no state change")
	}
}

func TestApp_DisconnectMidAttemptRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.app.Start(ctx, "conn-1")
	if h.wallet.attempts != 2 {
		t.Fatalf("attempts after start = %d, want 2", h.wallet.attempts)
	}

	// The attempt was still RUNNING, so the consumed attempt comes back.
	h.app.Remove("conn-1")
	if h.wallet.attempts != 3 {
		t.Errorf("attempts after mid-attempt disconnect = %d, want 3", h.wallet.attempts)
	}

	// A scored attempt is spent; disconnect after stop refunds nothing.
	h.initTournament(t, "conn-2")
	h.app.Start(ctx, "conn-2")
	h.clock.Advance(time.Second)
	h.app.Stop(ctx, "conn-2")
	h.app.Remove("conn-2")
	if h.wallet.attempts != 2 {
		t.Errorf("attempts after scored disconnect = %d, want 2", h.wallet.attempts)
	}

	// Practice sessions never touch the wallet either way.
	h.app.Init(ctx, "conn-3", InitRequest{IdentityHint: "carol", Mode: models.ModePractice})
	h.app.Start(ctx, "conn-3")
	h.app.Remove("conn-3")
	if h.wallet.attempts != 2 {
		t.Errorf("attempts after practice disconnect = %d, want 2", h.wallet.attempts)
	}
}

func TestApp_RateLimitedEventsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.limiter.denied[ratelimit.KindStart] = true
	if _, err := h.app.Start(ctx, "conn-1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("start = %v, want ErrRateLimited", err)
	}
	if sess := h.app.Session("conn-1"); sess.Status != models.SessionReady {
		t.Error("a rate-limited start must not change state")
	}

	h.limiter.denied[ratelimit.KindInit] = true
	if _, err := h.app.Init(ctx, "conn-2", InitRequest{Mode: models.ModeTournament}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("init = %v, want ErrRateLimited", err)
	}
}

func TestApp_ScoreWriteFailureIsNotFabricated(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.initTournament(t, "conn-1")

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(5050 * time.Millisecond)
	h.store.err = errors.New("store unreachable")

	res, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsNewRecord {
		t.Error("an unconfirmed write must not be reported as a record")
	}
	if res.Rank != nil {
		t.Error("no rank may be fabricated while the store is unreachable")
	}
	// The attempt itself is still scored from server time.
	if res.DiffMs != 50 {
		t.Errorf("diff = %d, want 50", res.DiffMs)
	}
}

func TestApp_PracticeNeverTouchesWalletOrRanking(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	res, err := h.app.Init(ctx, "conn-1", InitRequest{IdentityHint: "alice", Mode: models.ModePractice})
	if err != nil {
		t.Fatal(err)
	}
	if res.TargetMs != 5000 {
		t.Errorf("practice target = %d, want 5000", res.TargetMs)
	}

	h.app.Start(ctx, "conn-1")
	h.clock.Advance(5000 * time.Millisecond)
	stop, err := h.app.Stop(ctx, "conn-1")
	if err != nil {
		t.Fatal(err)
	}
	if !stop.Win {
		t.Error("practice attempts are scored the same way")
	}
	if h.wallet.consumed != 0 {
		t.Error("practice must not consume attempts")
	}
	if h.store.writes != 0 {
		t.Error("practice must not write to the ranking store")
	}
}

func TestApp_VerifiedIdentityPreferred(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	// Broken verifier falls back to the declared identity.
	res := h.initTournament(t, "conn-1")
	if res.Player.Verified {
		t.Error("fallback identity must not be marked verified")
	}

	app := NewApp(h.clock, NewRegistry(h.clock), h.resolver, h.store, fakeSnapshotter{}, h.limiter, h.wallet, &fakeVerifier{})
	res2, err := app.Init(ctx, "conn-2", InitRequest{IdentityHint: "alice", Token: "tok", Mode: models.ModeTournament})
	if err != nil {
		t.Fatal(err)
	}
	if !res2.Player.Verified || res2.Player.ID != "verified-tok" {
		t.Errorf("player = %+v, want verified identity", res2.Player)
	}
}

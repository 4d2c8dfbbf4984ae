package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Kind names the event class a budget applies to.
type Kind string

const (
	KindInit    Kind = "init"
	KindStart   Kind = "start"
	KindStop    Kind = "stop"
	KindDefault Kind = "default"
)

// Budget bounds how many events of one kind a connection may send inside a
// sliding window.
type Budget struct {
	Max    int
	Window time.Duration
}

// Budgets maps event kinds to their budgets. Kinds without an entry fall
// back to KindDefault.
type Budgets map[Kind]Budget

// DefaultBudgets is loose for init and tight for start/stop, which are the
// events rapid-retry abuse targets.
func DefaultBudgets() Budgets {
	return Budgets{
		KindInit:    {Max: 10, Window: time.Minute},
		KindStart:   {Max: 20, Window: time.Minute},
		KindStop:    {Max: 20, Window: time.Minute},
		KindDefault: {Max: 30, Window: time.Minute},
	}
}

type key struct {
	connID string
	kind   Kind
}

// Limiter is a sliding-window admission controller keyed by
// (connection id, event kind). A denied event is dropped, never
// disconnected; once the window slides past old events, admission resumes.
type Limiter struct {
	clock   clockwork.Clock
	budgets Budgets

	mu      sync.Mutex
	windows map[key][]time.Time
}

// NewLimiter creates a limiter with the given per-kind budgets.
func NewLimiter(clock clockwork.Clock, budgets Budgets) *Limiter {
	return &Limiter{
		clock:   clock,
		budgets: budgets,
		windows: make(map[key][]time.Time),
	}
}

// Allow reports whether the event is admitted and, if so, counts it.
func (l *Limiter) Allow(connID string, kind Kind) bool {
	budget, ok := l.budgets[kind]
	if !ok {
		budget = l.budgets[KindDefault]
	}
	if budget.Max <= 0 {
		return false
	}

	now := l.clock.Now()
	cutoff := now.Add(-budget.Window)
	k := key{connID: connID, kind: kind}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.windows[k]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= budget.Max {
		l.windows[k] = kept
		log.Debug().
			Str("conn_id", connID).
			Str("kind", string(kind)).
			Int("max", budget.Max).
			Msg("rate limit exceeded, dropping event")
		return false
	}

	l.windows[k] = append(kept, now)
	return true
}

// Forget drops all counters for a connection. Called on disconnect.
func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.windows {
		if k.connID == connID {
			delete(l.windows, k)
		}
	}
}

// Sweep clears every counter. Run periodically as a memory bound against
// counters left behind by ungraceful disconnects.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	cleared := len(l.windows)
	l.windows = make(map[key][]time.Time)
	l.mu.Unlock()

	if cleared > 0 {
		log.Debug().Int("cleared", cleared).Msg("rate limit sweep")
	}
}

// RunSweeper clears counters on a fixed interval until ctx is done.
func (l *Limiter) RunSweeper(done <-chan struct{}, interval time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			l.Sweep()
		}
	}
}

package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/models"
)

type entry struct {
	session *models.Session
	touched time.Time
}

// Registry is the arena of live sessions keyed by connection id. Sessions
// are removed explicitly on disconnect; Sweep is the secondary bound against
// leaks from ungraceful disconnects.
type Registry struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty session registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:    clock,
		sessions: make(map[string]*entry),
	}
}

// Put stores a session, overwriting any prior one for the connection.
func (r *Registry) Put(s *models.Session) {
	r.mu.Lock()
	r.sessions[s.ConnID] = &entry{session: s, touched: r.clock.Now()}
	r.mu.Unlock()
}

// Get returns the connection's session, or nil, refreshing its idle stamp.
// The returned pointer is mutated only by the connection's own event
// goroutine.
func (r *Registry) Get(connID string) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	e.touched = r.clock.Now()
	return e.session
}

// Remove drops the connection's session. Called on disconnect.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions untouched for longer than maxIdle.
func (r *Registry) Sweep(maxIdle time.Duration) {
	cutoff := r.clock.Now().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for connID, e := range r.sessions {
		if e.touched.Before(cutoff) {
			delete(r.sessions, connID)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("session sweep")
	}
}

// RunSweeper sweeps on a fixed interval until done closes.
func (r *Registry) RunSweeper(done <-chan struct{}, interval, maxIdle time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			r.Sweep(maxIdle)
		}
	}
}

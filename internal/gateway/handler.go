package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/game/events"
	"github.com/jkoski/splitsecond/internal/game/session"
)

// ElapsedPushInterval is the advisory live-timer cadence. The pushed value is
// display-only; scoring uses server timestamps exclusively.
const ElapsedPushInterval = 100 * time.Millisecond

// Forgetter releases per-connection rate-limit state on disconnect.
type Forgetter interface {
	Forget(connID string)
}

// SessionHandler dispatches client events to the session state machine and
// manages each connection's advisory elapsed-time pusher.
type SessionHandler struct {
	app     *session.App
	limiter Forgetter

	mu      sync.Mutex
	pushers map[string]chan struct{}
}

// NewSessionHandler wires the gateway dispatch layer.
func NewSessionHandler(app *session.App, limiter Forgetter) *SessionHandler {
	return &SessionHandler{
		app:     app,
		limiter: limiter,
		pushers: make(map[string]chan struct{}),
	}
}

// HandleMessage processes one inbound frame. Rate-limited events are dropped
// silently; the client learns nothing it could use to probe the window.
func (h *SessionHandler) HandleMessage(ctx context.Context, conn *Connection, data []byte) {
	event, ok := ParseClientEvent(data)
	if !ok {
		conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
			Code:    ErrCodeBadRequest,
			Message: "unrecognized event",
		}))
		return
	}

	switch event.Type {
	case EventTypeInit:
		h.handleInit(ctx, conn, event.Payload)
	case EventTypeStart:
		h.handleStart(ctx, conn)
	case EventTypeStop:
		h.handleStop(ctx, conn)
	}
}

// HandleDisconnect tears down everything keyed by the connection.
func (h *SessionHandler) HandleDisconnect(connID string) {
	h.stopPusher(connID)
	h.app.Remove(connID)
	h.limiter.Forget(connID)
}

func (h *SessionHandler) handleInit(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req session.InitRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
				Code:    ErrCodeBadRequest,
				Message: "malformed init payload",
			}))
			return
		}
	}

	// A re-init discards the previous session, so any running pusher dies too.
	h.stopPusher(conn.ID)

	result, err := h.app.Init(ctx, conn.ID, req)
	if err != nil {
		h.sendError(conn, err)
		return
	}
	conn.SendEvent(NewServerEvent(EventTypeInitResult, result))
}

func (h *SessionHandler) handleStart(ctx context.Context, conn *Connection) {
	sess, err := h.app.Start(ctx, conn.ID)
	if err != nil {
		h.sendError(conn, err)
		return
	}

	h.startPusher(conn, sess.ServerStart)
	conn.SendEvent(NewServerEvent(EventTypeStartAck, nil))
}

func (h *SessionHandler) handleStop(ctx context.Context, conn *Connection) {
	result, err := h.app.Stop(ctx, conn.ID)
	if err != nil {
		// A rate-limited stop is dropped wholesale: the attempt stays
		// RUNNING and its pusher keeps going.
		if !errors.Is(err, session.ErrRateLimited) {
			h.stopPusher(conn.ID)
		}
		h.sendError(conn, err)
		return
	}

	h.stopPusher(conn.ID)
	if result == nil {
		// stop with no running attempt is a silent no-op
		return
	}
	conn.SendEvent(NewServerEvent(EventTypeStopResult, result))
}

func (h *SessionHandler) sendError(conn *Connection, err error) {
	switch {
	case errors.Is(err, session.ErrRateLimited):
		log.Debug().Str("connection_id", conn.ID).Msg("event dropped by rate limiter")
	case errors.Is(err, session.ErrNoSession):
		conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
			Code:    ErrCodeNoSession,
			Message: "init a session first",
		}))
	case errors.Is(err, session.ErrNoAttempts):
		conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
			Code:    ErrCodeNoAttempts,
			Message: "no attempts left",
		}))
	case errors.Is(err, session.ErrAttemptInProgress):
		conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
			Code:    ErrCodeAttemptInProgress,
			Message: "attempt already running",
		}))
	default:
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("session event failed")
		conn.SendEvent(NewServerEvent(EventTypeError, ErrorPayload{
			Code:    ErrCodeInternal,
			Message: "internal error",
		}))
	}
}

// startPusher begins the ~10 Hz elapsed stream for a freshly started attempt.
// It captures the server start timestamp once; the stream carries no state a
// client could feed back into scoring.
func (h *SessionHandler) startPusher(conn *Connection, serverStart time.Time) {
	stop := make(chan struct{})

	h.mu.Lock()
	if prev, ok := h.pushers[conn.ID]; ok {
		close(prev)
	}
	h.pushers[conn.ID] = stop
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(ElapsedPushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				conn.SendEvent(NewServerEvent(EventTypeElapsed, events.ElapsedPayload{
					ElapsedMs: now.Sub(serverStart).Milliseconds(),
					PushedAt:  now,
				}))
			}
		}
	}()
}

func (h *SessionHandler) stopPusher(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stop, ok := h.pushers[connID]; ok {
		close(stop)
		delete(h.pushers, connID)
	}
}

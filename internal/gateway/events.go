package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates messages on the WebSocket.
type EventType string

// Inbound client events.
const (
	EventTypeInit  EventType = "init"
	EventTypeStart EventType = "start"
	EventTypeStop  EventType = "stop"
)

// Outbound server events.
const (
	EventTypeInitResult      EventType = "init_result"
	EventTypeStartAck        EventType = "start_ack"
	EventTypeStopResult      EventType = "stop_result"
	EventTypeElapsed         EventType = "elapsed"
	EventTypePhaseChanged    EventType = "phase_changed"
	EventTypeTournamentEnded EventType = "tournament_ended"
	EventTypeError           EventType = "error"
)

// ClientEvent is the envelope for everything a client sends.
type ClientEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the envelope for everything the server sends.
type ServerEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent to clients.
const (
	ErrCodeNoSession         = "no_session"
	ErrCodeNoAttempts        = "no_attempts"
	ErrCodeAttemptInProgress = "attempt_in_progress"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeInternal          = "internal"
)

// NewServerEvent wraps a payload in the outbound envelope. A payload that
// fails to marshal yields an event with empty data rather than no event.
func NewServerEvent(eventType EventType, payload any) ServerEvent {
	event := ServerEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
	if payload == nil {
		return event
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return event
	}
	event.Data = data
	return event
}

// ParseClientEvent decodes an inbound frame and validates its type.
func ParseClientEvent(data []byte) (ClientEvent, bool) {
	var event ClientEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ClientEvent{}, false
	}
	switch event.Type {
	case EventTypeInit, EventTypeStart, EventTypeStop:
		return event, true
	default:
		return ClientEvent{}, false
	}
}

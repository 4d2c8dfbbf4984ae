package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/broadcast"
)

// EventConsumer subscribes to the lifecycle bus and fans incoming broadcasts
// out to WebSocket clients. Plain core NATS: a broadcast that arrives while
// the gateway is down is simply lost, and clients recover the current phase
// from their next init or stop response.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	sub               *nats.Subscription
}

// NewEventConsumer wraps an established NATS connection.
func NewEventConsumer(cm *ConnectionManager, nc *nats.Conn) *EventConsumer {
	return &EventConsumer{
		connectionManager: cm,
		nc:                nc,
	}
}

// Start subscribes to the lifecycle subjects.
func (ec *EventConsumer) Start() error {
	sub, err := ec.nc.Subscribe(broadcast.SubjectFilter, func(msg *nats.Msg) {
		if err := ec.processMessage(msg); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Msg("failed to process bus event")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", broadcast.SubjectFilter, err)
	}

	ec.sub = sub
	log.Info().Str("subject", broadcast.SubjectFilter).Msg("event consumer subscribed")
	return nil
}

func (ec *EventConsumer) processMessage(msg *nats.Msg) error {
	var envelope broadcast.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	var wsType EventType
	switch envelope.EventType {
	case broadcast.EventTypePhaseChanged:
		wsType = EventTypePhaseChanged
	case broadcast.EventTypeEnded:
		wsType = EventTypeTournamentEnded
	default:
		return fmt.Errorf("unknown event type: %s", envelope.EventType)
	}

	ec.connectionManager.Broadcast(ServerEvent{
		ID:        envelope.EventID,
		Type:      wsType,
		Timestamp: envelope.Timestamp,
		Data:      envelope.Payload,
	})

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("tournament_id", envelope.TournamentID).
		Str("event_type", envelope.EventType).
		Msg("bus event broadcasted to WebSocket clients")
	return nil
}

// Stop drops the subscription. The shared NATS connection is closed by its
// owner.
func (ec *EventConsumer) Stop() {
	if ec.sub != nil {
		if err := ec.sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe event consumer")
		}
	}
}

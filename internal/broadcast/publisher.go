package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/jkoski/splitsecond/internal/game/events"
)

// Subjects the coordinator publishes on and the gateway subscribes to.
const (
	SubjectPrefix         = "contest.events"
	SubjectFilter         = SubjectPrefix + ".>"
	EventTypePhaseChanged = "PhaseChanged"
	EventTypeEnded        = "TournamentEnded"

	natsMaxReconnects = -1 // infinite
	natsReconnectWait = 2 * time.Second
)

// Envelope is the wire format on the bus. Delivery is best-effort; receivers
// are idempotent on duplicates.
type Envelope struct {
	EventID      string          `json:"eventId"`
	EventType    string          `json:"eventType"`
	TournamentID string          `json:"tournamentId"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

// Connect dials NATS with reconnect handling.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Publisher emits lifecycle broadcasts onto the bus. Publish failures are
// logged and swallowed: a lost broadcast only delays what clients learn on
// their next response anyway.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an established NATS connection.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// PublishPhaseChanged announces a phase transition.
func (p *Publisher) PublishPhaseChanged(payload events.PhaseChangedPayload) {
	p.publish(EventTypePhaseChanged, payload.TournamentID, payload)
}

// PublishTournamentEnded announces a finished tournament with its winners.
func (p *Publisher) PublishTournamentEnded(payload events.TournamentEndedPayload) {
	p.publish(EventTypeEnded, payload.TournamentID, payload)
}

func (p *Publisher) publish(eventType, tournamentID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal broadcast payload")
		return
	}
	envelope, err := json.Marshal(Envelope{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		TournamentID: tournamentID,
		Timestamp:    time.Now(),
		Payload:      data,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal broadcast envelope")
		return
	}

	subject := SubjectPrefix + "." + eventType
	if err := p.nc.Publish(subject, envelope); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("broadcast publish failed")
		return
	}
	log.Debug().Str("subject", subject).Str("tournament_id", tournamentID).Msg("broadcast published")
}

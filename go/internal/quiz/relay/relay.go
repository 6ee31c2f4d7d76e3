package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/quiz/hub"
	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
)

// Message is one event ready to leave the process
type Message struct {
	ID        string
	Subject   string
	EventType protocol.EventType
	Data      []byte
}

// Publisher delivers relay messages to an external broker
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// EventSource hands out subscriptions to the server event stream
type EventSource interface {
	Subscribe() *hub.Subscription[protocol.Event]
}

// envelope wraps an encoded event with delivery metadata
type envelope struct {
	EventID   string             `json:"eventId"`
	EventType protocol.EventType `json:"eventType"`
	Timestamp time.Time          `json:"timestamp"`
	Payload   json.RawMessage    `json:"payload"`
}

// Relay mirrors every session event to a Publisher. It subscribes to the hub
// like any client, so it sees the same stream and the same lag behaviour.
type Relay struct {
	events        EventSource
	publisher     Publisher
	subjectPrefix string
	clock         clockwork.Clock
}

// New creates a relay publishing under subjectPrefix.
func New(events EventSource, publisher Publisher, subjectPrefix string, clock clockwork.Clock) *Relay {
	return &Relay{
		events:        events,
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
		clock:         clock,
	}
}

// Run relays events until the hub closes or ctx is done. Failed publishes are
// logged and counted; they do not stop the relay.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.events.Subscribe()
	defer sub.Close()

	log.Info().Str("subject_prefix", r.subjectPrefix).Msg("event relay started")

	for {
		event, err := sub.Recv(ctx)
		if err != nil {
			var lagErr *hub.LagError
			switch {
			case errors.As(err, &lagErr):
				log.Warn().Uint64("missed", lagErr.Missed).Msg("event relay fell behind, events skipped")
				continue
			case errors.Is(err, hub.ErrClosed), errors.Is(err, context.Canceled):
				log.Info().Msg("event relay stopped")
				return nil
			default:
				return fmt.Errorf("receive event: %w", err)
			}
		}

		msg, err := r.message(event)
		if err != nil {
			metrics.RelayPublishes.WithLabelValues(metrics.StatusFailure).Inc()
			log.Error().Err(err).Str("event_type", string(event.EventType())).Msg("failed to build relay message")
			continue
		}

		if err := r.publisher.Publish(ctx, msg); err != nil {
			metrics.RelayPublishes.WithLabelValues(metrics.StatusFailure).Inc()
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Str("event_id", msg.ID).
				Msg("failed to relay event")
			continue
		}
		metrics.RelayPublishes.WithLabelValues(metrics.StatusSuccess).Inc()
	}
}

func (r *Relay) message(event protocol.Event) (Message, error) {
	payload, err := protocol.Encode(event)
	if err != nil {
		return Message{}, err
	}

	id := uuid.New().String()
	data, err := json.Marshal(envelope{
		EventID:   id,
		EventType: event.EventType(),
		Timestamp: r.clock.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return Message{
		ID:        id,
		Subject:   fmt.Sprintf("%s.%s", r.subjectPrefix, event.EventType()),
		EventType: event.EventType(),
		Data:      data,
	}, nil
}

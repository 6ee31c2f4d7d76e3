package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/livequiz/go/internal/quiz/hub"
	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
)

// EventSource hands out subscriptions to the server event stream
type EventSource interface {
	Subscribe() *hub.Subscription[protocol.Event]
	SubscriberCount() int
}

// MessageApplier handles a decoded client message
type MessageApplier interface {
	Apply(msg protocol.Message)
}

// Connection is one client attached to the quiz session
type Connection struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	transport Transport
	events    EventSource
	applier   MessageApplier
}

// NewConnection binds a transport to the event stream and the message applier.
func NewConnection(id, remoteAddr string, transport Transport, events EventSource, applier MessageApplier) *Connection {
	return &Connection{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		transport:   transport,
		events:      events,
		applier:     applier,
	}
}

// Serve subscribes to the event stream and runs the outbound relay and the
// inbound reader until either stops. The other is then stopped promptly, the
// transport is closed and the subscription released.
//
// A peer close, a closed hub or a cancelled ctx end the connection normally
// and yield a nil error.
func (c *Connection) Serve(ctx context.Context) error {
	sub := c.events.Subscribe()
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)

	// closing the transport is what unblocks a pending read
	stop := context.AfterFunc(gctx, func() {
		_ = c.transport.Close()
	})
	defer stop()

	g.Go(func() error {
		return c.relay(gctx, sub)
	})
	g.Go(func() error {
		return c.read(gctx)
	})

	err := g.Wait()
	_ = c.transport.Close()

	if isNormalClose(err) {
		return nil
	}
	return err
}

// relay writes every received event to the transport. Missed events are
// logged and skipped.
func (c *Connection) relay(ctx context.Context, sub *hub.Subscription[protocol.Event]) error {
	for {
		event, err := sub.Recv(ctx)
		if err != nil {
			var lagErr *hub.LagError
			if errors.As(err, &lagErr) {
				log.Warn().
					Str("connection_id", c.ID).
					Uint64("missed", lagErr.Missed).
					Msg("client fell behind, events skipped")
				continue
			}
			return fmt.Errorf("receive event: %w", err)
		}

		data, err := protocol.Encode(event)
		if err != nil {
			log.Error().
				Err(err).
				Str("event_type", string(event.EventType())).
				Msg("failed to encode event")
			continue
		}

		if err := c.transport.WriteText(ctx, data); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
}

// read decodes inbound frames and applies them. Frames that fail to decode are
// dropped without telling the client.
func (c *Connection) read(ctx context.Context) error {
	for {
		data, err := c.transport.ReadText(ctx)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			metrics.InboundMessages.WithLabelValues("invalid", metrics.ResultDropped).Inc()
			log.Debug().
				Err(err).
				Str("connection_id", c.ID).
				Int("size", len(data)).
				Msg("dropping malformed frame")
			continue
		}

		c.applier.Apply(msg)
		metrics.InboundMessages.WithLabelValues(string(msg.MessageType()), metrics.ResultApplied).Inc()
	}
}

func isNormalClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, hub.ErrClosed) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, context.Canceled)
}

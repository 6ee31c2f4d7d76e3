package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrTransportClosed is returned by a transport after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport is an upgraded, framed, bidirectional text connection.
//
// ReadText and WriteText may be called concurrently with each other, but
// each must only be called from one goroutine at a time. Close unblocks a
// pending read or write.
type Transport interface {
	ReadText(ctx context.Context) ([]byte, error)
	WriteText(ctx context.Context, data []byte) error
	Close() error
}

// TransportConfig holds per-connection websocket settings
type TransportConfig struct {
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	// PongWait bounds the silence tolerated between pongs. Zero disables read deadlines.
	PongWait time.Duration
}

// wsTransport adapts a gorilla websocket connection to Transport and keeps it
// alive with periodic pings.
type wsTransport struct {
	conn   *websocket.Conn
	clock  clockwork.Clock
	config TransportConfig

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport wraps conn and starts its ping loop. The caller owns
// the returned transport and must Close it.
func NewWebSocketTransport(conn *websocket.Conn, config TransportConfig, clock clockwork.Clock) Transport {
	t := &wsTransport{
		conn:   conn,
		clock:  clock,
		config: config,
		done:   make(chan struct{}),
	}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	t.refreshReadDeadline()
	conn.SetPongHandler(func(string) error {
		t.refreshReadDeadline()
		return nil
	})

	if config.PingInterval > 0 {
		t.wg.Add(1)
		go t.keepAlive()
	}
	return t
}

// ReadText returns the next text frame. Binary frames are skipped. A normal
// close by the peer is reported as io.EOF. ctx is only checked between
// frames; Close interrupts a blocked read.
func (t *wsTransport) ReadText(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return nil, ErrTransportClosed
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return nil, io.EOF
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		t.refreshReadDeadline()
		return data, nil
	}
}

// WriteText writes data as one text frame within the configured write timeout.
func (t *wsTransport) WriteText(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.isClosed() {
		return ErrTransportClosed
	}

	if err := t.conn.SetWriteDeadline(t.writeDeadline(ctx)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, stops the ping loop and closes the connection.
// Safe to call more than once.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, t.clock.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// keepAlive pings the peer until the transport closes. Control frames may be
// written concurrently with WriteText.
func (t *wsTransport) keepAlive() {
	defer t.wg.Done()

	ticker := t.clock.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.Chan():
			deadline := t.clock.Now().Add(t.config.WriteTimeout)
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

func (t *wsTransport) refreshReadDeadline() {
	if t.config.PongWait <= 0 {
		return
	}
	_ = t.conn.SetReadDeadline(t.clock.Now().Add(t.config.PongWait))
}

func (t *wsTransport) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if t.config.WriteTimeout > 0 {
		deadline = t.clock.Now().Add(t.config.WriteTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

func (t *wsTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

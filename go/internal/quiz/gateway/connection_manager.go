package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
)

// ErrManagerClosed is returned for connections offered after CloseAll.
var ErrManagerClosed = errors.New("connection manager closed")

// ConnectionManager upgrades websocket requests and tracks live connections
type ConnectionManager struct {
	// mu guards connections and closed; wg.Add only happens under mu while
	// closed is false
	connections map[string]*Connection
	closed      bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	events  EventSource
	applier MessageApplier

	// ctx is cancelled by CloseAll to stop every connection
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	Transport       TransportConfig
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// ConnectionStats is the payload of the stats endpoint
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	HubSubscribers   int `json:"hub_subscribers"`
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Transport: TransportConfig{
			MaxMessageSize: 1 << 20,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager serving clients from events
// and handing their messages to applier.
func NewConnectionManager(config ConnectionConfig, events EventSource, applier MessageApplier, clock clockwork.Clock) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		clock:   clock,
		events:  events,
		applier: applier,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// UpgradeConnection upgrades the request and serves the connection until it
// ends. It blocks for the lifetime of the connection.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	if cm.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return ErrManagerClosed
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	transport := NewWebSocketTransport(conn, cm.config.Transport, cm.clock)
	return cm.Serve(transport, r.RemoteAddr)
}

// Serve runs a connection over an already upgraded transport until it ends.
// After CloseAll the transport is closed and ErrManagerClosed returned.
func (cm *ConnectionManager) Serve(transport Transport, remoteAddr string) error {
	connection := NewConnection(uuid.New().String(), remoteAddr, transport, cm.events, cm.applier)

	if !cm.registerConnection(connection) {
		_ = transport.Close()
		return ErrManagerClosed
	}
	defer cm.wg.Done()
	defer cm.unregisterConnection(connection)

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", remoteAddr).
		Msg("WebSocket connection established")

	if err := connection.Serve(cm.ctx); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", connection.ID).
			Msg("WebSocket connection ended with error")
	}
	return nil
}

// CloseAll stops every connection and waits for them to finish. Later
// upgrade attempts are refused.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	cm.closed = true
	cm.mu.Unlock()

	cm.cancel()
	cm.wg.Wait()
	log.Info().Msg("all WebSocket connections closed")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	return ConnectionStats{
		TotalConnections: total,
		HubSubscribers:   cm.events.SubscriberCount(),
	}
}

func (cm *ConnectionManager) isClosed() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.closed
}

// registerConnection tracks conn and adds it to wg. It reports false once
// CloseAll has started.
func (cm *ConnectionManager) registerConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return false
	}
	cm.wg.Add(1)
	cm.connections[conn.ID] = conn
	metrics.WebSocketConnectionsCurrent.Inc()
	metrics.WebSocketConnectionsTotal.Inc()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
	return true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn.ID]; !exists {
		return
	}
	delete(cm.connections, conn.ID)
	metrics.WebSocketConnectionsCurrent.Dec()

	log.Info().
		Str("connection_id", conn.ID).
		Dur("duration", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

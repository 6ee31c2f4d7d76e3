package gateway

import (
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/livequiz/go/internal/quiz/hub"
	"github.com/mcdev12/livequiz/go/internal/quiz/processor"
	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// Service is the quiz gateway: it owns the session store and the event hub and
// serves websocket clients and the HTTP API on top of them.
type Service struct {
	store     *session.Store
	events    *hub.Hub[protocol.Event]
	processor *processor.Processor

	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler

	allowedOrigins []string
}

// Config holds configuration for the quiz gateway
type Config struct {
	ConnectionConfig ConnectionConfig
	HubCapacity      int
	// AllowedOrigins applies to CORS and to websocket upgrades. "*" allows any origin.
	AllowedOrigins []string
	Clock          clockwork.Clock
}

// DefaultConfig returns default configuration for the quiz gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		HubCapacity:      hub.DefaultCapacity,
		AllowedOrigins:   []string{"*"},
		Clock:            clockwork.NewRealClock(),
	}
}

// NewService creates a gateway with a fresh session. recorder may be nil.
func NewService(config Config, recorder processor.AnswerRecorder) *Service {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	config.ConnectionConfig.CheckOrigin = originChecker(config.AllowedOrigins)

	store := session.NewStore()
	events := hub.New[protocol.Event]("session", config.HubCapacity)
	proc := processor.New(store, events, recorder)

	connectionManager := NewConnectionManager(config.ConnectionConfig, events, proc, config.Clock)

	return &Service{
		store:             store,
		events:            events,
		processor:         proc,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(store),
		allowedOrigins:    config.AllowedOrigins,
	}
}

// Store returns the session store
func (s *Service) Store() *session.Store {
	return s.store
}

// Events returns the hub every state change is published on
func (s *Service) Events() *hub.Hub[protocol.Event] {
	return s.events
}

// Processor returns the message processor shared by all connections
func (s *Service) Processor() *processor.Processor {
	return s.processor
}

// RegisterRoutes registers the websocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Msg("quiz gateway routes registered")
}

// Handler returns the full HTTP handler: routes wrapped with CORS and
// served over HTTP/1.1 or cleartext HTTP/2.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: s.allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Stop closes every client connection and then the event hub, which ends any
// remaining subscribers such as the relay.
func (s *Service) Stop() {
	s.connectionManager.CloseAll()
	s.events.Close()
	log.Info().Msg("quiz gateway service stopped")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

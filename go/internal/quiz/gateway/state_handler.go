package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// StateProvider returns a consistent copy of the session state
type StateProvider interface {
	Snapshot() session.Snapshot
}

// SessionStateResponse represents the complete state of the session
type SessionStateResponse struct {
	Slide     uint32         `json:"slide"`
	Show      bool           `json:"show"`
	Language  protocol.Tally `json:"language"`
	Formality protocol.Tally `json:"formality"`
	Exercises protocol.Tally `json:"exercises"`
}

// StateHandler handles HTTP requests for session state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetSessionState handles GET /api/session/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.stateProvider.Snapshot()
	results := protocol.ResultsFromSnapshot(snap)
	response := SessionStateResponse{
		Slide:     snap.CurrentSlide,
		Show:      results.Show,
		Language:  results.Language,
		Formality: results.Formality,
		Exercises: results.Exercises,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode session state")
	}
}

// RegisterStateRoutes registers state routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/state", h.HandleGetSessionState)
}

package httpapi

import (
	"net/http"

	"github.com/ent0n29/mbtivoice/internal/observability"
)

type perfResponse struct {
	observability.TurnStageSnapshot
	ActiveSessions int `json:"active_sessions"`
}

// handlePerfLatency reports the rolling stage window; nil metrics yield an empty window.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, perfResponse{
		TurnStageSnapshot: s.metrics.SnapshotTurnStages(),
		ActiveSessions:    s.sessions.ActiveCount(),
	})
}

func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetTurnStages()
	w.WriteHeader(http.StatusNoContent)
}

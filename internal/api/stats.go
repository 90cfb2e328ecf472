package api

import (
	"net/http"

	"github.com/seantiz/tsunami/internal/model"
)

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByState       map[string]int `json:"by_state"`
	ByTemplate    map[string]int `json:"by_template"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRunStats(r.Context())
	if err != nil {
		s.logger.Error("get run stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	// Every lifecycle state is reported, zero counts included.
	byState := make(map[string]int, len(model.States))
	for _, state := range model.States {
		byState[state] = stats.CountByState[state]
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByState:       byState,
		ByTemplate:    stats.CountByTemplate,
		AvgDurationMS: stats.AvgDurationMS,
	})
}

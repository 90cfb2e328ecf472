package api

import (
	"net/http"
)

type healthResponse struct {
	Status    string `json:"status"`
	Templates int    `json:"templates"`
}

// handleHealthz reports liveness and how many templates are loaded.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Templates: len(s.templates.List()),
	})
}

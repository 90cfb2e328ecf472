package api

import (
	"net/http"
	"strconv"

	"github.com/seantiz/tsunami/internal/model"
)

const (
	defaultLedgerLimit = 20
	maxLedgerLimit     = 100
)

// ledgerResponse is one page of run ledger records, failed runs included.
type ledgerResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultLedgerLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxLedgerLimit {
		limit = defaultLedgerLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list ledger", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, ledgerResponse{Runs: runs, Total: total, Limit: limit, Offset: offset})
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}

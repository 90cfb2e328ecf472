package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/pipeline"
)

const maxBodySize = 1 << 20 // 1 MB

// simulateRequest is the JSON body for POST /api/simulate. Pointers
// distinguish a missing coordinate from zero.
type simulateRequest struct {
	Lon      *float64      `json:"lon"`
	Lat      *float64      `json:"lat"`
	Extent   *model.Extent `json:"extent"`
	Template string        `json:"template"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Lon == nil || req.Lat == nil {
		s.writeError(w, http.StatusBadRequest, "lon and lat are required")
		return
	}
	if req.Extent == nil {
		s.writeError(w, http.StatusBadRequest, "extent is required")
		return
	}
	if req.Template == "" {
		s.writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	// The run outlives the server's write timeout and a client disconnect.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline", "error", err)
	}
	ctx := context.WithoutCancel(r.Context())

	res, err := s.runner.Run(ctx, pipeline.Request{
		TemplateID: req.Template,
		Lon:        *req.Lon,
		Lat:        *req.Lat,
		Extent:     *req.Extent,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("simulate", "template", req.Template, "error", err)
		}
		s.writeError(w, status, err.Error())
		return
	}

	if res.Frames == nil {
		res.Frames = []model.Frame{}
	}
	s.writeJSON(w, http.StatusOK, res)
}

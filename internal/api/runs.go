package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/tsunami/internal/catalog"
	"github.com/seantiz/tsunami/internal/frames"
	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/store"
)

type templatesResponse struct {
	Templates []catalog.Summary `json:"templates"`
}

// runMeta is the ledger data attached to a listed run.
type runMeta struct {
	Template  string     `json:"template,omitempty"`
	State     string     `json:"state,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type runListing struct {
	RunID      string  `json:"run_id"`
	FrameCount int     `json:"n_frames"`
	Meta       runMeta `json:"meta"`
}

type runsResponse struct {
	Runs []runListing `json:"runs"`
}

type summaryResponse struct {
	RunID  string        `json:"run_id"`
	Frames []model.Frame `json:"frames"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, templatesResponse{Templates: s.templates.List()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.workspace.ListRuns()
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	runs := make([]runListing, 0, len(summaries))
	for _, sum := range summaries {
		item := runListing{RunID: sum.RunID, FrameCount: sum.FrameCount}
		rec, err := s.store.GetRun(r.Context(), sum.RunID)
		switch {
		case err == nil:
			created := rec.CreatedAt
			item.Meta = runMeta{Template: rec.TemplateID, State: rec.State, CreatedAt: &created}
		case !errors.Is(err, store.ErrNotFound):
			s.logger.Warn("lookup run metadata", "run_id", sum.RunID, "error", err)
		}
		runs = append(runs, item)
	}

	s.writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	rc, err := s.workspace.Lookup(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := os.Stat(rc.PlotDir)
	if err != nil || !info.IsDir() {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	index, err := frames.Index(rc.OutDir, rc.PlotDir)
	if err != nil {
		if index == nil {
			s.logger.Error("index frames", "run_id", rc.RunID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to index frames")
			return
		}
		s.logger.Warn("frame times partially unavailable", "run_id", rc.RunID, "error", err)
	}

	s.writeJSON(w, http.StatusOK, summaryResponse{RunID: rc.RunID, Frames: index})
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	rc, err := s.workspace.Lookup(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "filename")
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	f, err := os.Open(filepath.Join(rc.PlotDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("open plot", "run_id", rc.RunID, "file", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		s.writeError(w, http.StatusNotFound, "no index page configured")
		return
	}
	path := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, http.StatusNotFound, "index.html not found")
		return
	}
	http.ServeFile(w, r, path)
}

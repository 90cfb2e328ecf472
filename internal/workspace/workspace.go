// Package workspace allocates the per-run directory trees under a workspace
// root and lists the runs found there.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/seantiz/tsunami/internal/frames"
	"github.com/seantiz/tsunami/internal/model"
)

// Subdirectory names inside a run directory.
const (
	OutputDir = "_output"
	PlotsDir  = "_plots"
	TopoDir   = "topo"
)

// maxAllocAttempts bounds collision retries when two runs of one template
// start within the same second.
const maxAllocAttempts = 5

// RunContext holds the paths owned by a single run.
type RunContext struct {
	RunID   string `json:"run_id"`
	RunDir  string `json:"run_dir"`
	OutDir  string `json:"outdir"`
	PlotDir string `json:"plotdir"`
	TopoDir string `json:"topodir"`
}

// RunSummary is a run visible in the listing.
type RunSummary struct {
	RunID      string `json:"run_id"`
	FrameCount int    `json:"n_frames"`
}

// Workspace manages run directories under a root.
type Workspace struct {
	root   string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithClock overrides the clock used to stamp run ids.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// New creates a workspace rooted at root.
func New(root string, logger *slog.Logger, opts ...Option) *Workspace {
	w := &Workspace{
		root:   root,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Allocate creates a fresh run directory for templateID along with its output,
// plot and topo subdirectories. The run directory is created exclusively: if
// another run already holds the canonical id, a ULID suffix is appended.
func (w *Workspace) Allocate(templateID string) (RunContext, error) {
	if !validName(templateID) {
		return RunContext{}, fmt.Errorf("%w: template id %q is not a valid path element", model.ErrWorkspace, templateID)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return RunContext{}, fmt.Errorf("%w: create workspace root: %v", model.ErrWorkspace, err)
	}

	runID := model.NewRunID(w.now(), templateID)
	var rc RunContext
	for attempt := 0; ; attempt++ {
		rc = w.Context(runID)
		err := os.Mkdir(rc.RunDir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt+1 >= maxAllocAttempts {
			return RunContext{}, fmt.Errorf("%w: create run dir %s: %v", model.ErrWorkspace, rc.RunDir, err)
		}
		w.logger.Warn("run id collision", "run_id", runID)
		runID = model.DisambiguateRunID(model.NewRunID(w.now(), templateID))
	}

	for _, dir := range []string{rc.OutDir, rc.PlotDir, rc.TopoDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return RunContext{}, fmt.Errorf("%w: create %s: %v", model.ErrWorkspace, dir, err)
		}
	}

	w.logger.Info("run allocated", "run_id", rc.RunID, "run_dir", rc.RunDir)
	return rc, nil
}

// Context returns the paths for runID without touching the filesystem.
func (w *Workspace) Context(runID string) RunContext {
	dir := filepath.Join(w.root, runID)
	return RunContext{
		RunID:   runID,
		RunDir:  dir,
		OutDir:  filepath.Join(dir, OutputDir),
		PlotDir: filepath.Join(dir, PlotsDir),
		TopoDir: filepath.Join(dir, TopoDir),
	}
}

// Lookup returns the paths for an existing run id taken from user input. Ids
// that are not a single path element are rejected with model.ErrInvalidRequest.
func (w *Workspace) Lookup(runID string) (RunContext, error) {
	if !validName(runID) {
		return RunContext{}, fmt.Errorf("%w: invalid run id %q", model.ErrInvalidRequest, runID)
	}
	return w.Context(runID), nil
}

// ListRuns returns the runs under the root that have at least one rendered
// frame, most recent first. A missing root yields an empty list.
func (w *Workspace) ListRuns() ([]RunSummary, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RunSummary{}, nil
		}
		return nil, fmt.Errorf("%w: read workspace root: %v", model.ErrWorkspace, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	slices.Reverse(names)

	runs := []RunSummary{}
	for _, name := range names {
		nums, err := frames.Scan(filepath.Join(w.root, name, PlotsDir))
		if err != nil {
			w.logger.Warn("skipping unreadable run", "run_id", name, "error", err)
			continue
		}
		if len(nums) == 0 {
			continue
		}
		runs = append(runs, RunSummary{RunID: name, FrameCount: len(nums)})
	}
	return runs, nil
}

func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && filepath.Base(s) == s
}

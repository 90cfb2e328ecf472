package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/seantiz/tsunami/internal/frames"
	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/store"
	"github.com/seantiz/tsunami/internal/workspace"
)

// Templates looks up simulation templates.
type Templates interface {
	Get(id string) (model.Template, error)
}

// TopoCache returns a bathymetry grid file for an extent.
type TopoCache interface {
	FetchOrCreate(ctx context.Context, extent model.Extent, dataset string, coarsen int) (string, error)
}

// Deformer writes the seafloor deformation file for a fault location.
type Deformer interface {
	Build(ctx context.Context, extent model.Extent, faultLon, faultLat float64, tmpl model.Template, outDir string) (string, error)
}

// Allocator creates run workspaces.
type Allocator interface {
	Allocate(templateID string) (workspace.RunContext, error)
}

// Simulator configures and runs the simulation engine.
type Simulator interface {
	Configure(rc workspace.RunContext, tmpl model.Template, extent model.Extent, topoPath, dtopoPath string) error
	Invoke(ctx context.Context, rc workspace.RunContext) error
}

// Renderer renders engine output into frame images.
type Renderer interface {
	Render(ctx context.Context, rc workspace.RunContext) error
}

// Publisher mirrors a finished run's frames elsewhere.
type Publisher interface {
	Publish(ctx context.Context, rc workspace.RunContext, nums []int) (int, error)
}

// Request is one simulate request.
type Request struct {
	TemplateID string       `json:"template"`
	Lon        float64      `json:"lon"`
	Lat        float64      `json:"lat"`
	Extent     model.Extent `json:"extent"`
}

// Validate checks the request fields that do not depend on the template.
func (r Request) Validate() error {
	if r.TemplateID == "" {
		return fmt.Errorf("%w: template is required", model.ErrInvalidRequest)
	}
	if math.IsNaN(r.Lon) || math.IsInf(r.Lon, 0) || math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) {
		return fmt.Errorf("%w: fault location must be finite", model.ErrInvalidRequest)
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: fault latitude %g out of range", model.ErrInvalidRequest, r.Lat)
	}
	return r.Extent.Validate()
}

// Result is a finished run and its frames.
type Result struct {
	RunID  string        `json:"run_id"`
	Frames []model.Frame `json:"frames"`
}

// Deps are the collaborators a Pipeline drives. Publisher may be nil.
type Deps struct {
	Templates Templates
	Topo      TopoCache
	Deform    Deformer
	Workspace Allocator
	Simulator Simulator
	Renderer  Renderer
	Publisher Publisher
	Store     store.Store
}

// Pipeline executes runs synchronously.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{deps: deps, logger: logger, now: time.Now}
}

// Run executes req to completion and returns the indexed frames. It blocks
// for the whole simulation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := p.deps.Templates.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}

	runsInFlight.Inc()
	defer runsInFlight.Dec()

	start := p.now()
	var rc workspace.RunContext
	if err := p.stage(stageAllocate, func() (err error) {
		rc, err = p.deps.Workspace.Allocate(tmpl.ID)
		return err
	}); err != nil {
		runsTotal.WithLabelValues(tmpl.ID, model.StateFailed).Inc()
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}

	run := &model.Run{
		RunID:      rc.RunID,
		TemplateID: tmpl.ID,
		Extent:     req.Extent,
		FaultLon:   req.Lon,
		FaultLat:   req.Lat,
		State:      model.StateAllocated,
		RunDir:     rc.RunDir,
		CreatedAt:  start.UTC(),
	}
	if err := p.deps.Store.CreateRun(ctx, run); err != nil {
		runsTotal.WithLabelValues(tmpl.ID, model.StateFailed).Inc()
		return nil, fmt.Errorf("record run: %w", err)
	}
	log := p.logger.With("run_id", run.RunID, "template", tmpl.ID)
	log.Info("run started", "lon", req.Lon, "lat", req.Lat, "extent", req.Extent)

	if err := p.stage(stageTopo, func() (err error) {
		run.TopoPath, err = p.deps.Topo.FetchOrCreate(ctx, req.Extent, tmpl.BathymetryDataset, tmpl.Coarsen)
		return err
	}); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("fetch topography: %w", err))
	}

	if err := p.stage(stageDeform, func() (err error) {
		run.DtopoPath, err = p.deps.Deform.Build(ctx, req.Extent, req.Lon, req.Lat, tmpl, rc.RunDir)
		return err
	}); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("build deformation: %w", err))
	}

	if err := p.stage(stageConfigure, func() error {
		return p.deps.Simulator.Configure(rc, tmpl, req.Extent, run.TopoPath, run.DtopoPath)
	}); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("configure simulation: %w", err))
	}
	run.State = model.StateConfigured
	if err := p.deps.Store.UpdateRun(ctx, run); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("record configured run: %w", err))
	}

	if err := p.transition(ctx, run, model.StateSimulating); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, err)
	}
	if err := p.stage(stageSimulate, func() error {
		return p.deps.Simulator.Invoke(ctx, rc)
	}); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("run simulation: %w", err))
	}

	if err := p.transition(ctx, run, model.StatePlotting); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, err)
	}
	if err := p.stage(stageRender, func() error {
		return p.deps.Renderer.Render(ctx, rc)
	}); err != nil {
		return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("render plots: %w", err))
	}

	var index []model.Frame
	if err := p.stage(stageIndex, func() (err error) {
		index, err = frames.Index(rc.OutDir, rc.PlotDir)
		return err
	}); err != nil {
		if index == nil {
			return nil, p.fail(ctx, log, run, rc, start, fmt.Errorf("index frames: %w", err))
		}
		log.Warn("frame times partially unavailable", "error", err)
	}

	if p.deps.Publisher != nil && len(index) > 0 {
		nums := make([]int, len(index))
		for i, f := range index {
			nums[i] = f.Frame
		}
		if err := p.stage(stagePublish, func() error {
			_, err := p.deps.Publisher.Publish(ctx, rc, nums)
			return err
		}); err != nil {
			log.Warn("publish frames failed", "error", err)
		}
	}

	p.finish(run, model.StateIndexed, len(index), start)
	if err := p.deps.Store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record indexed run", "error", err)
	}
	runsTotal.WithLabelValues(tmpl.ID, model.StateIndexed).Inc()
	log.Info("run indexed", "frames", len(index), "duration_ms", *run.DurationMS)

	return &Result{RunID: run.RunID, Frames: index}, nil
}

// stage times fn under the given stage label.
func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) transition(ctx context.Context, run *model.Run, state string) error {
	if err := p.deps.Store.UpdateRunState(ctx, run.RunID, state); err != nil {
		return fmt.Errorf("record %s state: %w", state, err)
	}
	run.State = state
	return nil
}

func (p *Pipeline) finish(run *model.Run, state string, frameCount int, start time.Time) {
	now := p.now().UTC()
	dur := int(now.Sub(start).Milliseconds())
	run.State = state
	run.FrameCount = &frameCount
	run.DurationMS = &dur
	run.FinishedAt = &now
}

// fail marks run failed in the ledger and returns cause. The ledger write is
// not bound to ctx so a canceled run is still recorded.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, run *model.Run, rc workspace.RunContext, start time.Time, cause error) error {
	produced, _ := frames.Scan(rc.PlotDir)
	p.finish(run, model.StateFailed, len(produced), start)
	run.Error = cause.Error()

	if err := p.deps.Store.UpdateRun(context.WithoutCancel(ctx), run); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		log.Error("failed to record failed run", "error", err)
	}
	runsTotal.WithLabelValues(run.TemplateID, model.StateFailed).Inc()
	log.Error("run failed", "error", cause, "frames", len(produced))
	return cause
}

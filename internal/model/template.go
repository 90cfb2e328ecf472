package model

import (
	"errors"
	"fmt"
	"math"
)

// Template kinds.
const (
	KindEarthquakeOkada = "earthquake_okada"
)

// Reference point specifications for placing a subfault at a surface location.
const (
	RefTopCenter    = "top center"
	RefCentroid     = "centroid"
	RefBottomCenter = "bottom center"
)

// SubfaultParams describes a single rectangular dislocation source.
type SubfaultParams struct {
	StrikeDeg      float64 `json:"strike_deg" yaml:"strike_deg"`
	DipDeg         float64 `json:"dip_deg" yaml:"dip_deg"`
	RakeDeg        float64 `json:"rake_deg" yaml:"rake_deg"`
	SlipM          float64 `json:"slip_m" yaml:"slip_m"`
	LengthM        float64 `json:"length_m" yaml:"length_m"`
	WidthM         float64 `json:"width_m" yaml:"width_m"`
	DepthM         float64 `json:"depth_m" yaml:"depth_m"`
	ReferencePoint string  `json:"reference_point" yaml:"reference_point"`
}

// Template is a named simulation scenario. Templates are immutable once loaded.
type Template struct {
	ID                string         `json:"id" yaml:"id"`
	DisplayName       string         `json:"display_name" yaml:"display_name"`
	Kind              string         `json:"kind" yaml:"kind"`
	FinalTimeHours    float64        `json:"final_time_hours" yaml:"final_time_hours"`
	BathymetryDataset string         `json:"bathymetry_dataset" yaml:"bathymetry_dataset"`
	Coarsen           int            `json:"coarsen" yaml:"coarsen"`
	GridNX            int            `json:"grid_nx" yaml:"grid_nx"`
	GridNY            int            `json:"grid_ny" yaml:"grid_ny"`
	SnapshotTimes     []float64      `json:"snapshot_times" yaml:"snapshot_times"`
	Subfault          SubfaultParams `json:"subfault" yaml:"subfault"`
}

// Name returns the display name, falling back to the id.
func (t Template) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

// FinalTimeSeconds returns the simulated duration in seconds.
func (t Template) FinalTimeSeconds() float64 {
	return t.FinalTimeHours * 3600.0
}

// ValidateGrid checks the deformation grid dimensions. A single sample on an
// axis has no spacing, so each axis needs at least two.
func (t Template) ValidateGrid() error {
	if t.GridNX < 2 || t.GridNY < 2 {
		return fmt.Errorf("%w: %s: grid dimensions must be at least 2x2, got %dx%d",
			ErrInvalidTemplate, t.ID, t.GridNX, t.GridNY)
	}
	return nil
}

// Validate checks every field a run depends on.
func (t Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTemplate)
	}
	if t.Kind != KindEarthquakeOkada {
		return fmt.Errorf("%w: %s: unsupported kind %q", ErrInvalidTemplate, t.ID, t.Kind)
	}
	if !finite(t.FinalTimeHours) || t.FinalTimeHours <= 0 {
		return fmt.Errorf("%w: %s: final_time_hours must be positive", ErrInvalidTemplate, t.ID)
	}
	if t.BathymetryDataset == "" {
		return fmt.Errorf("%w: %s: bathymetry_dataset is required", ErrInvalidTemplate, t.ID)
	}
	if t.Coarsen < 1 {
		return fmt.Errorf("%w: %s: coarsen must be at least 1", ErrInvalidTemplate, t.ID)
	}
	if err := t.ValidateGrid(); err != nil {
		return err
	}
	if len(t.SnapshotTimes) == 0 {
		return fmt.Errorf("%w: %s: at least one snapshot time is required", ErrInvalidTemplate, t.ID)
	}
	for _, s := range t.SnapshotTimes {
		if !finite(s) {
			return fmt.Errorf("%w: %s: snapshot times must be finite", ErrInvalidTemplate, t.ID)
		}
	}
	if err := uniformAscending(t.SnapshotTimes); err != nil {
		return fmt.Errorf("%w: %s: snapshot times %w", ErrInvalidTemplate, t.ID, err)
	}
	if err := t.Subfault.Validate(); err != nil {
		return fmt.Errorf("%s: %w", t.ID, err)
	}
	return nil
}

// Validate checks that the dislocation parameters are usable by the elastic
// half-space model.
func (p SubfaultParams) Validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"strike_deg", p.StrikeDeg},
		{"dip_deg", p.DipDeg},
		{"rake_deg", p.RakeDeg},
		{"slip_m", p.SlipM},
		{"length_m", p.LengthM},
		{"width_m", p.WidthM},
		{"depth_m", p.DepthM},
	}
	for _, n := range named {
		if !finite(n.v) {
			return fmt.Errorf("%w: subfault %s is not a finite number", ErrInvalidTemplate, n.name)
		}
	}
	if p.LengthM <= 0 {
		return fmt.Errorf("%w: subfault length_m must be positive", ErrInvalidTemplate)
	}
	if p.WidthM <= 0 {
		return fmt.Errorf("%w: subfault width_m must be positive", ErrInvalidTemplate)
	}
	if p.DepthM < 0 {
		return fmt.Errorf("%w: subfault depth_m must not be negative", ErrInvalidTemplate)
	}
	// The dislocation formulas divide by cos(dip).
	if p.DipDeg < 0 || p.DipDeg >= 90 {
		return fmt.Errorf("%w: subfault dip_deg must lie in [0, 90)", ErrInvalidTemplate)
	}
	switch p.ReferencePoint {
	case RefTopCenter, RefCentroid, RefBottomCenter:
	default:
		return fmt.Errorf("%w: unsupported reference point %q", ErrInvalidTemplate, p.ReferencePoint)
	}
	return nil
}

// stepTolerance is the relative deviation allowed between consecutive steps.
const stepTolerance = 1e-9

// uniformAscending checks that ts is strictly ascending with one step, since
// a dtopotype 3 file stores times only as t0 and dt.
func uniformAscending(ts []float64) error {
	if len(ts) < 2 {
		return nil
	}
	step := ts[1] - ts[0]
	if step <= 0 {
		return errors.New("must be strictly ascending")
	}
	for i := 2; i < len(ts); i++ {
		if math.Abs((ts[i]-ts[i-1])-step) > stepTolerance*step {
			return fmt.Errorf("must be uniformly spaced, step %g then %g", step, ts[i]-ts[i-1])
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

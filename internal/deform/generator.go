package deform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/seantiz/tsunami/internal/grid"
	"github.com/seantiz/tsunami/internal/model"
)

// FileName is the deformation grid written into each run directory.
const FileName = "dtopo_user_fault.tt3"

// Generator writes run-scoped deformation grids.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a deformation generator.
func NewGenerator(logger *slog.Logger) *Generator {
	return &Generator{logger: logger}
}

// Build computes the seafloor deformation of tmpl's subfault placed at the
// clicked location and writes it to outDir/dtopo_user_fault.tt3. Template
// grid and subfault parameters are validated before the model is evaluated.
func (g *Generator) Build(ctx context.Context, extent model.Extent, faultLon, faultLat float64, tmpl model.Template, outDir string) (string, error) {
	if err := tmpl.ValidateGrid(); err != nil {
		return "", err
	}
	if len(tmpl.SnapshotTimes) == 0 {
		return "", fmt.Errorf("%w: %s: no snapshot times", model.ErrInvalidTemplate, tmpl.ID)
	}
	if err := extent.Validate(); err != nil {
		return "", err
	}
	fault, err := NewSubfault(tmpl.Subfault, faultLon, faultLat)
	if err != nil {
		return "", fmt.Errorf("%s: %w", tmpl.ID, err)
	}

	g.logger.Info("building deformation",
		"template", tmpl.ID,
		"lon", faultLon,
		"lat", faultLat,
		"mw", fault.MomentMagnitude(),
		"nx", tmpl.GridNX,
		"ny", tmpl.GridNY,
	)

	dtopo, err := Deformation(ctx, fault, extent, tmpl.GridNX, tmpl.GridNY, tmpl.SnapshotTimes)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dtopo file: %w", err)
	}
	if err := grid.WriteDTopo(f, dtopo); err != nil {
		f.Close()
		return "", fmt.Errorf("write dtopo file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close dtopo file: %w", err)
	}
	return path, nil
}

// Deformation samples the fault's vertical displacement on an nx by ny grid
// spanning extent. Rupture is instantaneous at t = 0, so each snapshot at a
// non-negative time carries the full static field and earlier snapshots are
// flat.
func Deformation(ctx context.Context, fault *Subfault, extent model.Extent, nx, ny int, times []float64) (*grid.DTopography, error) {
	x := grid.Linspace(extent.West, extent.East, nx)
	y := grid.Linspace(extent.South, extent.North, ny)

	static := make([][]float64, ny)
	for j, lat := range y {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make([]float64, nx)
		for i, lon := range x {
			row[i] = fault.VerticalDisplacement(lon, lat)
		}
		static[j] = row
	}

	dz := make([][][]float64, len(times))
	for k, t := range times {
		if t >= 0 {
			dz[k] = static
			continue
		}
		flat := make([][]float64, ny)
		for j := range flat {
			flat[j] = make([]float64, nx)
		}
		dz[k] = flat
	}

	return &grid.DTopography{X: x, Y: y, Times: append([]float64(nil), times...), DZ: dz}, nil
}

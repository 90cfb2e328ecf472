package grid

import (
	"fmt"
	"math"
)

// NoDataValue marks missing samples in topography files.
const NoDataValue = -9999

// Linspace returns n evenly spaced samples over [start, stop]. Both end points
// are included; n == 1 yields start.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	// Pin the end point so it is exact despite accumulated rounding.
	out[n-1] = stop
	return out
}

// spacing returns the uniform step of an ascending axis.
func spacing(axis []float64) (float64, error) {
	if len(axis) < 2 {
		return 0, fmt.Errorf("axis needs at least 2 samples, got %d", len(axis))
	}
	d := (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
	if d <= 0 || math.IsNaN(d) {
		return 0, fmt.Errorf("axis must be strictly ascending")
	}
	return d, nil
}

// Topography is an elevation grid. Z is indexed [row][col] with rows running
// south to north along Y and columns west to east along X.
type Topography struct {
	X []float64
	Y []float64
	Z [][]float64
}

// Validate checks that Z matches the axes.
func (t *Topography) Validate() error {
	if len(t.X) < 2 || len(t.Y) < 2 {
		return fmt.Errorf("topography needs at least 2x2 samples, got %dx%d", len(t.X), len(t.Y))
	}
	if len(t.Z) != len(t.Y) {
		return fmt.Errorf("topography has %d rows, want %d", len(t.Z), len(t.Y))
	}
	for j, row := range t.Z {
		if len(row) != len(t.X) {
			return fmt.Errorf("topography row %d has %d values, want %d", j, len(row), len(t.X))
		}
	}
	return nil
}

// DTopography is a time-indexed seafloor displacement grid. DZ is indexed
// [time][row][col] with the same orientation as Topography.Z.
type DTopography struct {
	X     []float64
	Y     []float64
	Times []float64
	DZ    [][][]float64
}

// Validate checks that DZ matches the axes and times.
func (d *DTopography) Validate() error {
	if len(d.X) < 2 || len(d.Y) < 2 {
		return fmt.Errorf("dtopo needs at least 2x2 samples, got %dx%d", len(d.X), len(d.Y))
	}
	if len(d.Times) == 0 {
		return fmt.Errorf("dtopo needs at least one time")
	}
	if len(d.Times) > 1 {
		step := d.Times[1] - d.Times[0]
		if !(step > 0) {
			return fmt.Errorf("dtopo times must be strictly ascending")
		}
		for k := 2; k < len(d.Times); k++ {
			if math.Abs((d.Times[k]-d.Times[k-1])-step) > 1e-9*step {
				return fmt.Errorf("dtopo times must be uniformly spaced, step %g then %g", step, d.Times[k]-d.Times[k-1])
			}
		}
	}
	if len(d.DZ) != len(d.Times) {
		return fmt.Errorf("dtopo has %d time slices, want %d", len(d.DZ), len(d.Times))
	}
	for k, slice := range d.DZ {
		if len(slice) != len(d.Y) {
			return fmt.Errorf("dtopo slice %d has %d rows, want %d", k, len(slice), len(d.Y))
		}
		for j, row := range slice {
			if len(row) != len(d.X) {
				return fmt.Errorf("dtopo slice %d row %d has %d values, want %d", k, j, len(row), len(d.X))
			}
		}
	}
	return nil
}

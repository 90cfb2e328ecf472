package model

import (
	"fmt"
	"math"
)

// Extent is a geographic bounding box in degrees.
type Extent struct {
	West  float64 `json:"west" yaml:"west"`
	East  float64 `json:"east" yaml:"east"`
	South float64 `json:"south" yaml:"south"`
	North float64 `json:"north" yaml:"north"`
}

// Validate reports whether the extent describes a non-empty box on the globe.
func (e Extent) Validate() error {
	for _, v := range []float64{e.West, e.East, e.South, e.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: extent bounds must be finite", ErrInvalidRequest)
		}
	}
	if e.West >= e.East {
		return fmt.Errorf("%w: extent west (%g) must be less than east (%g)", ErrInvalidRequest, e.West, e.East)
	}
	if e.South >= e.North {
		return fmt.Errorf("%w: extent south (%g) must be less than north (%g)", ErrInvalidRequest, e.South, e.North)
	}
	if e.South < -90 || e.North > 90 {
		return fmt.Errorf("%w: extent latitude must lie within [-90, 90]", ErrInvalidRequest)
	}
	return nil
}

package deform

import (
	"fmt"
	"math"

	"github.com/seantiz/tsunami/internal/model"
)

const (
	// lat2meter is the length of one degree of latitude on a sphere of radius 6367.5 km.
	lat2meter = 111133.84012073894

	deg2rad = math.Pi / 180

	// poisson is Poisson's ratio of the half-space.
	poisson = 0.25

	// rigidity is the shear modulus used for the seismic moment, in Pa.
	rigidity = 4e10
)

// Subfault is a rectangular dislocation placed on the globe. The Okada
// formulas are evaluated relative to the center of its bottom edge.
type Subfault struct {
	params model.SubfaultParams

	strike, dip, rake float64 // radians

	bottomLon, bottomLat, bottomDepth float64
}

// NewSubfault places a dislocation with the given parameters so that its
// reference point (per params.ReferencePoint) sits at lon/lat.
func NewSubfault(params model.SubfaultParams, lon, lat float64) (*Subfault, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Subfault{
		params: params,
		strike: params.StrikeDeg * deg2rad,
		dip:    params.DipDeg * deg2rad,
		rake:   params.RakeDeg * deg2rad,
	}

	// Horizontal vector from the bottom edge to the top edge, in meters (east, north).
	upDipX := -params.WidthM * math.Cos(s.dip) * math.Cos(s.strike)
	upDipY := params.WidthM * math.Cos(s.dip) * math.Sin(s.strike)
	dipDrop := params.WidthM * math.Sin(s.dip)

	// Fraction of the up-dip vector between the reference point and the bottom edge.
	var frac float64
	switch params.ReferencePoint {
	case model.RefTopCenter:
		frac = 1
	case model.RefCentroid:
		frac = 0.5
	case model.RefBottomCenter:
		frac = 0
	}

	topDepth := params.DepthM - (1-frac)*dipDrop
	if topDepth < 0 {
		return nil, fmt.Errorf("%w: subfault top edge would lie above the surface (%.1f m)",
			model.ErrInvalidTemplate, topDepth)
	}

	s.bottomDepth = params.DepthM + frac*dipDrop
	s.bottomLon = lon - frac*upDipX/(lat2meter*math.Cos(lat*deg2rad))
	s.bottomLat = lat - frac*upDipY/lat2meter
	return s, nil
}

// BottomCenter returns the longitude, latitude and depth of the center of the
// bottom edge of the fault plane.
func (s *Subfault) BottomCenter() (lon, lat, depth float64) {
	return s.bottomLon, s.bottomLat, s.bottomDepth
}

// MomentMagnitude returns Mw = 2/3 (log10(M0) - 9.05) with M0 in N m.
func (s *Subfault) MomentMagnitude() float64 {
	m0 := rigidity * s.params.LengthM * s.params.WidthM * s.params.SlipM
	return 2.0 / 3.0 * (math.Log10(m0) - 9.05)
}

// VerticalDisplacement returns the static vertical seafloor displacement in
// meters at lon/lat. Points on the projection of a fault edge are singular and
// yield 0.
func (s *Subfault) VerticalDisplacement(lon, lat float64) float64 {
	halfL := 0.5 * s.params.LengthM
	w := s.params.WidthM
	sn, cs := math.Sin(s.dip), math.Cos(s.dip)

	xx := lat2meter * math.Cos(lat*deg2rad) * (lon - s.bottomLon)
	yy := lat2meter * (lat - s.bottomLat)

	// Distance along strike and up dip from the bottom edge center.
	x1 := xx*math.Sin(s.strike) + yy*math.Cos(s.strike)
	x2 := -(xx*math.Cos(s.strike) - yy*math.Sin(s.strike))

	p := x2*cs + s.bottomDepth*sn
	q := x2*sn - s.bottomDepth*cs

	f1 := strikeSlip(x1+halfL, p, sn, cs, q)
	f2 := strikeSlip(x1+halfL, p-w, sn, cs, q)
	f3 := strikeSlip(x1-halfL, p, sn, cs, q)
	f4 := strikeSlip(x1-halfL, p-w, sn, cs, q)

	g1 := dipSlip(x1+halfL, p, sn, cs, q)
	g2 := dipSlip(x1+halfL, p-w, sn, cs, q)
	g3 := dipSlip(x1-halfL, p, sn, cs, q)
	g4 := dipSlip(x1-halfL, p-w, sn, cs, q)

	ds := s.params.SlipM * math.Cos(s.rake)
	dd := s.params.SlipM * math.Sin(s.rake)

	dz := (f1-f2-f3+f4)*ds + (g1-g2-g3+g4)*dd
	if math.IsNaN(dz) || math.IsInf(dz, 0) {
		return 0
	}
	return dz
}

// strikeSlip is the vertical surface displacement kernel for unit strike slip.
func strikeSlip(y1, y2, sn, cs, q float64) float64 {
	dBar := y2*sn - q*cs
	r := math.Sqrt(y1*y1 + y2*y2 + q*q)
	a4 := 2.0 * poisson / cs * (math.Log(r+dBar) - sn*math.Log(r+y2))
	return -(dBar*q/r/(r+y2) + q*sn/(r+y2) + a4*sn) / (2.0 * math.Pi)
}

// dipSlip is the vertical surface displacement kernel for unit dip slip.
func dipSlip(y1, y2, sn, cs, q float64) float64 {
	dBar := y2*sn - q*cs
	r := math.Sqrt(y1*y1 + y2*y2 + q*q)
	xx := math.Sqrt(y1*y1 + q*q)
	a5 := 4.0 * poisson / cs * math.Atan((y2*(xx+q*cs)+xx*(r+xx)*sn)/y1/(r+xx)/cs)
	return -(dBar*q/r/(r+y1) + sn*math.Atan(y1*y2/q/r) - a5*sn*cs) / (2.0 * math.Pi)
}

package curve

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrPointIndex    = errors.New("control point index out of range")
	ErrEndpointFixed = errors.New("curve endpoints cannot be removed or moved along x")
	ErrOutOfDomain   = errors.New("control point outside the editable domain")
)

// Domain is a closed numeric interval.
type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultYDomain bounds velocity multipliers a user can place.
var DefaultYDomain = Domain{Min: 0.1, Max: 3}

// VelocityCurve is a user-editable velocity multiplier over normalized clip
// progress. It always has points at x=0 and x=1. The global multiplier scales
// the sampled and displayed y values without touching stored points.
type VelocityCurve struct {
	points     []Point
	multiplier float64
	yDomain    Domain
}

// NewVelocityCurve returns the identity curve.
func NewVelocityCurve() *VelocityCurve {
	v := &VelocityCurve{yDomain: DefaultYDomain}
	v.Reset()
	return v
}

// Reset restores the two-point identity curve and a multiplier of 1.
func (v *VelocityCurve) Reset() {
	v.points = []Point{{X: 0, Y: 1}, {X: 1, Y: 1}}
	v.multiplier = 1
}

// Points returns a copy of the control points in ascending x.
func (v *VelocityCurve) Points() []Point {
	out := make([]Point, len(v.points))
	copy(out, v.points)
	return out
}

// SetControlPoints replaces every control point. The points are sorted; the
// caller is responsible for supplying the x=0 and x=1 endpoints.
func (v *VelocityCurve) SetControlPoints(points []Point) error {
	if len(points) < 2 {
		return ErrTooFewPoints
	}
	v.points = sortPoints(points)
	return nil
}

// AddPoint inserts an interior point and returns its index after sorting.
func (v *VelocityCurve) AddPoint(p Point) (int, error) {
	if !(p.X > 0 && p.X < 1) || !v.yInDomain(p.Y) {
		return 0, fmt.Errorf("%w: (%g, %g)", ErrOutOfDomain, p.X, p.Y)
	}
	v.points = sortPoints(append(v.points, p))
	return v.indexOf(p), nil
}

// MovePoint moves point i. Endpoints keep their x; interior points must stay
// strictly inside (0, 1). The returned index reflects the re-sorted order.
func (v *VelocityCurve) MovePoint(i int, p Point) (int, error) {
	if i < 0 || i >= len(v.points) {
		return 0, ErrPointIndex
	}
	if !v.yInDomain(p.Y) {
		return 0, fmt.Errorf("%w: y=%g", ErrOutOfDomain, p.Y)
	}

	last := len(v.points) - 1
	switch {
	case i == 0 || i == last:
		p.X = v.points[i].X
	case !(p.X > 0 && p.X < 1):
		return 0, fmt.Errorf("%w: x=%g", ErrOutOfDomain, p.X)
	}

	v.points[i] = p
	v.points = sortPoints(v.points)
	return v.indexOf(p), nil
}

// RemovePoint deletes an interior point.
func (v *VelocityCurve) RemovePoint(i int) error {
	if i < 0 || i >= len(v.points) {
		return ErrPointIndex
	}
	if i == 0 || i == len(v.points)-1 {
		return ErrEndpointFixed
	}
	v.points = append(v.points[:i], v.points[i+1:]...)
	return nil
}

func (v *VelocityCurve) GlobalMultiplier() float64 {
	return v.multiplier
}

func (v *VelocityCurve) SetGlobalMultiplier(m float64) {
	v.multiplier = m
}

// YDomain is the editable range of stored y values.
func (v *VelocityCurve) YDomain() Domain {
	return v.yDomain
}

// DisplayYDomain is the y domain scaled by the global multiplier.
func (v *VelocityCurve) DisplayYDomain() Domain {
	return Domain{Min: v.yDomain.Min * v.multiplier, Max: v.yDomain.Max * v.multiplier}
}

// Path builds the interpolant with y scaled by the global multiplier.
func (v *VelocityCurve) Path() (*Path, error) {
	scaled := make([]Point, len(v.points))
	for i, p := range v.points {
		scaled[i] = Point{X: p.X, Y: p.Y * v.multiplier}
	}
	return BuildPath(scaled)
}

// Samples returns n arclength-spaced samples of the scaled curve between
// startX and endX, with x remapped into [0, 1].
func (v *VelocityCurve) Samples(n int, startX, endX float64) ([]Point, error) {
	path, err := v.Path()
	if err != nil {
		return nil, err
	}
	return path.SampleRange(n, startX, endX)
}

func (v *VelocityCurve) yInDomain(y float64) bool {
	return y > v.yDomain.Min && y <= v.yDomain.Max
}

func (v *VelocityCurve) indexOf(p Point) int {
	for i, q := range v.points {
		if q == p {
			return i
		}
	}
	return -1
}

func sortPoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

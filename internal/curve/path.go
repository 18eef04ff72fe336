// Package curve builds smooth monotone interpolants through control points
// and samples them evenly by arclength.
package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/interp"
)

const (
	// DefaultTolerance is the x tolerance used when inverting arclength.
	DefaultTolerance = 0.001

	// piecesPerSpan is how many arclength table entries each knot span gets.
	piecesPerSpan = 64
	// quadPoints is the Gauss-Legendre order used per table piece.
	quadPoints = 6
	// maxBisections bounds FindFractionForX.
	maxBisections = 64
	newtonSteps   = 3
)

var (
	ErrTooFewPoints    = errors.New("curve needs at least two distinct control points")
	ErrTooFewSamples   = errors.New("at least two samples are required")
	ErrDegenerateRange = errors.New("sample range end must be greater than start")
)

// Point is a control point or a sample on a curve.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// interpolant is the subset of gonum's predictors a Path needs.
type interpolant interface {
	Predict(x float64) float64
	PredictDerivative(x float64) float64
}

// line is used for two-point curves, where a monotone cubic is a line anyway.
type line struct {
	x0, y0, slope float64
}

func (l line) Predict(x float64) float64           { return l.y0 + l.slope*(x-l.x0) }
func (l line) PredictDerivative(_ float64) float64 { return l.slope }

// Path is an immutable monotone interpolant with a precomputed arclength
// table. Fractions passed to its methods are fractions of total arclength,
// not of the x domain.
type Path struct {
	points []Point
	fn     interpolant

	// tx[i] is an x position and cum[i] the arclength from points[0] to tx[i].
	tx  []float64
	cum []float64
}

// BuildPath sorts points by x and fits a Fritsch-Butland monotone cubic
// through them. Points sharing an x keep the last y given.
func BuildPath(points []Point) (*Path, error) {
	sorted := normalize(points)
	if len(sorted) < 2 {
		return nil, ErrTooFewPoints
	}

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = p.X
		ys[i] = p.Y
	}

	var fn interpolant
	if len(sorted) == 2 {
		fn = line{x0: xs[0], y0: ys[0], slope: (ys[1] - ys[0]) / (xs[1] - xs[0])}
	} else {
		var fb interp.FritschButland
		if err := fb.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("fit curve: %w", err)
		}
		fn = &fb
	}

	p := &Path{points: sorted, fn: fn}
	p.buildTable()
	return p, nil
}

func normalize(points []Point) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	out := sorted[:0]
	for _, p := range sorted {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].X == p.X {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func (p *Path) speed(x float64) float64 {
	d := p.fn.PredictDerivative(x)
	return math.Sqrt(1 + d*d)
}

func (p *Path) segmentLength(a, b float64) float64 {
	if b <= a {
		return 0
	}
	return quad.Fixed(p.speed, a, b, quadPoints, nil, 0)
}

func (p *Path) buildTable() {
	n := (len(p.points)-1)*piecesPerSpan + 1
	p.tx = make([]float64, 0, n)
	p.cum = make([]float64, 0, n)

	p.tx = append(p.tx, p.points[0].X)
	p.cum = append(p.cum, 0)

	total := 0.0
	for i := 0; i+1 < len(p.points); i++ {
		a, b := p.points[i].X, p.points[i+1].X
		step := (b - a) / piecesPerSpan
		for k := 1; k <= piecesPerSpan; k++ {
			x0 := a + float64(k-1)*step
			x1 := a + float64(k)*step
			if k == piecesPerSpan {
				x1 = b
			}
			total += p.segmentLength(x0, x1)
			p.tx = append(p.tx, x1)
			p.cum = append(p.cum, total)
		}
	}
}

// Points returns a copy of the sorted control points.
func (p *Path) Points() []Point {
	out := make([]Point, len(p.points))
	copy(out, p.points)
	return out
}

// TotalLength returns the arclength of the interpolant.
func (p *Path) TotalLength() float64 {
	return p.cum[len(p.cum)-1]
}

// Y evaluates the interpolant at x, clamped to the control point range.
func (p *Path) Y(x float64) float64 {
	first, last := p.points[0].X, p.points[len(p.points)-1].X
	return p.fn.Predict(math.Max(first, math.Min(last, x)))
}

// PointAtFraction returns the point at fraction t of the total arclength.
// t is clamped to [0, 1].
func (p *Path) PointAtFraction(t float64) Point {
	switch {
	case t <= 0 || math.IsNaN(t):
		return p.points[0]
	case t >= 1:
		return p.points[len(p.points)-1]
	}

	s := t * p.TotalLength()
	j := sort.SearchFloat64s(p.cum, s)
	if j == 0 {
		return p.points[0]
	}
	if j >= len(p.cum) {
		return p.points[len(p.points)-1]
	}

	lo, hi := p.tx[j-1], p.tx[j]
	base := p.cum[j-1]
	span := p.cum[j] - base
	x := lo
	if span > 0 {
		x = lo + (s-base)/span*(hi-lo)
	}

	// Refine within the table piece: L(x) - s = 0, L'(x) = speed(x).
	for i := 0; i < newtonSteps; i++ {
		diff := base + p.segmentLength(lo, x) - s
		x -= diff / p.speed(x)
		x = math.Max(lo, math.Min(hi, x))
	}

	return Point{X: x, Y: p.fn.Predict(x)}
}

// FindFractionForX bisects [lower, upper] for the arclength fraction whose x
// is within tol of targetX. x is non-decreasing in fraction for any Path, so
// the search is well defined; it still stops after a fixed number of steps.
func (p *Path) FindFractionForX(targetX, lower, upper, tol float64) float64 {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	for i := 0; i < maxBisections; i++ {
		mid := (lower + upper) / 2
		x := p.PointAtFraction(mid).X
		if math.Abs(x-targetX) < tol || upper-lower < 1e-12 {
			return mid
		}
		if x > targetX {
			upper = mid
		} else {
			lower = mid
		}
	}
	return (lower + upper) / 2
}

// SampleRange returns n points evenly spaced in arclength between the
// fractions where the curve crosses startX and endX. Each sample's x is
// remapped so that startX maps to 0 and endX to 1.
func (p *Path) SampleRange(n int, startX, endX float64) ([]Point, error) {
	if n < 2 {
		return nil, ErrTooFewSamples
	}
	if !(endX > startX) {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrDegenerateRange, startX, endX)
	}

	startFrac := p.FindFractionForX(startX, 0, 1, DefaultTolerance)
	endFrac := p.FindFractionForX(endX, 0, 1, DefaultTolerance)

	width := endX - startX
	out := make([]Point, n)
	for i := range out {
		t := startFrac + float64(i)/float64(n-1)*(endFrac-startFrac)
		pt := p.PointAtFraction(t)
		out[i] = Point{X: (pt.X - startX) / width, Y: pt.Y}
	}
	return out, nil
}

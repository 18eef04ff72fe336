package curve

import (
	"errors"
	"math"
	"testing"
)

func mustPath(t *testing.T, pts []Point) *Path {
	t.Helper()
	p, err := BuildPath(pts)
	if err != nil {
		t.Fatalf("BuildPath() error = %v", err)
	}
	return p
}

func wavyPoints() []Point {
	return []Point{{X: 0, Y: 1}, {X: 0.3, Y: 2}, {X: 0.7, Y: 0.5}, {X: 1, Y: 1}}
}

func TestBuildPath_TooFewPoints(t *testing.T) {
	tests := [][]Point{
		nil,
		{{X: 0, Y: 1}},
		{{X: 0.5, Y: 1}, {X: 0.5, Y: 2}},
	}
	for _, pts := range tests {
		if _, err := BuildPath(pts); !errors.Is(err, ErrTooFewPoints) {
			t.Errorf("BuildPath(%v) error = %v, want ErrTooFewPoints", pts, err)
		}
	}
}

func TestBuildPath_SortsPoints(t *testing.T) {
	p := mustPath(t, []Point{{X: 1, Y: 1}, {X: 0, Y: 0}, {X: 0.5, Y: 0.8}})

	got := p.Points()
	for i := 1; i < len(got); i++ {
		if got[i].X <= got[i-1].X {
			t.Fatalf("points not strictly increasing: %v", got)
		}
	}
	if got[0].X != 0 || got[len(got)-1].X != 1 {
		t.Errorf("endpoints = %v, %v", got[0], got[len(got)-1])
	}
}

func TestTotalLength_Lines(t *testing.T) {
	tests := []struct {
		name string
		pts  []Point
		want float64
	}{
		{"flat", []Point{{X: 0, Y: 1}, {X: 1, Y: 1}}, 1},
		{"diagonal", []Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, math.Sqrt2},
		{"collinear knots", []Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.5}, {X: 1, Y: 1}}, math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustPath(t, tt.pts).TotalLength()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TotalLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPointAtFraction_Line(t *testing.T) {
	p := mustPath(t, []Point{{X: 0, Y: 0}, {X: 1, Y: 1}})

	for _, frac := range []float64{0, 0.25, 0.5, 0.9, 1} {
		pt := p.PointAtFraction(frac)
		if math.Abs(pt.X-frac) > 1e-9 || math.Abs(pt.Y-frac) > 1e-9 {
			t.Errorf("PointAtFraction(%v) = %v", frac, pt)
		}
	}
}

func TestPointAtFraction_IsArclengthParameterized(t *testing.T) {
	p := mustPath(t, wavyPoints())
	total := p.TotalLength()

	// Independent polyline estimate of arclength up to x.
	polyLength := func(x float64) float64 {
		const steps = 20000
		l := 0.0
		prevX, prevY := 0.0, p.Y(0)
		for i := 1; i <= steps; i++ {
			cx := x * float64(i) / steps
			cy := p.Y(cx)
			l += math.Hypot(cx-prevX, cy-prevY)
			prevX, prevY = cx, cy
		}
		return l
	}

	for _, frac := range []float64{0.1, 0.35, 0.5, 0.8} {
		pt := p.PointAtFraction(frac)
		got := polyLength(pt.X) / total
		if math.Abs(got-frac) > 1e-3 {
			t.Errorf("arclength fraction at x=%v is %v, want %v", pt.X, got, frac)
		}
	}
}

func TestPointAtFraction_XMonotone(t *testing.T) {
	p := mustPath(t, wavyPoints())

	prev := -1.0
	for i := 0; i <= 500; i++ {
		x := p.PointAtFraction(float64(i) / 500).X
		if x < prev {
			t.Fatalf("x decreased at step %d: %v < %v", i, x, prev)
		}
		prev = x
	}
}

func TestFindFractionForX(t *testing.T) {
	p := mustPath(t, wavyPoints())

	for _, target := range []float64{0.05, 0.3, 0.62, 0.99} {
		frac := p.FindFractionForX(target, 0, 1, DefaultTolerance)
		if x := p.PointAtFraction(frac).X; math.Abs(x-target) >= DefaultTolerance {
			t.Errorf("FindFractionForX(%v) -> x=%v", target, x)
		}
	}
}

func TestFindFractionForX_OutsideCurveTerminates(t *testing.T) {
	p := mustPath(t, wavyPoints())

	if frac := p.FindFractionForX(2, 0, 1, DefaultTolerance); frac < 0.999 {
		t.Errorf("FindFractionForX(2) = %v, want close to 1", frac)
	}
}

func TestSampleRange_Endpoints(t *testing.T) {
	p := mustPath(t, wavyPoints())

	ranges := [][2]float64{{0, 1}, {0.2, 0.9}, {0.45, 0.55}}
	for _, r := range ranges {
		samples, err := p.SampleRange(1000, r[0], r[1])
		if err != nil {
			t.Fatalf("SampleRange(%v) error = %v", r, err)
		}
		if len(samples) != 1000 {
			t.Fatalf("len = %d, want 1000", len(samples))
		}

		tol := DefaultTolerance / (r[1] - r[0])
		if first := samples[0].X; math.Abs(first) > tol {
			t.Errorf("range %v: first x = %v, want 0", r, first)
		}
		if last := samples[len(samples)-1].X; math.Abs(last-1) > tol {
			t.Errorf("range %v: last x = %v, want 1", r, last)
		}
		for i := 1; i < len(samples); i++ {
			if samples[i].X < samples[i-1].X {
				t.Fatalf("range %v: x decreased at %d", r, i)
			}
		}
	}
}

func TestSampleRange_Errors(t *testing.T) {
	p := mustPath(t, wavyPoints())

	if _, err := p.SampleRange(1, 0, 1); !errors.Is(err, ErrTooFewSamples) {
		t.Errorf("n=1 error = %v, want ErrTooFewSamples", err)
	}
	if _, err := p.SampleRange(10, 0.5, 0.5); !errors.Is(err, ErrDegenerateRange) {
		t.Errorf("empty range error = %v, want ErrDegenerateRange", err)
	}
	if _, err := p.SampleRange(10, 0.7, 0.2); !errors.Is(err, ErrDegenerateRange) {
		t.Errorf("reversed range error = %v, want ErrDegenerateRange", err)
	}
}

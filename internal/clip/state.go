// Package clip holds the per-clip editing state: trims, stabilization
// parameters, the velocity curve, suggestion flags and the playhead.
package clip

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

const (
	// MinTrimWidth is the narrowest trim window in sampled-percent steps.
	MinTrimWidth = 4
	// StabilizeSampleCount is the number of velocity samples sent with
	// every stabilize request.
	StabilizeSampleCount = 1000
	// VelocityGlobalMultiplier scales smoothed velocity curves.
	VelocityGlobalMultiplier = 1.4
	// MaxVelocityAdjustment caps a smoothed multiplier before scaling.
	MaxVelocityAdjustment = 4.0
	// DefaultMaxStabilizationStrength applies until the service reports one.
	DefaultMaxStabilizationStrength = 2

	// CompositeSlug names the synthetic clip holding the concatenation.
	CompositeSlug = ".temp_final_video"

	defaultColor = "#AAAAAA"
)

var (
	ErrInvalidTrim     = errors.New("invalid trim range")
	ErrInvalidPercents = errors.New("sampled percents must be non-decreasing values in [0, 1]")
	ErrInvalidStrength = errors.New("smoothing strength must be in [0, 1]")
	ErrSampleMismatch  = errors.New("smoothing percents and multipliers differ in length")
	ErrNoSmoothing     = errors.New("no velocity smoothing samples; stabilize the clip first")
)

// Options describes a clip as reported when a project is opened.
type Options struct {
	Slug                  string
	SourceURI             string
	Stabilizable          bool
	BeforeOthersOK        bool
	AfterOthersOK         bool
	SampledPercents       []float64
	Trajectory            trajectory.Trajectory
	RealFrames            []string
	SuggestedNextClips    []string
	TrimSuggestionForNext map[string][2]int
}

// State is the mutable record of one clip.
type State struct {
	Slug      string
	SourceURI string

	Trajectory     trajectory.Trajectory
	RealFrames     []string
	SourceDuration float64

	SampledPercents []float64
	CurTrimStart    int
	CurTrimEnd      int
	StabTrimStart   int
	StabTrimEnd     int

	StabilizationStrength    int
	MaxStabilizationStrength int

	SmoothingStrength    float64
	SmoothingPercents    []float64
	SmoothingMultipliers []float64

	IsStabilized                  bool
	IsStabilizable                bool
	BeforeOthersOK                bool
	AfterOthersOK                 bool
	IsEditedByUser                bool
	IsForcedStabilizedByComposite bool
	IsSuggestedNext               bool
	IsSuggestedToStabilize        bool

	SuggestedNextClips    []string
	TrimSuggestionForNext map[string][2]int

	Velocity *curve.VelocityCurve
	Note     string
	Color    string
	Playhead trajectory.Playhead

	strengthGen  uint64
	poseGen      uint64
	stabilizeGen uint64
}

// New builds a clip. Clips that cannot be stabilized get the two-entry
// percent grid [0, 1].
func New(opts Options) *State {
	percents := []float64{0, 1}
	if opts.Stabilizable && len(opts.SampledPercents) >= 2 {
		percents = append([]float64(nil), opts.SampledPercents...)
	}

	s := &State{
		Slug:                     opts.Slug,
		SourceURI:                opts.SourceURI,
		Trajectory:               opts.Trajectory,
		RealFrames:               opts.RealFrames,
		SampledPercents:          percents,
		StabilizationStrength:    1,
		MaxStabilizationStrength: DefaultMaxStabilizationStrength,
		IsStabilizable:           opts.Stabilizable,
		BeforeOthersOK:           opts.BeforeOthersOK,
		AfterOthersOK:            opts.AfterOthersOK,
		SuggestedNextClips:       opts.SuggestedNextClips,
		TrimSuggestionForNext:    opts.TrimSuggestionForNext,
		Velocity:                 curve.NewVelocityCurve(),
		Note:                     opts.Slug,
		Color:                    defaultColor,
	}
	if s.TrimSuggestionForNext == nil {
		s.TrimSuggestionForNext = map[string][2]int{}
	}
	if d, ok := opts.Trajectory.TotalTime(); ok {
		s.SourceDuration = d
	}
	s.resetTrims()
	return s
}

// LastIndex is the highest valid trim index.
func (s *State) LastIndex() int {
	return len(s.SampledPercents) - 1
}

// CanLead reports whether the clip may sit before other clips.
func (s *State) CanLead() bool {
	return s.IsStabilized || s.BeforeOthersOK
}

// CanFollow reports whether the clip may sit after other clips.
func (s *State) CanFollow() bool {
	return s.IsStabilized || s.AfterOthersOK
}

// IsComposite reports whether this is the synthetic concatenation clip.
func (s *State) IsComposite() bool {
	return s.Slug == CompositeSlug
}

func (s *State) resetTrims() {
	s.CurTrimStart, s.CurTrimEnd = 0, s.LastIndex()
	s.StabTrimStart, s.StabTrimEnd = 0, s.LastIndex()
}

// ResetStabilizationSettings restores the identity velocity curve, strength
// 1, zero smoothing and full-range trims. IsStabilized is left alone.
func (s *State) ResetStabilizationSettings() {
	s.SmoothingStrength = 0
	s.Velocity = curve.NewVelocityCurve()
	s.StabilizationStrength = 1
	s.resetTrims()
}

// ResetStabilizedTrim puts the stabilized window back to the full range.
func (s *State) ResetStabilizedTrim() {
	s.StabTrimStart, s.StabTrimEnd = 0, s.LastIndex()
}

// SetSampledPercents replaces the percent grid. Every trim index refers to
// the old grid, so all of them are reset to the full range.
func (s *State) SetSampledPercents(percents []float64) error {
	if err := validatePercents(percents); err != nil {
		return err
	}
	s.SampledPercents = append([]float64(nil), percents...)
	s.resetTrims()
	return nil
}

func validatePercents(p []float64) error {
	if len(p) < 2 {
		return fmt.Errorf("%w: need at least 2 entries", ErrInvalidPercents)
	}
	for i, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: entry %d is %g", ErrInvalidPercents, i, v)
		}
		if i > 0 && v < p[i-1] {
			return fmt.Errorf("%w: entry %d decreases", ErrInvalidPercents, i)
		}
	}
	return nil
}

// StabilizedWindow returns the percents the stabilized trim covers.
func (s *State) StabilizedWindow() (start, end float64) {
	return s.SampledPercents[s.StabTrimStart], s.SampledPercents[s.StabTrimEnd]
}

// CurrentWindow returns the percents the candidate trim covers.
func (s *State) CurrentWindow() (start, end float64) {
	return s.SampledPercents[s.CurTrimStart], s.SampledPercents[s.CurTrimEnd]
}

// SetStabilizationStrength clamps strength to [1, MaxStabilizationStrength]
// and returns the stored value.
func (s *State) SetStabilizationStrength(strength int) int {
	if strength > s.MaxStabilizationStrength {
		strength = s.MaxStabilizationStrength
	}
	if strength < 1 {
		strength = 1
	}
	s.StabilizationStrength = strength
	return strength
}

// SetMaxStabilizationStrength stores a new maximum and pulls the current
// strength down to it.
func (s *State) SetMaxStabilizationStrength(max int) {
	if max < 1 {
		max = 1
	}
	s.MaxStabilizationStrength = max
	if s.StabilizationStrength > max {
		s.StabilizationStrength = max
	}
}

// SetSmoothingSamples stores the server's velocity smoothing samples.
func (s *State) SetSmoothingSamples(percents, multipliers []float64) error {
	if len(percents) != len(multipliers) {
		return ErrSampleMismatch
	}
	s.SmoothingPercents = append([]float64(nil), percents...)
	s.SmoothingMultipliers = append([]float64(nil), multipliers...)
	return nil
}

// SetVelocitySmoothingStrength rebuilds the velocity curve by blending the
// identity with the server's smoothing multipliers. Strength 0 restores the
// identity curve and a global multiplier of 1.
func (s *State) SetVelocitySmoothingStrength(strength float64) error {
	if strength < 0 || strength > 1 || math.IsNaN(strength) {
		return fmt.Errorf("%w: %g", ErrInvalidStrength, strength)
	}

	if strength == 0 {
		s.SmoothingStrength = 0
		s.Velocity.Reset()
		return nil
	}

	start, end := s.StabilizedWindow()
	points := make([]curve.Point, 0, len(s.SmoothingPercents)+2)
	if start > 0 {
		points = append(points, curve.Point{X: 0, Y: 1})
	}
	for i, p := range s.SmoothingPercents {
		y := 1/VelocityGlobalMultiplier*(1-strength) + s.SmoothingMultipliers[i]/VelocityGlobalMultiplier*strength
		points = append(points, curve.Point{
			X: p*(end-start) + start,
			Y: math.Min(y, MaxVelocityAdjustment/VelocityGlobalMultiplier),
		})
	}
	if end < 1 {
		points = append(points, curve.Point{X: 1, Y: 1})
	}

	if len(points) < 2 {
		return ErrNoSmoothing
	}

	if err := s.Velocity.SetControlPoints(points); err != nil {
		return fmt.Errorf("smoothing curve for %s: %w", s.Slug, err)
	}
	s.Velocity.SetGlobalMultiplier(VelocityGlobalMultiplier)
	s.SmoothingStrength = strength
	return nil
}

// SetVelocityPoints replaces the velocity curve with user-placed points.
func (s *State) SetVelocityPoints(points []curve.Point) error {
	return s.Velocity.SetControlPoints(points)
}

// BuildStabilizeRequestSamples samples the velocity curve across the
// stabilized window.
func (s *State) BuildStabilizeRequestSamples() ([]curve.Point, error) {
	start, end := s.StabilizedWindow()
	samples, err := s.Velocity.Samples(StabilizeSampleCount, start, end)
	if err != nil {
		return nil, fmt.Errorf("velocity samples for %s: %w", s.Slug, err)
	}
	return samples, nil
}

// ColorArray repeats the clip colour as normalized RGB once per trajectory
// sample.
func (s *State) ColorArray() []float64 {
	c, err := colorful.Hex(s.Color)
	if err != nil {
		c, _ = colorful.Hex(defaultColor)
	}
	out := make([]float64, 0, 3*len(s.Trajectory))
	for range s.Trajectory {
		out = append(out, c.R, c.G, c.B)
	}
	return out
}

// HueColor is the colour of clip i of n on an evenly spaced hue wheel.
func HueColor(i, n int) string {
	if n <= 0 {
		return defaultColor
	}
	return colorful.Hsl(360/float64(n)*float64(i), 1, 0.5).Hex()
}

package clip

import (
	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// StabilizeRequest is everything the service needs to stabilize a clip.
type StabilizeRequest struct {
	Slug         string
	Strength     int
	Curve        []curve.Point
	StartPercent float64
	EndPercent   float64
	Generation   uint64
}

// StabilizeResult is the service's answer to a stabilize or cancel request.
type StabilizeResult struct {
	Trajectory           trajectory.Trajectory
	RealFrames           []string
	MaxStrength          int
	SmoothingPercents    []float64
	SmoothingMultipliers []float64
}

// PrepareStabilize builds a stabilize request. With useCurrent the candidate
// trim becomes the stabilized trim first.
func (s *State) PrepareStabilize(useCurrent bool) (StabilizeRequest, error) {
	if useCurrent {
		s.StabTrimStart, s.StabTrimEnd = s.CurTrimStart, s.CurTrimEnd
	}
	samples, err := s.BuildStabilizeRequestSamples()
	if err != nil {
		return StabilizeRequest{}, err
	}
	start, end := s.StabilizedWindow()
	s.stabilizeGen++
	return StabilizeRequest{
		Slug:         s.Slug,
		Strength:     s.StabilizationStrength,
		Curve:        samples,
		StartPercent: start,
		EndPercent:   end,
		Generation:   s.stabilizeGen,
	}, nil
}

// BeginCancel marks a cancel request in flight and returns its generation.
func (s *State) BeginCancel() uint64 {
	s.stabilizeGen++
	return s.stabilizeGen
}

// ApplyStabilizeResult merges a stabilize or cancel answer unless a newer
// request for this clip has been issued since. Playback restarts at 0.
func (s *State) ApplyStabilizeResult(gen uint64, res StabilizeResult) bool {
	if gen != s.stabilizeGen {
		return false
	}
	s.Trajectory = res.Trajectory
	if res.RealFrames != nil {
		s.RealFrames = res.RealFrames
	}
	if res.MaxStrength > 0 {
		s.SetMaxStabilizationStrength(res.MaxStrength)
	}
	if len(res.SmoothingPercents) == len(res.SmoothingMultipliers) {
		s.SmoothingPercents = res.SmoothingPercents
		s.SmoothingMultipliers = res.SmoothingMultipliers
	}
	s.Seek(0)
	return true
}

// ApplyConcatenation replaces the composite clip's trajectory, frames and
// percent grid with a concatenation result.
func (s *State) ApplyConcatenation(traj trajectory.Trajectory, frames []string, percents []float64) error {
	if err := s.SetSampledPercents(percents); err != nil {
		return err
	}
	s.Trajectory = traj
	s.RealFrames = frames
	if d, ok := traj.TotalTime(); ok {
		s.SourceDuration = d
	}
	s.Seek(0)
	return nil
}

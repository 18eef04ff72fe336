package clip

import (
	"fmt"
	"time"

	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// StrengthQuery asks the service for the maximum stabilization strength of
// a candidate trim window.
type StrengthQuery struct {
	StartPercent float64
	EndPercent   float64
	Generation   uint64
}

// PoseLookup asks the service for the pose at an absolute percent of the
// source clip, used when no local sample covers it.
type PoseLookup struct {
	Percent    float64
	Generation uint64
}

// TrimChange is the outcome of SetTrimRange.
type TrimChange struct {
	Changed  bool
	Strength StrengthQuery
	Pose     *PoseLookup
}

// SetTrimRange moves the candidate trim window. The window never gets
// narrower than MinTrimWidth steps: a dragged edge that comes too close
// stops MinTrimWidth steps from the fixed edge, and the fixed edge gives way
// only at the ends of the grid. When the window stays wide enough, playback
// follows the moved edge.
func (s *State) SetTrimRange(start, end int) (TrimChange, error) {
	last := s.LastIndex()
	if start < 0 || end > last || end <= start {
		return TrimChange{}, fmt.Errorf("%w: [%d, %d] with last index %d", ErrInvalidTrim, start, end, last)
	}
	if start == s.CurTrimStart && end == s.CurTrimEnd {
		return TrimChange{}, nil
	}

	s.Playhead.Dragging = true

	var change TrimChange
	if end-start >= MinTrimWidth {
		switch {
		case start == s.CurTrimStart:
			change.Pose = s.FollowOriginalProgress(s.SampledPercents[end])
		case end == s.CurTrimEnd:
			change.Pose = s.FollowOriginalProgress(s.SampledPercents[start])
		default:
			change.Pose = s.FollowOriginalProgress(s.SampledPercents[start])
		}
	} else if end == s.CurTrimEnd && start != s.CurTrimStart {
		// Start dragged into the end.
		start = end - MinTrimWidth
	} else {
		end = start + MinTrimWidth
	}

	start, end = fitWindow(start, end, last)
	if start == s.CurTrimStart && end == s.CurTrimEnd {
		return TrimChange{Pose: change.Pose}, nil
	}

	s.CurTrimStart, s.CurTrimEnd = start, end
	s.strengthGen++
	change.Changed = true
	change.Strength = StrengthQuery{
		StartPercent: s.SampledPercents[start],
		EndPercent:   s.SampledPercents[end],
		Generation:   s.strengthGen,
	}
	return change, nil
}

// fitWindow shifts [start, end] back inside [0, last] keeping its width
// where the grid allows.
func fitWindow(start, end, last int) (int, int) {
	if end > last {
		start -= end - last
		end = last
	}
	if start < 0 {
		end -= start
		start = 0
	}
	if end > last {
		end = last
	}
	return start, end
}

// ApplyMaxStabilizationStrength stores a strength answer unless a newer
// trim change has superseded it. It reports whether it was applied.
func (s *State) ApplyMaxStabilizationStrength(gen uint64, max int) bool {
	if gen != s.strengthGen {
		return false
	}
	s.SetMaxStabilizationStrength(max)
	return true
}

// FollowOriginalProgress moves the playhead to an absolute percent of the
// source clip. Inside the stabilized window this is computed from local
// samples; outside it a PoseLookup is returned for the caller to resolve.
func (s *State) FollowOriginalProgress(original float64) *PoseLookup {
	start, end := s.StabilizedWindow()
	if local, ok := trajectory.LocalOriginalProgress(original, start, end); ok {
		s.Seek(s.Trajectory.ProgressForOriginalProgress(local))
		return nil
	}
	s.poseGen++
	s.Playhead.OriginalProgress = original
	return &PoseLookup{Percent: original, Generation: s.poseGen}
}

// ApplyExternalPose shows a pose fetched by a PoseLookup unless a newer
// lookup or a local seek has superseded it.
func (s *State) ApplyExternalPose(gen uint64, pose trajectory.Pose) bool {
	if gen != s.poseGen {
		return false
	}
	s.Playhead.External = &pose
	return true
}

// Seek moves the playhead to progress over the clip's own trajectory and
// refreshes the original progress readout.
func (s *State) Seek(progress float64) {
	s.poseGen++
	s.Playhead.Seek(progress)
	s.refreshOriginalProgress()
}

// Tick advances playback by elapsed wall time.
func (s *State) Tick(elapsed time.Duration) float64 {
	s.poseGen++
	p := s.Playhead.Tick(s.Trajectory, elapsed)
	s.refreshOriginalProgress()
	return p
}

func (s *State) refreshOriginalProgress() {
	s.Playhead.OriginalProgress = s.Trajectory.CurrentOriginalProgress(
		s.Playhead.Progress, s.SampledPercents, s.StabTrimStart, s.StabTrimEnd)
}

// CurrentPose is the pose shown at the playhead.
func (s *State) CurrentPose() (trajectory.Pose, bool) {
	return s.Playhead.CurrentPose(s.Trajectory)
}

// CurrentRealFrame is the footage frame shown at the playhead, if any.
func (s *State) CurrentRealFrame() (string, bool) {
	idx := trajectory.IndexForProgress(len(s.Trajectory), s.Playhead.Progress)
	return trajectory.RealFrame(s.RealFrames, idx, s.IsStabilized)
}

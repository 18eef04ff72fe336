package trajectory

import (
	"time"
)

// untimedStep is the progress advanced per tick when a trajectory has no
// timestamps.
const untimedStep = 0.01

// Playhead is the playback cursor of one clip.
type Playhead struct {
	Progress         float64 `json:"progress"`
	OriginalProgress float64 `json:"original_progress"`
	Playing          bool    `json:"playing"`
	Dragging         bool    `json:"dragging"`

	// External is a pose fetched for a point outside the local samples. It
	// is cleared by the next local seek.
	External *Pose `json:"external_pose,omitempty"`
}

// Seek moves to progress, clamped to [0, 1].
func (p *Playhead) Seek(progress float64) {
	switch {
	case progress < 0:
		progress = 0
	case progress > 1:
		progress = 1
	}
	p.Progress = progress
	p.External = nil
}

// SeekFrame moves to sample i of t.
func (p *Playhead) SeekFrame(t Trajectory, i int) {
	if len(t) == 0 {
		p.Seek(0)
		return
	}
	p.Seek(float64(i) / float64(len(t)))
}

// Tick advances playback by elapsed wall time and wraps to 0 past the end.
func (p *Playhead) Tick(t Trajectory, elapsed time.Duration) float64 {
	next := p.Progress + untimedStep
	if total, ok := t.TotalTime(); ok && total > 0 {
		next = p.Progress + elapsed.Seconds()/total
	}
	if next > 1 {
		next = 0
	}
	p.Seek(next)
	return p.Progress
}

// TogglePlaying flips the playing state and returns the new value.
func (p *Playhead) TogglePlaying() bool {
	p.Playing = !p.Playing
	return p.Playing
}

// CurrentPose is the externally fetched pose if one is set, otherwise the
// nearest sample with a pose at the current progress.
func (p *Playhead) CurrentPose(t Trajectory) (Pose, bool) {
	if p.External != nil {
		return *p.External, true
	}
	pose, _, ok := t.NearestPose(IndexForProgress(len(t), p.Progress))
	return pose, ok
}

// RealFrame returns the footage frame to show at sample idx. Real footage is
// only used for unstabilized clips and only where the frame and at least one
// neighbouring frame exist.
func RealFrame(frames []string, idx int, stabilized bool) (string, bool) {
	if stabilized || idx < 0 || idx >= len(frames) || frames[idx] == "" {
		return "", false
	}
	prev := idx-1 >= 0 && frames[idx-1] != ""
	next := idx+1 < len(frames) && frames[idx+1] != ""
	if !prev && !next {
		return "", false
	}
	return frames[idx], true
}

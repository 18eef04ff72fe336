package project

import (
	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// ClipView is a read-only snapshot of one clip for the rendering layer.
type ClipView struct {
	Slug      string `json:"slug"`
	SourceURI string `json:"source_uri"`
	Note      string `json:"note"`
	Color     string `json:"color"`
	Composite bool   `json:"composite"`
	Picked    bool   `json:"picked"`

	SampledPercents []float64 `json:"sampled_percents"`
	CurTrimStart    int       `json:"cur_trim_start"`
	CurTrimEnd      int       `json:"cur_trim_end"`
	StabTrimStart   int       `json:"stab_trim_start"`
	StabTrimEnd     int       `json:"stab_trim_end"`
	SourceDuration  float64   `json:"source_duration"`

	StabilizationStrength    int     `json:"stabilization_strength"`
	MaxStabilizationStrength int     `json:"max_stabilization_strength"`
	SmoothingStrength        float64 `json:"smoothing_strength"`

	IsStabilized           bool `json:"is_stabilized"`
	IsStabilizable         bool `json:"is_stabilizable"`
	BeforeOthersOK         bool `json:"is_before_other_video_ok"`
	AfterOthersOK          bool `json:"is_after_other_video_ok"`
	IsEditedByUser         bool `json:"is_edited_by_user"`
	IsForced               bool `json:"is_forced_stabilized_by_composite"`
	IsSuggestedNext        bool `json:"is_suggested_next"`
	IsSuggestedToStabilize bool `json:"is_suggested_to_stabilize"`

	VelocityPoints     []curve.Point `json:"velocity_points"`
	VelocityMultiplier float64       `json:"velocity_multiplier"`
	VelocityDomain     curve.Domain  `json:"velocity_display_domain"`

	Playhead    trajectory.Playhead `json:"playhead"`
	CurrentPose *trajectory.Pose    `json:"current_pose,omitempty"`
	RealFrame   string              `json:"real_frame,omitempty"`
}

// SessionView summarizes the open project.
type SessionView struct {
	Project       string      `json:"project"`
	View          ViewContext `json:"view"`
	Library       []string    `json:"library"`
	Picked        []string    `json:"picked"`
	ConcatChanged bool        `json:"concat_changed"`
}

// Snapshot returns the session summary. It is zero-valued with an empty
// project when nothing is open.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry == nil {
		return SessionView{View: s.view, Library: []string{}, Picked: []string{}}
	}
	return SessionView{
		Project:       s.project,
		View:          s.view,
		Library:       s.registry.Library(),
		Picked:        s.comp.Order(),
		ConcatChanged: s.concatChanged,
	}
}

// Clip returns a snapshot of one clip.
func (s *Session) Clip(slug string) (ClipView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clipLocked(slug)
	if err != nil {
		return ClipView{}, err
	}
	return s.clipViewLocked(c), nil
}

// Clips returns snapshots of every library clip in display order, then the
// composite.
func (s *Session) Clips() ([]ClipView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return nil, err
	}
	views := make([]ClipView, 0, s.registry.Len()+1)
	s.registry.Each(func(c *clip.State) {
		views = append(views, s.clipViewLocked(c))
	})
	return views, nil
}

// ClipTrajectory returns a copy of a clip's trajectory and its per-sample
// RGB colors.
func (s *Session) ClipTrajectory(slug string) (trajectory.Trajectory, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clipLocked(slug)
	if err != nil {
		return nil, nil, err
	}
	return c.Trajectory.Clone(), c.ColorArray(), nil
}

func (s *Session) clipViewLocked(c *clip.State) ClipView {
	v := ClipView{
		Slug:                     c.Slug,
		SourceURI:                c.SourceURI,
		Note:                     c.Note,
		Color:                    c.Color,
		Composite:                c.IsComposite(),
		Picked:                   s.comp.Contains(c.Slug),
		SampledPercents:          append([]float64(nil), c.SampledPercents...),
		CurTrimStart:             c.CurTrimStart,
		CurTrimEnd:               c.CurTrimEnd,
		StabTrimStart:            c.StabTrimStart,
		StabTrimEnd:              c.StabTrimEnd,
		SourceDuration:           c.SourceDuration,
		StabilizationStrength:    c.StabilizationStrength,
		MaxStabilizationStrength: c.MaxStabilizationStrength,
		SmoothingStrength:        c.SmoothingStrength,
		IsStabilized:             c.IsStabilized,
		IsStabilizable:           c.IsStabilizable,
		BeforeOthersOK:           c.BeforeOthersOK,
		AfterOthersOK:            c.AfterOthersOK,
		IsEditedByUser:           c.IsEditedByUser,
		IsForced:                 c.IsForcedStabilizedByComposite,
		IsSuggestedNext:          c.IsSuggestedNext,
		IsSuggestedToStabilize:   c.IsSuggestedToStabilize,
		VelocityPoints:           c.Velocity.Points(),
		VelocityMultiplier:       c.Velocity.GlobalMultiplier(),
		VelocityDomain:           c.Velocity.DisplayYDomain(),
		Playhead:                 c.Playhead,
	}
	if pose, ok := c.CurrentPose(); ok {
		v.CurrentPose = &pose
	}
	if frame, ok := c.CurrentRealFrame(); ok {
		v.RealFrame = frame
	}
	return v
}

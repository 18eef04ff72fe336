package project

import (
	"context"
	"errors"
	"time"

	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/store"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// SetTrim moves a clip's candidate trim window, then refreshes the maximum
// stabilization strength for the new window and, when the playhead left the
// locally known samples, the pose to show.
func (s *Session) SetTrim(ctx context.Context, slug string, start, end int) (clip.TrimChange, error) {
	s.mu.Lock()
	c, err := s.libraryClipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return clip.TrimChange{}, err
	}
	if !c.IsStabilized {
		s.mu.Unlock()
		return clip.TrimChange{}, ErrNotStabilized
	}
	change, err := c.SetTrimRange(start, end)
	project := s.project
	s.mu.Unlock()
	if err != nil {
		return clip.TrimChange{}, err
	}

	var errs []error
	if change.Changed {
		errs = append(errs, s.refreshMaxStrength(ctx, project, c, change.Strength))
	}
	if change.Pose != nil {
		errs = append(errs, s.lookupPose(ctx, project, c, *change.Pose))
	}
	return change, errors.Join(errs...)
}

func (s *Session) refreshMaxStrength(ctx context.Context, project string, c *clip.State, q clip.StrengthQuery) error {
	var max int
	err := s.roundTrip(ctx, store.JobTypeMaxStrength, project, c.Slug, func(ctx context.Context) error {
		var err error
		max, err = s.client.MaxStabilizationStrength(ctx, c.Slug, q.StartPercent, q.EndPercent)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.ApplyMaxStabilizationStrength(q.Generation, max) {
		s.logger.Debug("dropped superseded strength", "slug", c.Slug)
	}
	return nil
}

func (s *Session) lookupPose(ctx context.Context, project string, c *clip.State, q clip.PoseLookup) error {
	var pose trajectory.Pose
	err := s.roundTrip(ctx, store.JobTypePose, project, c.Slug, func(ctx context.Context) error {
		var err error
		pose, err = s.client.PoseAtProgress(ctx, c.Slug, q.Percent)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.ApplyExternalPose(q.Generation, pose)
	return nil
}

// EndTrimDrag clears the dragging flag after the user lets go of a trim
// handle.
func (s *Session) EndTrimDrag(slug string) error {
	return s.withClip(slug, func(c *clip.State) error {
		c.Playhead.Dragging = false
		return nil
	})
}

// SeekOriginal moves the playhead to an absolute percent of the source
// footage, fetching the pose when it lies outside the stabilized window.
func (s *Session) SeekOriginal(ctx context.Context, slug string, original float64) error {
	s.mu.Lock()
	c, err := s.clipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	lookup := c.FollowOriginalProgress(original)
	project := s.project
	s.mu.Unlock()

	if lookup == nil {
		return nil
	}
	return s.lookupPose(ctx, project, c, *lookup)
}

// withClip runs fn on a clip under the state lock.
func (s *Session) withClip(slug string, fn func(*clip.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clipLocked(slug)
	if err != nil {
		return err
	}
	return fn(c)
}

// SetStrength sets a clip's stabilization strength, clamped to its maximum.
func (s *Session) SetStrength(slug string, strength int) (int, error) {
	var got int
	err := s.withClip(slug, func(c *clip.State) error {
		got = c.SetStabilizationStrength(strength)
		return nil
	})
	return got, err
}

// SetSmoothing rebuilds a clip's velocity curve from its smoothing samples.
func (s *Session) SetSmoothing(slug string, strength float64) error {
	return s.withClip(slug, func(c *clip.State) error {
		return c.SetVelocitySmoothingStrength(strength)
	})
}

func (s *Session) SetVelocityPoints(slug string, points []curve.Point) error {
	return s.withClip(slug, func(c *clip.State) error {
		return c.SetVelocityPoints(points)
	})
}

// AddVelocityPoint adds an interior control point and returns its index.
func (s *Session) AddVelocityPoint(slug string, p curve.Point) (int, error) {
	var idx int
	err := s.withClip(slug, func(c *clip.State) error {
		var err error
		idx, err = c.Velocity.AddPoint(p)
		return err
	})
	return idx, err
}

// MoveVelocityPoint moves control point i and returns its new index.
func (s *Session) MoveVelocityPoint(slug string, i int, p curve.Point) (int, error) {
	var idx int
	err := s.withClip(slug, func(c *clip.State) error {
		var err error
		idx, err = c.Velocity.MovePoint(i, p)
		return err
	})
	return idx, err
}

func (s *Session) RemoveVelocityPoint(slug string, i int) error {
	return s.withClip(slug, func(c *clip.State) error {
		return c.Velocity.RemovePoint(i)
	})
}

// Seek moves a clip's playhead.
func (s *Session) Seek(slug string, progress float64) error {
	return s.withClip(slug, func(c *clip.State) error {
		c.Seek(progress)
		return nil
	})
}

// Tick advances a playing clip by elapsed and returns its progress.
func (s *Session) Tick(slug string, elapsed time.Duration) (float64, error) {
	var p float64
	err := s.withClip(slug, func(c *clip.State) error {
		if c.Playhead.Playing {
			p = c.Tick(elapsed)
		} else {
			p = c.Playhead.Progress
		}
		return nil
	})
	return p, err
}

// TogglePlaying flips play/pause and returns the new state.
func (s *Session) TogglePlaying(slug string) (bool, error) {
	var playing bool
	err := s.withClip(slug, func(c *clip.State) error {
		playing = c.Playhead.TogglePlaying()
		return nil
	})
	return playing, err
}

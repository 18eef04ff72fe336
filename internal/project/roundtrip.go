package project

import (
	"context"
	"fmt"
	"time"

	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/logging"
	"github.com/trajcut/trajcut-agent/internal/service"
	"github.com/trajcut/trajcut-agent/internal/store"
)

// roundTrip runs one service call, recording it in the job log. It must be
// called without the state lock held.
func (s *Session) roundTrip(ctx context.Context, op, project, slug string, fn func(context.Context) error) error {
	start := time.Now()
	job := &store.Job{
		ID:        store.NewID(),
		Type:      op,
		Project:   project,
		ClipSlug:  slug,
		Status:    store.JobStatusRunning,
		CreatedAt: start,
		UpdatedAt: start,
	}
	logger := logging.WithJobID(s.logger, job.ID)
	if s.repo != nil {
		if err := s.repo.CreateJob(ctx, job); err != nil {
			logger.Warn("failed to record job", "op", op, "error", err)
		}
	}

	logger.Info("round trip started", "op", op, "slug", slug)
	err := fn(ctx)
	elapsed := time.Since(start)

	status, msg := store.JobStatusCompleted, ""
	if err != nil {
		status, msg = store.JobStatusFailed, err.Error()
		logger.Warn("round trip failed", "op", op, "slug", slug, "duration_ms", elapsed.Milliseconds(), "error", err)
	} else {
		logger.Info("round trip finished", "op", op, "slug", slug, "duration_ms", elapsed.Milliseconds())
	}

	if s.repo != nil {
		if ferr := s.repo.FinishJob(context.WithoutCancel(ctx), job.ID, status, msg, elapsed); ferr != nil {
			logger.Warn("failed to finish job", "op", op, "error", ferr)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// stabilizeClip sends one stabilize request for slug and merges the answer.
// With useCurrent the candidate trim becomes the stabilized trim first. An
// answer superseded by a newer request for the same clip is dropped.
func (s *Session) stabilizeClip(ctx context.Context, slug string, useCurrent bool) error {
	s.mu.Lock()
	c, err := s.clipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	req, err := c.PrepareStabilize(useCurrent)
	if useCurrent {
		// The candidate trim is now the stabilized trim.
		s.comp.Propagate(s.registry)
	}
	project := s.project
	s.mu.Unlock()
	if err != nil {
		return err
	}

	var resp *service.StabilizeResponse
	err = s.roundTrip(ctx, store.JobTypeStabilize, project, slug, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Stabilize(ctx, service.StabilizeRequest{
			Slug:         req.Slug,
			Strength:     req.Strength,
			Curve:        req.Curve,
			StartPercent: req.StartPercent,
			EndPercent:   req.EndPercent,
		})
		return err
	})
	if err != nil {
		return err
	}
	traj, err := resp.Trajectory()
	if err != nil {
		return fmt.Errorf("stabilize %s: %w", slug, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	applied := c.ApplyStabilizeResult(req.Generation, clip.StabilizeResult{
		Trajectory:           traj,
		MaxStrength:          resp.MaxStrength,
		SmoothingPercents:    resp.SmoothingPercents,
		SmoothingMultipliers: resp.SmoothingMultipliers,
	})
	if !applied {
		s.logger.Debug("dropped superseded stabilize result", "slug", slug)
	}
	return nil
}

// cancelClip asks the service to drop a clip's stabilization and merges the
// unstabilized trajectory it answers with.
func (s *Session) cancelClip(ctx context.Context, slug string) error {
	s.mu.Lock()
	c, err := s.clipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	gen := c.BeginCancel()
	project := s.project
	s.mu.Unlock()

	var resp *service.CancelResponse
	err = s.roundTrip(ctx, store.JobTypeCancel, project, slug, func(ctx context.Context) error {
		var err error
		resp, err = s.client.CancelStabilization(ctx, slug)
		return err
	})
	if err != nil {
		return err
	}
	traj, err := resp.Trajectory()
	if err != nil {
		return fmt.Errorf("cancel %s: %w", slug, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.ApplyStabilizeResult(gen, clip.StabilizeResult{Trajectory: traj, RealFrames: resp.Frames}) {
		s.logger.Debug("dropped superseded cancel result", "slug", slug)
	}
	return nil
}

// concatenate asks for the concatenation of order and loads the result into
// the composite clip.
func (s *Session) concatenate(ctx context.Context, order []string) error {
	project := s.Project()

	var resp *service.ConcatResponse
	err := s.roundTrip(ctx, store.JobTypeConcatenate, project, clip.CompositeSlug, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Concatenate(ctx, order)
		return err
	})
	if err != nil {
		return err
	}
	traj, err := resp.Trajectory()
	if err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	if err := s.registry.Composite().ApplyConcatenation(traj, resp.Frames, resp.SampledPercents); err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}
	return nil
}

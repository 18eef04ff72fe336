package project

import (
	"context"
	"fmt"
	"slices"

	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/export"
	"github.com/trajcut/trajcut-agent/internal/store"
)

const reconcatenatePrompt = "The composition has not changed. Concatenate again and drop the current result?"

// ToggleStabilization turns stabilization of a clip on or off.
//
// For the composite, turning on first stabilizes every picked clip that is
// not stabilized yet, one after another, marking them as forced; then the
// picks are concatenated and the result stabilized. Turning off undoes only
// the forced siblings. For a library clip the toggle is local, but a picked
// clip invalidates the concatenation; if its round trip fails the local
// flags are restored.
func (s *Session) ToggleStabilization(ctx context.Context, slug string, on bool) error {
	s.flow.Lock()
	defer s.flow.Unlock()

	if slug == clip.CompositeSlug {
		if on {
			return s.stabilizeComposite(ctx)
		}
		return s.unstabilizeComposite(ctx)
	}
	return s.toggleClip(ctx, slug, on)
}

func (s *Session) toggleClip(ctx context.Context, slug string, on bool) error {
	s.mu.Lock()
	c, err := s.libraryClipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if on && !c.IsStabilizable {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotStabilizable, slug)
	}
	if c.IsStabilized == on {
		s.mu.Unlock()
		return nil
	}

	prevStabilized, prevForced, prevEdited := c.IsStabilized, c.IsForcedStabilizedByComposite, c.IsEditedByUser
	if s.comp.Contains(slug) {
		s.invalidateCompositeLocked()
	}
	c.IsStabilized = on
	c.IsForcedStabilizedByComposite = false
	c.IsEditedByUser = true
	s.comp.Propagate(s.registry)
	s.mu.Unlock()

	if on {
		err = s.stabilizeClip(ctx, slug, false)
	} else {
		err = s.cancelClip(ctx, slug)
	}
	if err == nil {
		return nil
	}

	s.mu.Lock()
	c.IsStabilized, c.IsForcedStabilizedByComposite, c.IsEditedByUser = prevStabilized, prevForced, prevEdited
	s.comp.Propagate(s.registry)
	s.mu.Unlock()
	return err
}

func (s *Session) stabilizeComposite(ctx context.Context) error {
	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.registry.Composite().IsStabilized && !s.concatChanged {
		s.mu.Unlock()
		return nil
	}
	order := s.comp.Order()
	if len(order) == 0 {
		s.mu.Unlock()
		return ErrEmptyComposition
	}
	for _, slug := range order {
		if c, _ := s.registry.Get(slug); !c.IsStabilizable {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNotStabilizable, slug)
		}
	}
	s.mu.Unlock()

	changed := false
	for _, slug := range order {
		s.mu.Lock()
		c, _ := s.registry.Get(slug)
		if c.IsStabilized {
			s.mu.Unlock()
			continue
		}
		c.ResetStabilizationSettings()
		c.IsStabilized = true
		c.IsForcedStabilizedByComposite = true
		s.mu.Unlock()

		if err := s.stabilizeClip(ctx, slug, false); err != nil {
			s.mu.Lock()
			c.IsStabilized = false
			c.IsForcedStabilizedByComposite = false
			s.mu.Unlock()
			return err
		}
		changed = true
	}

	s.mu.Lock()
	stale := changed || s.concatChanged
	s.mu.Unlock()
	if stale {
		if err := s.concatenate(ctx, order); err != nil {
			return err
		}
		s.mu.Lock()
		s.concatChanged = false
		s.registry.Composite().IsStabilizable = true
		s.mu.Unlock()
	}

	if err := s.stabilizeClip(ctx, clip.CompositeSlug, false); err != nil {
		return err
	}
	s.mu.Lock()
	s.registry.Composite().IsStabilized = true
	s.mu.Unlock()
	return nil
}

func (s *Session) unstabilizeComposite(ctx context.Context) error {
	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	order := s.comp.Order()
	s.mu.Unlock()

	changed := false
	for _, slug := range order {
		s.mu.Lock()
		c, _ := s.registry.Get(slug)
		forced := c.IsForcedStabilizedByComposite
		if forced {
			c.IsForcedStabilizedByComposite = false
			c.IsStabilized = false
		}
		s.mu.Unlock()
		if !forced {
			continue
		}
		if err := s.cancelClip(ctx, slug); err != nil {
			return err
		}
		changed = true
	}

	s.mu.Lock()
	s.registry.Composite().IsStabilized = false
	s.mu.Unlock()
	if err := s.cancelClip(ctx, clip.CompositeSlug); err != nil {
		return err
	}

	if changed && len(order) > 0 {
		if err := s.concatenate(ctx, order); err != nil {
			return err
		}
		s.mu.Lock()
		s.concatChanged = false
		s.mu.Unlock()
	}
	return nil
}

// ApplySettings re-stabilizes a stabilized clip with its candidate trim,
// strength and velocity curve.
func (s *Session) ApplySettings(ctx context.Context, slug string) error {
	s.flow.Lock()
	defer s.flow.Unlock()

	s.mu.Lock()
	c, err := s.clipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !c.IsStabilized {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotStabilized, slug)
	}
	if !c.IsComposite() {
		if s.comp.Contains(slug) {
			s.invalidateCompositeLocked()
		}
		c.IsForcedStabilizedByComposite = false
		c.IsEditedByUser = true
		s.comp.Propagate(s.registry)
	}
	s.mu.Unlock()

	return s.stabilizeClip(ctx, slug, true)
}

// Concatenate rebuilds the composite from the picked clips. When nothing
// changed since the last concatenation, confirm must approve redoing it.
// Picked clips with a pending stabilization suggestion are stabilized
// twice: over the full range to refresh the service's baseline, then over
// the suggested trim.
func (s *Session) Concatenate(ctx context.Context, confirm Confirm) error {
	s.flow.Lock()
	defer s.flow.Unlock()

	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	order := s.comp.Order()
	changed := s.concatChanged
	s.mu.Unlock()
	if len(order) == 0 {
		return ErrEmptyComposition
	}

	if !changed {
		if confirm == nil {
			return ErrConcatenationDeclined
		}
		ok, err := confirm(ctx, reconcatenatePrompt)
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			return ErrConcatenationDeclined
		}
	}

	s.mu.Lock()
	s.concatChanged = false
	stabilizable := true
	var suggested []string
	for _, slug := range order {
		c, _ := s.registry.Get(slug)
		stabilizable = stabilizable && c.IsStabilizable
		if c.IsSuggestedToStabilize {
			suggested = append(suggested, slug)
		}
	}
	s.registry.Composite().IsStabilizable = stabilizable
	s.mu.Unlock()

	for _, slug := range suggested {
		if err := s.stabilizeSuggested(ctx, slug); err != nil {
			return err
		}
	}
	if err := s.concatenate(ctx, order); err != nil {
		return err
	}

	// A fresh concatenation is never stabilized.
	s.mu.Lock()
	s.registry.Composite().IsStabilized = false
	s.mu.Unlock()
	return nil
}

func (s *Session) stabilizeSuggested(ctx context.Context, slug string) error {
	s.mu.Lock()
	c, _ := s.registry.Get(slug)
	start, end := c.StabTrimStart, c.StabTrimEnd
	c.ResetStabilizedTrim()
	s.mu.Unlock()

	if err := s.stabilizeClip(ctx, slug, false); err != nil {
		return err
	}

	s.mu.Lock()
	c.CurTrimStart, c.CurTrimEnd = start, end
	s.mu.Unlock()

	if err := s.stabilizeClip(ctx, slug, true); err != nil {
		return err
	}

	s.mu.Lock()
	c.IsStabilized = true
	s.mu.Unlock()
	return nil
}

// SuggestClips asks the service for a better pick order and adopts it.
func (s *Session) SuggestClips(ctx context.Context) ([]string, error) {
	s.flow.Lock()
	defer s.flow.Unlock()

	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	picked := s.comp.Order()
	project := s.project
	s.mu.Unlock()

	var suggested []string
	err := s.roundTrip(ctx, store.JobTypeSuggest, project, "", func(ctx context.Context) error {
		var err error
		suggested, err = s.client.SuggestClips(ctx, picked)
		return err
	})
	if err != nil {
		return nil, err
	}

	suggested = slices.DeleteFunc(suggested, func(slug string) bool { return slug == clip.CompositeSlug })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.comp.Replace(s.registry, suggested)
	order := s.comp.Order()
	if !slices.Equal(order, picked) {
		s.invalidateCompositeLocked()
	}
	return order, nil
}

// RenderFinalVideo asks the service to render the picked clips to a video
// named after the sanitized name.
func (s *Session) RenderFinalVideo(ctx context.Context, name string) (string, error) {
	clean := export.SanitizeName(name, 120)
	if clean == "" || clean == "." || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	order := s.comp.Order()
	project := s.project
	s.mu.Unlock()
	if len(order) == 0 {
		return "", ErrEmptyComposition
	}

	var msg string
	err := s.roundTrip(ctx, store.JobTypeRender, project, "", func(ctx context.Context) error {
		var err error
		msg, err = s.client.RenderFinalVideo(ctx, clean, order)
		return err
	})
	return msg, err
}

// ExportEDL writes the picked clips' stabilized windows as an EDL. Clips
// whose source duration is unknown are skipped.
func (s *Session) ExportEDL(req export.Request) (export.Result, error) {
	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return export.Result{}, err
	}
	if req.Title == "" {
		req.Title = s.project
	}

	var segments []export.Segment
	var skipped []string
	for _, slug := range s.comp.Order() {
		c, _ := s.registry.Get(slug)
		mediaPath := c.SourceURI
		if s.media != nil {
			if p, err := s.media.Resolve(c.SourceURI); err == nil {
				mediaPath = p
			}
		}
		start, end := c.StabilizedWindow()
		seg, ok := export.SegmentForWindow(slug, mediaPath, c.SourceDuration, start, end)
		if !ok {
			skipped = append(skipped, slug)
			continue
		}
		segments = append(segments, seg)
	}
	s.mu.Unlock()

	res, err := export.WriteEDL(req, segments)
	if err != nil {
		return export.Result{}, err
	}
	res.SkippedClips = skipped
	return res, nil
}

// Package project is the editing session: it owns the clip registry, the
// picked composition and the view context, and is the only place that
// mutates several clips at once.
//
// Short edits take the state lock only. Flows that span several service
// round trips (toggles, concatenation, suggestions) additionally hold the
// flow lock so they never interleave; the state lock is released while a
// round trip is in flight, and answers are merged through the per-clip
// generation counters.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/composition"
	"github.com/trajcut/trajcut-agent/internal/logging"
	"github.com/trajcut/trajcut-agent/internal/service"
	"github.com/trajcut/trajcut-agent/internal/store"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

var (
	ErrNoProject             = errors.New("no project is open")
	ErrUnknownClip           = errors.New("unknown clip")
	ErrCompositeClip         = errors.New("operation not allowed on the concatenated clip")
	ErrConcatenationDeclined = errors.New("re-concatenation not confirmed")
	ErrEmptyComposition      = errors.New("no clips picked")
	ErrNotStabilizable       = errors.New("clip cannot be stabilized")
	ErrNotStabilized         = errors.New("clip is not stabilized")
	ErrInvalidName           = errors.New("invalid output name")
)

// Page is the editor page the rendering layer shows.
type Page int

const (
	PageSingleClip Page = iota
	PageComposite
)

func (p Page) String() string {
	switch p {
	case PageComposite:
		return "composite"
	default:
		return "single_clip"
	}
}

// ParsePage maps a page name to a Page.
func ParsePage(s string) (Page, error) {
	switch s {
	case "single_clip":
		return PageSingleClip, nil
	case "composite":
		return PageComposite, nil
	}
	return 0, fmt.Errorf("unknown page %q", s)
}

func (p Page) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Page) UnmarshalText(b []byte) error {
	parsed, err := ParsePage(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ViewContext is which clip is selected and which page is showing.
// Previous is the last selected library clip, restored when leaving the
// composite page.
type ViewContext struct {
	Selected string `json:"selected"`
	Previous string `json:"previous"`
	Page     Page   `json:"page"`
}

// Confirm asks the user to approve a destructive step. Only an explicit
// true proceeds.
type Confirm func(ctx context.Context, prompt string) (bool, error)

// MediaResolver maps a clip's source URI to a local file path.
type MediaResolver interface {
	Resolve(uri string) (string, error)
}

// Config wires a session to its collaborators. Repository and Media may be
// nil.
type Config struct {
	Client     service.Client
	Repository store.Repository
	Media      MediaResolver
	Logger     *slog.Logger
}

type Session struct {
	client service.Client
	repo   store.Repository
	media  MediaResolver
	logger *slog.Logger

	// flow serializes multi round-trip flows.
	flow sync.Mutex

	mu            sync.Mutex
	project       string
	registry      *clip.Registry
	comp          *composition.Composition
	view          ViewContext
	concatChanged bool
}

func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		client: cfg.Client,
		repo:   cfg.Repository,
		media:  cfg.Media,
		logger: logging.WithComponent(logger, "project"),
	}
}

// Open loads a project from the service, replacing any open one. Library
// clips keep the order the service listed them in.
func (s *Session) Open(ctx context.Context, name string) error {
	s.flow.Lock()
	defer s.flow.Unlock()

	var p *service.Project
	err := s.roundTrip(ctx, store.JobTypeOpenProject, name, "", func(ctx context.Context) error {
		var err error
		p, err = s.client.OpenProject(ctx, name)
		return err
	})
	if err != nil {
		return err
	}

	notes := map[string]string{}
	if s.repo != nil {
		if n, err := s.repo.GetClipNotes(ctx, name); err != nil {
			s.logger.Warn("failed to load clip notes", "project", name, "error", err)
		} else {
			notes = n
		}
	}

	library := make([]*clip.State, 0, len(p.Clips))
	for i, b := range p.Clips {
		traj, err := b.Trajectory()
		if err != nil {
			return fmt.Errorf("open %s: clip %s: %w", name, b.Slug, err)
		}
		c := clip.New(clip.Options{
			Slug:                  b.Slug,
			SourceURI:             path.Join(name, b.Slug),
			Stabilizable:          b.Stabilizable,
			BeforeOthersOK:        b.BeforeOthersOK,
			AfterOthersOK:         b.AfterOthersOK,
			SampledPercents:       b.SampledPercents,
			Trajectory:            traj,
			RealFrames:            b.Frames,
			SuggestedNextClips:    b.SuggestedNextClips,
			TrimSuggestionForNext: b.TrimSuggestionForNext,
		})
		c.Color = clip.HueColor(i, len(p.Clips))
		if note, ok := notes[b.Slug]; ok {
			c.Note = note
		}
		library = append(library, c)
	}

	s.mu.Lock()
	s.project = name
	s.registry = clip.NewRegistry(library, newComposite(library))
	s.comp = composition.New()
	s.concatChanged = false
	s.view = ViewContext{Page: PageSingleClip}
	if len(library) > 0 {
		s.view.Selected = library[0].Slug
		s.view.Previous = library[0].Slug
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SetConfig(ctx, store.ConfigKeyLastProject, name); err != nil {
			s.logger.Warn("failed to remember project", "error", err)
		}
	}
	logging.WithProject(s.logger, name).Info("project opened", "clips", len(library))
	return nil
}

// newComposite is the placeholder concatenation clip shown before the first
// concatenation: one identity pose and the first clip's first frame.
func newComposite(library []*clip.State) *clip.State {
	identity, _ := trajectory.PoseFromRaw([]float64{0, 0, 0}, [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	zero := 0.0
	identity.Timestamp = &zero

	var frames []string
	if len(library) > 0 && len(library[0].RealFrames) > 0 {
		frames = []string{library[0].RealFrames[0]}
	}
	return clip.New(clip.Options{
		Slug:            clip.CompositeSlug,
		SampledPercents: []float64{0, 1},
		Trajectory:      trajectory.Trajectory{identity},
		RealFrames:      frames,
	})
}

// Project is the open project's name, or "" when none is open.
func (s *Session) Project() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

func (s *Session) openLocked() error {
	if s.registry == nil {
		return ErrNoProject
	}
	return nil
}

// clipLocked resolves any clip, including the composite.
func (s *Session) clipLocked(slug string) (*clip.State, error) {
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	c, ok := s.registry.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, slug)
	}
	return c, nil
}

// libraryClipLocked resolves a library clip and rejects the composite.
func (s *Session) libraryClipLocked(slug string) (*clip.State, error) {
	c, err := s.clipLocked(slug)
	if err != nil {
		return nil, err
	}
	if c.IsComposite() {
		return nil, ErrCompositeClip
	}
	return c, nil
}

// invalidateCompositeLocked marks the concatenation stale after the picked
// clips or their stabilization changed.
func (s *Session) invalidateCompositeLocked() {
	s.concatChanged = true
	comp := s.registry.Composite()
	comp.IsStabilizable = false
	comp.ResetStabilizationSettings()
}

// Select makes slug the selected clip. The composite switches to the
// composite page, any other clip to the single-clip page.
func (s *Session) Select(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clipLocked(slug)
	if err != nil {
		return err
	}
	s.view.Selected = slug
	if c.IsComposite() {
		s.view.Page = PageComposite
		return nil
	}
	s.view.Page = PageSingleClip
	s.view.Previous = slug
	return nil
}

// SetPage switches pages. The composite page selects the composite; the
// single-clip page restores the previously selected library clip.
func (s *Session) SetPage(p Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	s.view.Page = p
	switch p {
	case PageComposite:
		s.view.Selected = clip.CompositeSlug
	default:
		s.view.Selected = s.view.Previous
	}
	return nil
}

// View returns the current view context.
func (s *Session) View() ViewContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ReorderLibrary moves a library clip in the display order.
func (s *Session) ReorderLibrary(from, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return false, err
	}
	return s.registry.ReorderLibrary(from, to), nil
}

// Pick inserts a library clip into the composition. It reports false when
// the clip's adjacency flags do not allow it anywhere.
func (s *Session) Pick(slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.libraryClipLocked(slug); err != nil {
		return false, err
	}
	ok := s.comp.Insert(s.registry, slug)
	if ok {
		s.invalidateCompositeLocked()
	}
	return ok, nil
}

// Unpick removes a clip from the composition.
func (s *Session) Unpick(slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.libraryClipLocked(slug); err != nil {
		return false, err
	}
	ok := s.comp.Remove(s.registry, slug)
	if ok {
		s.invalidateCompositeLocked()
	}
	return ok, nil
}

// ReorderPicked moves a picked clip. Rejected moves report false.
func (s *Session) ReorderPicked(from, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return false, err
	}
	ok := s.comp.Reorder(s.registry, from, to)
	if ok && from != to {
		s.invalidateCompositeLocked()
	}
	return ok, nil
}

// Picked returns the picked order.
func (s *Session) Picked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.comp == nil {
		return nil
	}
	return s.comp.Order()
}

// SetNote stores a user note for a clip.
func (s *Session) SetNote(ctx context.Context, slug, note string) error {
	s.mu.Lock()
	c, err := s.libraryClipLocked(slug)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	c.Note = note
	project := s.project
	s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	if err := s.repo.SetClipNote(ctx, project, slug, note); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// CombinedTrajectory flattens every library clip's trajectory and then the
// composite's, with a parallel RGB array.
func (s *Session) CombinedTrajectory() (trajectory.Trajectory, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return nil, nil, err
	}
	var traj trajectory.Trajectory
	var colors []float64
	s.registry.Each(func(c *clip.State) {
		traj = append(traj, c.Trajectory...)
		colors = append(colors, c.ColorArray()...)
	})
	return traj, colors, nil
}

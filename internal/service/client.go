// Package service is the client for the stabilization and composition
// service that reconstructs, stabilizes, concatenates and renders clips.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// ErrUnavailable is returned by the stub client for every round trip.
var ErrUnavailable = errors.New("stabilization service not configured")

// Client is every round trip the editing core depends on.
type Client interface {
	OpenProject(ctx context.Context, name string) (*Project, error)
	Stabilize(ctx context.Context, req StabilizeRequest) (*StabilizeResponse, error)
	CancelStabilization(ctx context.Context, slug string) (*CancelResponse, error)
	MaxStabilizationStrength(ctx context.Context, slug string, startPercent, endPercent float64) (int, error)
	PoseAtProgress(ctx context.Context, slug string, percent float64) (trajectory.Pose, error)
	Concatenate(ctx context.Context, order []string) (*ConcatResponse, error)
	RenderFinalVideo(ctx context.Context, name string, order []string) (string, error)
	SuggestClips(ctx context.Context, picked []string) ([]string, error)
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*StubClient)(nil)
)

// RequestError represents a non-2xx answer from the service.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// StubClient is used when no service URL is configured. Every call fails
// with ErrUnavailable.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) unavailable(op string) error {
	c.logger.Warn("service stub: round trip requested", "op", op)
	return ErrUnavailable
}

func (c *StubClient) OpenProject(ctx context.Context, name string) (*Project, error) {
	return nil, c.unavailable("open_project")
}

func (c *StubClient) Stabilize(ctx context.Context, req StabilizeRequest) (*StabilizeResponse, error) {
	return nil, c.unavailable("stabilize_video")
}

func (c *StubClient) CancelStabilization(ctx context.Context, slug string) (*CancelResponse, error) {
	return nil, c.unavailable("cancel_stabilization")
}

func (c *StubClient) MaxStabilizationStrength(ctx context.Context, slug string, startPercent, endPercent float64) (int, error) {
	return 0, c.unavailable("get_maximum_stabilization_strength")
}

func (c *StubClient) PoseAtProgress(ctx context.Context, slug string, percent float64) (trajectory.Pose, error) {
	return trajectory.Pose{}, c.unavailable("get_pos_and_rot_at_progress_percent")
}

func (c *StubClient) Concatenate(ctx context.Context, order []string) (*ConcatResponse, error) {
	return nil, c.unavailable("concatenate_video")
}

func (c *StubClient) RenderFinalVideo(ctx context.Context, name string, order []string) (string, error) {
	return "", c.unavailable("render_final_video")
}

func (c *StubClient) SuggestClips(ctx context.Context, picked []string) ([]string, error) {
	return nil, c.unavailable("suggest_clips")
}

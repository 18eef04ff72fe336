package api

import (
	"time"

	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/store"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string       `json:"state"`
	Project      string       `json:"project,omitempty"`
	LibraryCount int          `json:"library_count"`
	PickedCount  int          `json:"picked_count"`
	JobsRunning  int          `json:"jobs_running"`
	LastError    string       `json:"last_error,omitempty"`
	ActiveJob    *JobResponse `json:"active_job,omitempty"`
}

type OpenProjectRequest struct {
	Name string `json:"name"`
}

type SelectRequest struct {
	Slug string `json:"slug"`
}

type PageRequest struct {
	Page string `json:"page"`
}

type SlugRequest struct {
	Slug string `json:"slug"`
}

type MoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type CompositionResponse struct {
	Accepted bool     `json:"accepted"`
	Picked   []string `json:"picked"`
}

type LibraryResponse struct {
	Accepted bool     `json:"accepted"`
	Library  []string `json:"library"`
}

type StabilizationRequest struct {
	On bool `json:"on"`
}

type TrimRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type TrimResponse struct {
	Changed bool   `json:"changed"`
	Warning string `json:"warning,omitempty"`
}

type StrengthRequest struct {
	Strength int `json:"strength"`
}

type StrengthResponse struct {
	Strength int `json:"strength"`
}

type SmoothingRequest struct {
	Strength float64 `json:"strength"`
}

type VelocityPointsRequest struct {
	Points []curve.Point `json:"points"`
}

type PointIndexResponse struct {
	Index int `json:"index"`
}

// SeekRequest carries either a progress over the clip's own trajectory or,
// when Original is set, an absolute percent of the source footage.
type SeekRequest struct {
	Progress float64  `json:"progress"`
	Original *float64 `json:"original,omitempty"`
}

type TickRequest struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

type ProgressResponse struct {
	Progress float64 `json:"progress"`
}

type PlayingResponse struct {
	Playing bool `json:"playing"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

type ConcatenateRequest struct {
	Confirm bool `json:"confirm"`
}

type RenderRequest struct {
	Name string `json:"name"`
}

type RenderResponse struct {
	Message string `json:"message"`
}

type SuggestResponse struct {
	Picked []string `json:"picked"`
}

type TrajectoryResponse struct {
	Poses  trajectory.Trajectory `json:"poses"`
	Colors []float64             `json:"colors"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Project    string `json:"project,omitempty"`
	ClipSlug   string `json:"clip_slug,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *store.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		Project:    j.Project,
		ClipSlug:   j.ClipSlug,
		Error:      j.Error,
		DurationMs: j.DurationMs,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

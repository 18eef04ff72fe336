package store

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeOpenProject = "open_project"
	JobTypeStabilize   = "stabilize"
	JobTypeCancel      = "cancel_stabilization"
	JobTypeMaxStrength = "max_strength"
	JobTypePose        = "pose_at_progress"
	JobTypeConcatenate = "concatenate"
	JobTypeRender      = "render"
	JobTypeSuggest     = "suggest_clips"

	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one service round trip.
type Job struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Project    string    `json:"project,omitempty"`
	ClipSlug   string    `json:"clip_slug,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ClipNote is a user note attached to a clip of a project.
type ClipNote struct {
	Project   string    `json:"project"`
	Slug      string    `json:"slug"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}

package service

import (
	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

// ClipBundle is one clip of an open_project response.
type ClipBundle struct {
	Slug                  string            `json:"-"`
	Stabilizable          bool              `json:"is_stabilizable"`
	BeforeOthersOK        bool              `json:"is_before_other_video_ok"`
	AfterOthersOK         bool              `json:"is_after_other_video_ok"`
	SampledPercents       []float64         `json:"sampled_percents"`
	Frames                []string          `json:"frames"`
	Pos                   [][]float64       `json:"pos"`
	Rot                   [][][]float64     `json:"rot"`
	TS                    []float64         `json:"ts"`
	SuggestedNextClips    []string          `json:"suggestion_for_next_clip"`
	TrimSuggestionForNext map[string][2]int `json:"trim_for_suggested_clips"`
}

// Trajectory converts the bundle's raw arrays. Freshly opened clips are not
// resampled, so original timestamps equal the timestamps.
func (b ClipBundle) Trajectory() (trajectory.Trajectory, error) {
	return trajectory.FromRaw(b.Pos, b.Rot, b.TS, b.TS)
}

// Project is an opened project with clips in the order the service sent them.
type Project struct {
	Name  string
	Clips []ClipBundle
}

type openProjectRequest struct {
	ProjectName string `json:"project_name"`
}

// StabilizeRequest asks the service to stabilize a clip over a percent
// window with a velocity adjustment curve.
type StabilizeRequest struct {
	Slug         string
	Strength     int
	Curve        []curve.Point
	StartPercent float64
	EndPercent   float64
}

type stabilizeWire struct {
	VideoName      string    `json:"video_name"`
	StartPercent   float64   `json:"start_percent"`
	EndPercent     float64   `json:"end_percent"`
	Strength       int       `json:"stabilization_strength"`
	VelocityCurveX []float64 `json:"local_velocity_adjustment_curve_x"`
	VelocityCurveY []float64 `json:"local_velocity_adjustment_curve_y"`
}

func (r StabilizeRequest) wire() stabilizeWire {
	w := stabilizeWire{
		VideoName:      r.Slug,
		StartPercent:   r.StartPercent,
		EndPercent:     r.EndPercent,
		Strength:       r.Strength,
		VelocityCurveX: make([]float64, len(r.Curve)),
		VelocityCurveY: make([]float64, len(r.Curve)),
	}
	for i, p := range r.Curve {
		w.VelocityCurveX[i] = p.X
		w.VelocityCurveY[i] = p.Y
	}
	return w
}

// StabilizeResponse is the answer to stabilize_video.
type StabilizeResponse struct {
	VideoName            string        `json:"video_name"`
	Pos                  [][]float64   `json:"pos"`
	Rot                  [][][]float64 `json:"rot"`
	TS                   []float64     `json:"ts"`
	OriginalTS           []float64     `json:"original_video_ts"`
	MaxStrength          int           `json:"max_stabilization_strength"`
	SmoothingPercents    []float64     `json:"velocity_smoothing_percents"`
	SmoothingMultipliers []float64     `json:"velocity_smoothing_multipliers"`
}

// Trajectory converts the response's raw arrays.
func (r StabilizeResponse) Trajectory() (trajectory.Trajectory, error) {
	return trajectory.FromRaw(r.Pos, r.Rot, r.TS, r.OriginalTS)
}

// CancelResponse is the answer to cancel_stabilization: the clip's
// unstabilized trajectory and frames.
type CancelResponse struct {
	Frames     []string      `json:"frames"`
	Pos        [][]float64   `json:"pos"`
	Rot        [][][]float64 `json:"rot"`
	TS         []float64     `json:"ts"`
	OriginalTS []float64     `json:"original_video_ts"`
}

// Trajectory converts the response's raw arrays.
func (r CancelResponse) Trajectory() (trajectory.Trajectory, error) {
	return trajectory.FromRaw(r.Pos, r.Rot, r.TS, r.OriginalTS)
}

type videoRequest struct {
	VideoName string `json:"video_name"`
}

type strengthRequest struct {
	VideoName    string  `json:"video_name"`
	StartPercent float64 `json:"start_percent"`
	EndPercent   float64 `json:"end_percent"`
}

type strengthResponse struct {
	Max int `json:"maximum_stabilization_strength"`
}

type poseRequest struct {
	VideoName string  `json:"video_name"`
	Percent   float64 `json:"percent"`
}

type poseResponse struct {
	Pos []float64   `json:"pos"`
	Rot [][]float64 `json:"rot"`
}

type concatRequest struct {
	Order []string `json:"concatenation_order"`
}

// ConcatResponse is the combined trajectory of a concatenation.
type ConcatResponse struct {
	Pos             [][]float64   `json:"pos"`
	Rot             [][][]float64 `json:"rot"`
	TS              []float64     `json:"ts"`
	Frames          []string      `json:"frames"`
	SampledPercents []float64     `json:"sampled_percents"`
}

// Trajectory converts the response's raw arrays.
func (r ConcatResponse) Trajectory() (trajectory.Trajectory, error) {
	return trajectory.FromRaw(r.Pos, r.Rot, r.TS, r.TS)
}

type renderRequest struct {
	FinalVideoName string   `json:"final_video_name"`
	Order          []string `json:"concatenation_order"`
}

type renderResponse struct {
	Msg string `json:"msg"`
}

type suggestRequest struct {
	PickedVideos []string `json:"picked_videos"`
}

type suggestResponse struct {
	PickedVideos []string `json:"picked_videos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/trajcut/trajcut-agent/internal/curve"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL+"/", "test-token", 5*time.Second, testLogger())
}

const projectPayload = `{
  "walk_3": {
    "is_stabilizable": true,
    "is_before_other_video_ok": true,
    "is_after_other_video_ok": false,
    "sampled_percents": [0, 0.5, 1],
    "frames": ["a.jpg", "b.jpg"],
    "pos": [[0, 0, 0], null],
    "rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]], null],
    "ts": [0, 0.5],
    "suggestion_for_next_clip": ["bridge"],
    "trim_for_suggested_clips": {"bridge": [12, 3]}
  },
  "bridge": {
    "is_stabilizable": false,
    "is_before_other_video_ok": false,
    "is_after_other_video_ok": true,
    "sampled_percents": null,
    "frames": [],
    "pos": [],
    "rot": [],
    "ts": [],
    "suggestion_for_next_clip": [],
    "trim_for_suggested_clips": {}
  }
}`

func TestHTTPClient_OpenProject_KeepsKeyOrder(t *testing.T) {
	var received openProjectRequest
	var receivedAuth string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open_project" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Write([]byte(projectPayload))
	})

	p, err := client.OpenProject(context.Background(), "alps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.ProjectName != "alps" {
		t.Errorf("project_name = %q, want alps", received.ProjectName)
	}
	if receivedAuth != "Bearer test-token" {
		t.Errorf("auth = %q", receivedAuth)
	}
	if len(p.Clips) != 2 || p.Clips[0].Slug != "walk_3" || p.Clips[1].Slug != "bridge" {
		t.Fatalf("clips = %+v", p.Clips)
	}

	walk := p.Clips[0]
	if !walk.Stabilizable || !walk.BeforeOthersOK || walk.AfterOthersOK {
		t.Errorf("flags = %v %v %v", walk.Stabilizable, walk.BeforeOthersOK, walk.AfterOthersOK)
	}
	if walk.TrimSuggestionForNext["bridge"] != [2]int{12, 3} {
		t.Errorf("trim suggestion = %v", walk.TrimSuggestionForNext)
	}

	traj, err := walk.Trajectory()
	if err != nil {
		t.Fatalf("Trajectory error = %v", err)
	}
	if len(traj) != 2 || !traj[0].HasPose() || traj[1].HasPose() {
		t.Errorf("trajectory gaps not preserved: %+v", traj)
	}
	if p.Clips[1].SampledPercents != nil {
		t.Errorf("null sampled_percents decoded as %v", p.Clips[1].SampledPercents)
	}
}

func TestHTTPClient_Stabilize_WireFormat(t *testing.T) {
	var received map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stabilize_video" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{
			"video_name": "walk_3",
			"pos": [[1, 2, 3]],
			"rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]]],
			"ts": [0],
			"original_video_ts": [0.25],
			"max_stabilization_strength": 7,
			"velocity_smoothing_percents": [0, 1],
			"velocity_smoothing_multipliers": [1, 1.5]
		}`))
	})

	res, err := client.Stabilize(context.Background(), StabilizeRequest{
		Slug:         "walk_3",
		Strength:     3,
		Curve:        []curve.Point{{X: 0, Y: 1}, {X: 1, Y: 2}},
		StartPercent: 0.1,
		EndPercent:   0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{
		"video_name", "start_percent", "end_percent", "stabilization_strength",
		"local_velocity_adjustment_curve_x", "local_velocity_adjustment_curve_y",
	} {
		if _, ok := received[key]; !ok {
			t.Errorf("request missing %q", key)
		}
	}
	if ys, _ := received["local_velocity_adjustment_curve_y"].([]any); len(ys) != 2 || ys[1] != 2.0 {
		t.Errorf("curve y = %v", received["local_velocity_adjustment_curve_y"])
	}

	if res.MaxStrength != 7 || len(res.SmoothingMultipliers) != 2 {
		t.Errorf("response = %+v", res)
	}
	traj, err := res.Trajectory()
	if err != nil {
		t.Fatalf("Trajectory error = %v", err)
	}
	if *traj[0].OriginalTimestamp != 0.25 {
		t.Errorf("original ts = %v", *traj[0].OriginalTimestamp)
	}
}

func TestHTTPClient_SmallRoundTrips(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_maximum_stabilization_strength":
			w.Write([]byte(`{"maximum_stabilization_strength": 5}`))
		case "/get_pos_and_rot_at_progress_percent":
			w.Write([]byte(`{"pos": [4, 5, 6], "rot": [[1, 0, 0], [0, 1, 0], [0, 0, 1]]}`))
		case "/suggest_clips":
			var in suggestRequest
			json.NewDecoder(r.Body).Decode(&in)
			json.NewEncoder(w).Encode(suggestResponse{PickedVideos: append(in.PickedVideos, "extra")})
		case "/render_final_video":
			w.Write([]byte(`{"msg": "done"}`))
		case "/concatenate_video":
			w.Write([]byte(`{"pos": [], "rot": [], "ts": [], "frames": ["f"], "sampled_percents": [0, 1]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	if max, err := client.MaxStabilizationStrength(ctx, "a", 0, 1); err != nil || max != 5 {
		t.Errorf("MaxStabilizationStrength = %d, %v", max, err)
	}
	pose, err := client.PoseAtProgress(ctx, "a", 0.3)
	if err != nil || pose.Position == nil || pose.Position.Y != 5 {
		t.Errorf("PoseAtProgress = %+v, %v", pose, err)
	}
	if got, err := client.SuggestClips(ctx, []string{"a"}); err != nil || len(got) != 2 || got[1] != "extra" {
		t.Errorf("SuggestClips = %v, %v", got, err)
	}
	if msg, err := client.RenderFinalVideo(ctx, "final", []string{"a"}); err != nil || msg != "done" {
		t.Errorf("RenderFinalVideo = %q, %v", msg, err)
	}
	if res, err := client.Concatenate(ctx, []string{"a"}); err != nil || len(res.SampledPercents) != 2 {
		t.Errorf("Concatenate = %+v, %v", res, err)
	}
}

func TestHTTPClient_ReturnsRequestError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "KeyError: 'walk_9'"}`))
	})

	_, err := client.CancelStabilization(context.Background(), "walk_9")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.Op != "cancel_stabilization" || reqErr.StatusCode != http.StatusBadRequest {
		t.Errorf("error = %+v", reqErr)
	}
	if !strings.Contains(reqErr.Body, "walk_9") {
		t.Errorf("body = %q", reqErr.Body)
	}
	if reqErr.IsRetryable() {
		t.Error("4xx should not be retryable")
	}
}

func TestRequestError_IsRetryable(t *testing.T) {
	if !(&RequestError{StatusCode: http.StatusBadGateway}).IsRetryable() {
		t.Fatal("expected 5xx error to be retryable")
	}
}

func TestHTTPClient_MalformedProject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["not", "an", "object"]`))
	})

	if _, err := client.OpenProject(context.Background(), "alps"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStubClient_Unavailable(t *testing.T) {
	var c Client = NewStubClient(testLogger())

	if _, err := c.OpenProject(context.Background(), "alps"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if _, err := c.SuggestClips(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trajcut/trajcut-agent/internal/db"
	"github.com/trajcut/trajcut-agent/internal/media"
	"github.com/trajcut/trajcut-agent/internal/project"
	"github.com/trajcut/trajcut-agent/internal/service"
	"github.com/trajcut/trajcut-agent/internal/store"
)

const openProjectPayload = `{
  "walk": {
    "is_stabilizable": true,
    "is_before_other_video_ok": true,
    "is_after_other_video_ok": true,
    "sampled_percents": [0, 0.125, 0.25, 0.375, 0.5, 0.625, 0.75, 0.875, 1],
    "frames": ["w0.jpg", "w1.jpg", "w2.jpg"],
    "pos": [[0, 0, 0], [1, 0, 0], [2, 0, 0]],
    "rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]], [[1, 0, 0], [0, 1, 0], [0, 0, 1]], [[1, 0, 0], [0, 1, 0], [0, 0, 1]]],
    "ts": [0, 1, 2],
    "suggestion_for_next_clip": [],
    "trim_for_suggested_clips": {}
  },
  "ridge": {
    "is_stabilizable": true,
    "is_before_other_video_ok": true,
    "is_after_other_video_ok": true,
    "sampled_percents": [0, 0.25, 0.5, 0.75, 1],
    "frames": ["r0.jpg"],
    "pos": [[0, 0, 0], null],
    "rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]], null],
    "ts": [0, 4],
    "suggestion_for_next_clip": [],
    "trim_for_suggested_clips": {}
  }
}`

const trajectoryPayload = `{
  "pos": [[0, 0, 0], [1, 1, 0], [2, 2, 0]],
  "rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]], [[1, 0, 0], [0, 1, 0], [0, 0, 1]], [[1, 0, 0], [0, 1, 0], [0, 0, 1]]],
  "ts": [0, 0.5, 1],
  "original_video_ts": [0, 1, 2]`

// fakeStabilizationService answers the service's POST endpoints with fixed
// payloads. Ops listed in fail answer 500.
type fakeStabilizationService struct {
	mu   sync.Mutex
	ops  []string
	fail map[string]bool
}

func (f *fakeStabilizationService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	f.ops = append(f.ops, op)
	failing := f.fail[op]
	f.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "reconstruction crashed"}`))
		return
	}

	switch op {
	case "open_project":
		w.Write([]byte(openProjectPayload))
	case "stabilize_video":
		w.Write([]byte(trajectoryPayload + `,
  "video_name": "walk",
  "max_stabilization_strength": 3,
  "velocity_smoothing_percents": [0, 1],
  "velocity_smoothing_multipliers": [1, 1]
}`))
	case "cancel_stabilization":
		w.Write([]byte(trajectoryPayload + `, "frames": ["w0.jpg", "w1.jpg", "w2.jpg"]}`))
	case "get_maximum_stabilization_strength":
		w.Write([]byte(`{"maximum_stabilization_strength": 2}`))
	case "get_pos_and_rot_at_progress_percent":
		w.Write([]byte(`{"pos": [5, 5, 5], "rot": [[1, 0, 0], [0, 1, 0], [0, 0, 1]]}`))
	case "concatenate_video":
		w.Write([]byte(`{
  "pos": [[0, 0, 0], [1, 0, 0]],
  "rot": [[[1, 0, 0], [0, 1, 0], [0, 0, 1]], [[1, 0, 0], [0, 1, 0], [0, 0, 1]]],
  "ts": [0, 3],
  "frames": ["f0.jpg", "f1.jpg"],
  "sampled_percents": [0, 0.5, 1]
}`))
	case "render_final_video":
		w.Write([]byte(`{"msg": "render queued"}`))
	case "suggest_clips":
		w.Write([]byte(`{"picked_videos": ["ridge", "walk"]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "unknown op"}`))
	}
}

type testEnv struct {
	router    http.Handler
	repo      store.Repository
	token     string
	service   *fakeStabilizationService
	mediaRoot string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the router to a real session, a SQLite store and the
// HTTP service client talking to a fake service. A nil client selects it.
func newTestEnv(t *testing.T, client service.Client) *testEnv {
	t.Helper()
	logger := discardLogger()

	database, err := db.New(filepath.Join(t.TempDir(), "trajcut.db"), logger)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := store.NewRepository(database.Conn())

	token, err := store.EnsureAuthToken(context.Background(), repo)
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}

	fake := &fakeStabilizationService{fail: map[string]bool{}}
	if client == nil {
		srv := httptest.NewServer(fake)
		t.Cleanup(srv.Close)
		client = service.NewHTTPClient(srv.URL, "", 5*time.Second, logger)
	}

	mediaRoot := t.TempDir()
	resolver := media.NewResolver(mediaRoot)
	session := project.New(project.Config{Client: client, Repository: repo, Media: resolver, Logger: logger})

	return &testEnv{
		router: NewRouter(ServerConfig{
			Session:     session,
			Repository:  repo,
			Resolver:    resolver,
			MediaServer: media.NewServer(logger),
			Logger:      logger,
			StartTime:   time.Now(),
			Version:     "test",
		}),
		repo:      repo,
		token:     token,
		service:   fake,
		mediaRoot: mediaRoot,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) open(t *testing.T) {
	t.Helper()
	if rr := e.do(t, http.MethodPost, "/project/open", OpenProjectRequest{Name: "alps"}); rr.Code != http.StatusOK {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body.String())
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	if code == "" {
		return
	}
	if got := decodeJSONBody(t, rr)["code"]; got != code {
		t.Errorf("code = %v, want %s", got, code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	expectCode(t, rr, http.StatusOK, "")
	if body := decodeJSONBody(t, rr); body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
}

func TestRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/status", "/project", "/clips", "/jobs"} {
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rr.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/status", nil)
	expectCode(t, rr, http.StatusOK, "")
	if got := decodeJSONBody(t, rr)["state"]; got != "no_project" {
		t.Errorf("state = %v, want no_project", got)
	}

	env.open(t)
	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"})

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "idle" || body["project"] != "alps" || body["library_count"] != float64(2) || body["picked_count"] != float64(1) {
		t.Errorf("status = %v", body)
	}
}

func TestNoProject(t *testing.T) {
	env := newTestEnv(t, nil)

	expectCode(t, env.do(t, http.MethodGet, "/clips", nil), http.StatusConflict, "NO_PROJECT")
	expectCode(t, env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"}), http.StatusConflict, "NO_PROJECT")
}

func TestOpenProject(t *testing.T) {
	env := newTestEnv(t, nil)

	expectCode(t, env.do(t, http.MethodPost, "/project/open", OpenProjectRequest{}), http.StatusBadRequest, "BAD_REQUEST")

	rr := env.do(t, http.MethodPost, "/project/open", OpenProjectRequest{Name: "alps"})
	expectCode(t, rr, http.StatusOK, "")

	var snap project.SessionView
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Project != "alps" || len(snap.Library) != 2 || snap.Library[0] != "walk" || snap.View.Selected != "walk" {
		t.Errorf("snapshot = %+v", snap)
	}

	var clips []project.ClipView
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/clips", nil).Body.Bytes(), &clips); err != nil {
		t.Fatal(err)
	}
	if len(clips) != 3 || !clips[2].Composite || clips[0].Color == clips[1].Color {
		t.Errorf("clips = %+v", clips)
	}
}

func TestViewRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	rr := env.do(t, http.MethodPost, "/view/page", PageRequest{Page: "composite"})
	expectCode(t, rr, http.StatusOK, "")
	if body := decodeJSONBody(t, rr); body["page"] != "composite" || body["selected"] != ".temp_final_video" {
		t.Errorf("view = %v", body)
	}

	expectCode(t, env.do(t, http.MethodPost, "/view/page", PageRequest{Page: "gallery"}), http.StatusBadRequest, "BAD_REQUEST")
	expectCode(t, env.do(t, http.MethodPost, "/view/select", SelectRequest{Slug: "nope"}), http.StatusNotFound, "NOT_FOUND")

	rr = env.do(t, http.MethodPost, "/library/reorder", MoveRequest{From: 1, To: 0})
	if body := decodeJSONBody(t, rr); body["accepted"] != true || body["library"].([]interface{})[0] != "ridge" {
		t.Errorf("reorder = %v", body)
	}
}

func TestCompositionFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	rr := env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"})
	if body := decodeJSONBody(t, rr); body["accepted"] != true {
		t.Fatalf("pick walk = %v", body)
	}
	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "ridge"})

	expectCode(t, env.do(t, http.MethodPost, "/composition/concatenate", nil), http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodPost, "/composition/concatenate", nil), http.StatusConflict, "CONFIRMATION_REQUIRED")
	expectCode(t, env.do(t, http.MethodPost, "/composition/concatenate", ConcatenateRequest{Confirm: true}), http.StatusOK, "")

	var comp project.ClipView
	json.Unmarshal(env.do(t, http.MethodGet, "/clips/.temp_final_video", nil).Body.Bytes(), &comp)
	if len(comp.SampledPercents) != 3 || comp.SourceDuration != 3 {
		t.Errorf("composite after concat = %+v", comp)
	}

	rr = env.do(t, http.MethodPost, "/composition/suggest", nil)
	expectCode(t, rr, http.StatusOK, "")
	if got := decodeJSONBody(t, rr)["picked"].([]interface{}); len(got) != 2 || got[0] != "ridge" {
		t.Errorf("suggested = %v", got)
	}

	rr = env.do(t, http.MethodPost, "/composition/reorder", MoveRequest{From: 0, To: 5})
	if body := decodeJSONBody(t, rr); body["accepted"] != false {
		t.Errorf("out of range reorder = %v", body)
	}

	rr = env.do(t, http.MethodPost, "/composition/render", RenderRequest{Name: "alps final"})
	expectCode(t, rr, http.StatusOK, "")
	if got := decodeJSONBody(t, rr)["message"]; got != "render queued" {
		t.Errorf("render message = %v", got)
	}
	expectCode(t, env.do(t, http.MethodPost, "/composition/render", RenderRequest{Name: "\t"}), http.StatusBadRequest, "BAD_REQUEST")

	rr = env.do(t, http.MethodPost, "/composition/unpick", SlugRequest{Slug: "walk"})
	if body := decodeJSONBody(t, rr); body["accepted"] != true || len(body["picked"].([]interface{})) != 1 {
		t.Errorf("unpick = %v", body)
	}

	var jobs JobsResponse
	json.Unmarshal(env.do(t, http.MethodGet, "/jobs", nil).Body.Bytes(), &jobs)
	if len(jobs.Jobs) < 5 {
		t.Fatalf("jobs = %d, want at least 5", len(jobs.Jobs))
	}
	rr = env.do(t, http.MethodGet, "/jobs/"+jobs.Jobs[0].ID, nil)
	expectCode(t, rr, http.StatusOK, "")
	if got := decodeJSONBody(t, rr)["type"]; got != store.JobTypeRender {
		t.Errorf("latest job type = %v, want render", got)
	}
	expectCode(t, env.do(t, http.MethodGet, "/jobs/missing", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestClipEditing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	expectCode(t, env.do(t, http.MethodGet, "/clips/nope", nil), http.StatusNotFound, "NOT_FOUND")
	expectCode(t, env.do(t, http.MethodPut, "/clips/walk/trim", TrimRequest{Start: 2, End: 8}), http.StatusBadRequest, "BAD_REQUEST")

	rr := env.do(t, http.MethodPost, "/clips/walk/stabilization", StabilizationRequest{On: true})
	expectCode(t, rr, http.StatusOK, "")
	var c project.ClipView
	json.Unmarshal(rr.Body.Bytes(), &c)
	if !c.IsStabilized || c.MaxStabilizationStrength != 3 {
		t.Fatalf("after stabilize: %+v", c)
	}

	rr = env.do(t, http.MethodPut, "/clips/walk/trim", TrimRequest{Start: 2, End: 8})
	expectCode(t, rr, http.StatusOK, "")
	if body := decodeJSONBody(t, rr); body["changed"] != true || body["warning"] != nil {
		t.Errorf("trim = %v", body)
	}
	expectCode(t, env.do(t, http.MethodPut, "/clips/walk/trim", TrimRequest{Start: 5, End: 3}), http.StatusBadRequest, "BAD_REQUEST")
	expectCode(t, env.do(t, http.MethodPost, "/clips/walk/trim/release", nil), http.StatusOK, "")

	rr = env.do(t, http.MethodPut, "/clips/walk/strength", StrengthRequest{Strength: 9})
	if got := decodeJSONBody(t, rr)["strength"]; got != float64(2) {
		t.Errorf("strength = %v, want clamped to the refreshed max 2", got)
	}

	rr = env.do(t, http.MethodPost, "/clips/walk/velocity/points", map[string]float64{"x": 0.5, "y": 1.5})
	expectCode(t, rr, http.StatusCreated, "")
	if got := decodeJSONBody(t, rr)["index"]; got != float64(1) {
		t.Errorf("added point index = %v", got)
	}
	rr = env.do(t, http.MethodPut, "/clips/walk/velocity/points/1", map[string]float64{"x": 0.25, "y": 2})
	expectCode(t, rr, http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodDelete, "/clips/walk/velocity/points/0", nil), http.StatusBadRequest, "BAD_REQUEST")
	expectCode(t, env.do(t, http.MethodDelete, "/clips/walk/velocity/points/x", nil), http.StatusBadRequest, "BAD_REQUEST")
	if rr := env.do(t, http.MethodDelete, "/clips/walk/velocity/points/1", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete point status = %d", rr.Code)
	}

	expectCode(t, env.do(t, http.MethodPost, "/clips/walk/apply", nil), http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodPut, "/clips/walk/smoothing", SmoothingRequest{Strength: 0.5}), http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodPut, "/clips/walk/smoothing", SmoothingRequest{Strength: 2}), http.StatusBadRequest, "BAD_REQUEST")

	rr = env.do(t, http.MethodPost, "/clips/walk/play", nil)
	if got := decodeJSONBody(t, rr)["playing"]; got != true {
		t.Errorf("playing = %v", got)
	}
	rr = env.do(t, http.MethodPost, "/clips/walk/tick", TickRequest{ElapsedMs: 250})
	if got := decodeJSONBody(t, rr)["progress"].(float64); got <= 0 {
		t.Errorf("progress after tick = %v", got)
	}
	expectCode(t, env.do(t, http.MethodPost, "/clips/walk/tick", TickRequest{ElapsedMs: -1}), http.StatusBadRequest, "BAD_REQUEST")

	original := 0.05
	rr = env.do(t, http.MethodPost, "/clips/walk/seek", SeekRequest{Original: &original})
	expectCode(t, rr, http.StatusOK, "")
	json.Unmarshal(rr.Body.Bytes(), &c)
	if c.Playhead.External == nil {
		t.Errorf("seek outside the stabilized window did not fetch a pose: %+v", c.Playhead)
	}

	rr = env.do(t, http.MethodPut, "/clips/walk/note", NoteRequest{Note: "first light"})
	json.Unmarshal(rr.Body.Bytes(), &c)
	if c.Note != "first light" {
		t.Errorf("note = %q", c.Note)
	}

	rr = env.do(t, http.MethodGet, "/clips/walk/trajectory", nil)
	var traj TrajectoryResponse
	json.Unmarshal(rr.Body.Bytes(), &traj)
	if len(traj.Poses) != 3 || len(traj.Colors) != 9 {
		t.Errorf("trajectory = %d poses, %d colors", len(traj.Poses), len(traj.Colors))
	}
}

func TestToggleComposite_Routes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	expectCode(t, env.do(t, http.MethodPost, "/clips/.temp_final_video/stabilization", StabilizationRequest{On: true}), http.StatusBadRequest, "BAD_REQUEST")

	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"})
	rr := env.do(t, http.MethodPost, "/clips/.temp_final_video/stabilization", StabilizationRequest{On: true})
	expectCode(t, rr, http.StatusOK, "")
	if body := decodeJSONBody(t, rr); body["is_stabilized"] != true {
		t.Errorf("composite = %v", body)
	}

	var walk project.ClipView
	json.Unmarshal(env.do(t, http.MethodGet, "/clips/walk", nil).Body.Bytes(), &walk)
	if !walk.IsStabilized || !walk.IsForced {
		t.Errorf("walk stabilized %v forced %v", walk.IsStabilized, walk.IsForced)
	}
}

func TestServiceErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)
	env.service.mu.Lock()
	env.service.fail["stabilize_video"] = true
	env.service.mu.Unlock()

	rr := env.do(t, http.MethodPost, "/clips/walk/stabilization", StabilizationRequest{On: true})
	expectCode(t, rr, http.StatusBadGateway, "SERVICE_ERROR")
	if !strings.Contains(decodeJSONBody(t, rr)["error"].(string), "reconstruction crashed") {
		t.Errorf("error = %s", rr.Body.String())
	}

	var walk project.ClipView
	json.Unmarshal(env.do(t, http.MethodGet, "/clips/walk", nil).Body.Bytes(), &walk)
	if walk.IsStabilized {
		t.Error("failed toggle left the clip stabilized")
	}

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", nil))
	if !strings.Contains(body["last_error"].(string), "reconstruction crashed") {
		t.Errorf("status last_error = %v", body["last_error"])
	}
}

func TestServiceUnavailable(t *testing.T) {
	env := newTestEnv(t, service.NewStubClient(discardLogger()))

	expectCode(t, env.do(t, http.MethodPost, "/project/open", OpenProjectRequest{Name: "alps"}), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE")
}

func TestMediaRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	dir := filepath.Join(env.mediaRoot, "alps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "walk.mp4"), []byte("footage"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, http.MethodGet, "/media/walk", nil)
	expectCode(t, rr, http.StatusOK, "")
	if rr.Body.String() != "footage" {
		t.Errorf("body = %q", rr.Body.String())
	}

	expectCode(t, env.do(t, http.MethodGet, "/media/ridge", nil), http.StatusNotFound, "MEDIA_UNAVAILABLE")
	expectCode(t, env.do(t, http.MethodGet, "/media/.temp_final_video", nil), http.StatusNotFound, "NOT_FOUND")

	req := httptest.NewRequest(http.MethodGet, "/media/walk", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	req.Header.Set("Authorization", "Bearer "+env.token)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	expectCode(t, rr, http.StatusForbidden, "FORBIDDEN")
}

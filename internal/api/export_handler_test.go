package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trajcut/trajcut-agent/internal/export"
)

func TestExportEDL_HappyPath(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	dir := filepath.Join(env.mediaRoot, "alps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	walkPath := filepath.Join(dir, "walk.mp4")
	if err := os.WriteFile(walkPath, []byte("footage"), 0o644); err != nil {
		t.Fatal(err)
	}

	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"})
	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "ridge"})

	outDir := t.TempDir()
	rr := env.do(t, http.MethodPost, "/composition/export", ExportRequest{Format: "edl", OutputDir: outDir, FrameRate: 25})
	expectCode(t, rr, http.StatusOK, "")

	body := decodeJSONBody(t, rr)
	if body["clip_count"] != float64(2) || body["format"] != "edl" {
		t.Errorf("result = %v", body)
	}
	if skipped, ok := body["skipped_clips"].([]interface{}); !ok || len(skipped) != 0 {
		t.Errorf("skipped_clips = %v, want empty list", body["skipped_clips"])
	}

	want := filepath.Join(outDir, "alps.edl")
	if body["output_path"] != want {
		t.Errorf("output_path = %v, want %s", body["output_path"], want)
	}
	raw, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read edl: %v", err)
	}
	edl := string(raw)
	for _, line := range []string{
		"TITLE: alps",
		"* MEDIA PATH:  " + walkPath,
		"* MEDIA PATH:  alps/ridge",
		"00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00",
		"00:00:00:00 00:00:04:00 00:00:02:00 00:00:06:00",
	} {
		if !strings.Contains(edl, line) {
			t.Errorf("edl missing %q:\n%s", line, edl)
		}
	}
}

func TestExportEDL_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)
	env.do(t, http.MethodPost, "/composition/pick", SlugRequest{Slug: "walk"})

	outDir := t.TempDir()
	tests := []struct {
		name string
		req  ExportRequest
	}{
		{"unsupported format", ExportRequest{Format: "xml", OutputDir: outDir}},
		{"missing dir", ExportRequest{}},
		{"traversal", ExportRequest{OutputDir: outDir + "/../x"}},
		{"nonexistent dir", ExportRequest{OutputDir: filepath.Join(outDir, "nope")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, env.do(t, http.MethodPost, "/composition/export", tt.req), http.StatusBadRequest, "BAD_REQUEST")
		})
	}
}

func TestExportEDL_EmptyComposition(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t)

	rr := env.do(t, http.MethodPost, "/composition/export", ExportRequest{OutputDir: t.TempDir()})
	expectCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
	if !strings.Contains(decodeJSONBody(t, rr)["error"].(string), export.ErrNoSegments.Error()) {
		t.Errorf("error = %s", rr.Body.String())
	}
}

func TestExportEDL_NoProject(t *testing.T) {
	env := newTestEnv(t, nil)

	expectCode(t, env.do(t, http.MethodPost, "/composition/export", ExportRequest{OutputDir: t.TempDir()}), http.StatusConflict, "NO_PROJECT")
}

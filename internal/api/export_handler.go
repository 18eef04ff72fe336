package api

import (
	"net/http"
	"strings"

	"github.com/trajcut/trajcut-agent/internal/export"
)

// ExportRequest asks for an EDL of the picked composition.
type ExportRequest struct {
	Format    string  `json:"format"`
	Title     string  `json:"title,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	OutputDir string  `json:"output_dir"`
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.Format != "" && strings.ToLower(req.Format) != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		res, err := cfg.Session.ExportEDL(export.Request{
			Title:     req.Title,
			FrameRate: req.FrameRate,
			OutputDir: req.OutputDir,
		})
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if res.SkippedClips == nil {
			res.SkippedClips = []string{}
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

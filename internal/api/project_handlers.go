package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/project"
)

func openProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenProjectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}

		if err := cfg.Session.Open(r.Context(), req.Name); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.Snapshot())
	}
}

func snapshotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Snapshot())
	}
}

func combinedTrajectoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traj, colors, err := cfg.Session.CombinedTrajectory()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, TrajectoryResponse{Poses: traj, Colors: colors})
	}
}

func selectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := cfg.Session.Select(req.Slug); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.View())
	}
}

func pageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		page, err := project.ParsePage(req.Page)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err := cfg.Session.SetPage(page); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.View())
	}
}

func reorderLibraryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ok, err := cfg.Session.ReorderLibrary(req.From, req.To)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, LibraryResponse{Accepted: ok, Library: cfg.Session.Snapshot().Library})
	}
}

// writeComposition answers a pick, unpick or reorder. A rejected edit is
// not an error: the caller gets accepted=false and the unchanged order.
func writeComposition(w http.ResponseWriter, cfg ServerConfig, accepted bool, err error) {
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, CompositionResponse{Accepted: accepted, Picked: cfg.Session.Picked()})
}

func pickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlugRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ok, err := cfg.Session.Pick(req.Slug)
		writeComposition(w, cfg, ok, err)
	}
}

func unpickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlugRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ok, err := cfg.Session.Unpick(req.Slug)
		writeComposition(w, cfg, ok, err)
	}
}

func reorderPickedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ok, err := cfg.Session.ReorderPicked(req.From, req.To)
		writeComposition(w, cfg, ok, err)
	}
}

func suggestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		picked, err := cfg.Session.SuggestClips(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, SuggestResponse{Picked: picked})
	}
}

// concatenateHandler answers the re-concatenation prompt with the request's
// confirm flag. A 409 tells the caller to ask the user and retry.
func concatenateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConcatenateRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		confirm := func(ctx context.Context, prompt string) (bool, error) {
			return req.Confirm, nil
		}
		if err := cfg.Session.Concatenate(r.Context(), confirm); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.Snapshot())
	}
}

func renderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := cfg.Session.RenderFinalVideo(r.Context(), req.Name)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, RenderResponse{Message: msg})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Session.Clips()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, clips)
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeClip(w, cfg, chi.URLParam(r, "slug"))
	}
}

// writeClip answers with the clip's current snapshot.
func writeClip(w http.ResponseWriter, cfg ServerConfig, slug string) {
	c, err := cfg.Session.Clip(slug)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

func clipTrajectoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traj, colors, err := cfg.Session.ClipTrajectory(chi.URLParam(r, "slug"))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, TrajectoryResponse{Poses: traj, Colors: colors})
	}
}

func stabilizationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StabilizationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.ToggleStabilization(r.Context(), slug, req.On); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

func applySettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.ApplySettings(r.Context(), slug); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

// trimHandler moves the candidate trim. When the window moved but a
// follow-up lookup failed the trim still stands, so the failure is reported
// as a warning.
func trimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		change, err := cfg.Session.SetTrim(r.Context(), chi.URLParam(r, "slug"), req.Start, req.End)
		resp := TrimResponse{Changed: change.Changed}
		if err != nil {
			if !change.Changed && change.Pose == nil {
				writeSessionError(w, err)
				return
			}
			resp.Warning = err.Error()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func trimReleaseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.EndTrimDrag(slug); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

func strengthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StrengthRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		got, err := cfg.Session.SetStrength(chi.URLParam(r, "slug"), req.Strength)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, StrengthResponse{Strength: got})
	}
}

func smoothingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SmoothingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.SetSmoothing(slug, req.Strength); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

func velocityHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VelocityPointsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.SetVelocityPoints(slug, req.Points); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

func addPointHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p curve.Point
		if !decodeJSON(w, r, &p) {
			return
		}
		idx, err := cfg.Session.AddVelocityPoint(chi.URLParam(r, "slug"), p)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, PointIndexResponse{Index: idx})
	}
}

func movePointHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := pointIndex(w, r)
		if !ok {
			return
		}
		var p curve.Point
		if !decodeJSON(w, r, &p) {
			return
		}
		idx, err := cfg.Session.MoveVelocityPoint(chi.URLParam(r, "slug"), i, p)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PointIndexResponse{Index: idx})
	}
}

func removePointHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := pointIndex(w, r)
		if !ok {
			return
		}
		if err := cfg.Session.RemoveVelocityPoint(chi.URLParam(r, "slug"), i); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pointIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "point index must be an integer", "BAD_REQUEST")
		return 0, false
	}
	return i, true
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slug := chi.URLParam(r, "slug")
		var err error
		if req.Original != nil {
			err = cfg.Session.SeekOriginal(r.Context(), slug, *req.Original)
		} else {
			err = cfg.Session.Seek(slug, req.Progress)
		}
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

func tickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TickRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ElapsedMs < 0 {
			WriteError(w, http.StatusBadRequest, "elapsed_ms must not be negative", "BAD_REQUEST")
			return
		}
		p, err := cfg.Session.Tick(chi.URLParam(r, "slug"), time.Duration(req.ElapsedMs)*time.Millisecond)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProgressResponse{Progress: p})
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playing, err := cfg.Session.TogglePlaying(chi.URLParam(r, "slug"))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PlayingResponse{Playing: playing})
	}
}

func noteHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slug := chi.URLParam(r, "slug")
		if err := cfg.Session.SetNote(r.Context(), slug, req.Note); err != nil {
			writeSessionError(w, err)
			return
		}
		writeClip(w, cfg, slug)
	}
}

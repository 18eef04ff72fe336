package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trajcut/trajcut-agent/internal/clip"
	"github.com/trajcut/trajcut-agent/internal/curve"
	"github.com/trajcut/trajcut-agent/internal/export"
	"github.com/trajcut/trajcut-agent/internal/media"
	"github.com/trajcut/trajcut-agent/internal/project"
	"github.com/trajcut/trajcut-agent/internal/service"
	"github.com/trajcut/trajcut-agent/internal/store"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Post("/project/open", openProjectHandler(cfg))
		r.Get("/project", snapshotHandler(cfg))
		r.Get("/project/trajectory", combinedTrajectoryHandler(cfg))
		r.Post("/view/select", selectHandler(cfg))
		r.Post("/view/page", pageHandler(cfg))
		r.Post("/library/reorder", reorderLibraryHandler(cfg))

		r.Route("/composition", func(r chi.Router) {
			r.Post("/pick", pickHandler(cfg))
			r.Post("/unpick", unpickHandler(cfg))
			r.Post("/reorder", reorderPickedHandler(cfg))
			r.Post("/suggest", suggestHandler(cfg))
			r.Post("/concatenate", concatenateHandler(cfg))
			r.Post("/render", renderHandler(cfg))
			r.Post("/export", exportEDLHandler(cfg))
		})

		r.Get("/clips", listClipsHandler(cfg))
		r.Route("/clips/{slug}", func(r chi.Router) {
			r.Get("/", getClipHandler(cfg))
			r.Get("/trajectory", clipTrajectoryHandler(cfg))
			r.Post("/stabilization", stabilizationHandler(cfg))
			r.Post("/apply", applySettingsHandler(cfg))
			r.Put("/trim", trimHandler(cfg))
			r.Post("/trim/release", trimReleaseHandler(cfg))
			r.Put("/strength", strengthHandler(cfg))
			r.Put("/smoothing", smoothingHandler(cfg))
			r.Put("/velocity", velocityHandler(cfg))
			r.Post("/velocity/points", addPointHandler(cfg))
			r.Put("/velocity/points/{index}", movePointHandler(cfg))
			r.Delete("/velocity/points/{index}", removePointHandler(cfg))
			r.Post("/seek", seekHandler(cfg))
			r.Post("/tick", tickHandler(cfg))
			r.Post("/play", playHandler(cfg))
			r.Put("/note", noteHandler(cfg))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))
		r.Get("/media/{slug}", mediaHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Session.Snapshot()
		jobs, _ := cfg.Repository.ListJobs(r.Context(), 10)

		state := "idle"
		if snap.Project == "" {
			state = "no_project"
		}
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		for _, j := range jobs {
			if j.Status == store.JobStatusRunning {
				state = "busy"
				resp := JobToResponse(j)
				activeJob = &resp
				jobsRunning++
			}
			if j.Status == store.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:        state,
			Project:      snap.Project,
			LibraryCount: len(snap.Library),
			PickedCount:  len(snap.Picked),
			JobsRunning:  jobsRunning,
			LastError:    lastError,
			ActiveJob:    activeJob,
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Resolver == nil || cfg.MediaServer == nil {
			WriteError(w, http.StatusNotFound, "media serving is not configured", "NOT_FOUND")
			return
		}

		c, err := cfg.Session.Clip(chi.URLParam(r, "slug"))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if c.Composite {
			WriteError(w, http.StatusNotFound, "the concatenated clip has no source media", "NOT_FOUND")
			return
		}

		path, err := cfg.Resolver.Resolve(c.SourceURI)
		if err != nil {
			status := http.StatusNotFound
			if errors.Is(err, media.ErrInvalidURI) {
				status = http.StatusBadRequest
			}
			WriteError(w, status, err.Error(), "MEDIA_UNAVAILABLE")
			return
		}

		if err := cfg.MediaServer.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("media error", "error", err, "slug", c.Slug)
		}
	}
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

// writeSessionError maps editing and service errors to HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	var reqErr *service.RequestError
	switch {
	case errors.Is(err, project.ErrNoProject):
		WriteError(w, http.StatusConflict, err.Error(), "NO_PROJECT")
	case errors.Is(err, project.ErrUnknownClip):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrConcatenationDeclined):
		WriteError(w, http.StatusConflict, err.Error(), "CONFIRMATION_REQUIRED")
	case errors.Is(err, service.ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "SERVICE_UNAVAILABLE")
	case errors.As(err, &reqErr):
		WriteError(w, http.StatusBadGateway, err.Error(), "SERVICE_ERROR")
	case errors.Is(err, project.ErrCompositeClip),
		errors.Is(err, project.ErrEmptyComposition),
		errors.Is(err, project.ErrNotStabilizable),
		errors.Is(err, project.ErrNotStabilized),
		errors.Is(err, project.ErrInvalidName),
		errors.Is(err, clip.ErrInvalidTrim),
		errors.Is(err, clip.ErrInvalidStrength),
		errors.Is(err, clip.ErrNoSmoothing),
		errors.Is(err, curve.ErrTooFewPoints),
		errors.Is(err, curve.ErrTooFewSamples),
		errors.Is(err, curve.ErrDegenerateRange),
		errors.Is(err, curve.ErrPointIndex),
		errors.Is(err, curve.ErrEndpointFixed),
		errors.Is(err, curve.ErrOutOfDomain),
		errors.Is(err, export.ErrInvalidOutputDir),
		errors.Is(err, export.ErrNoSegments):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

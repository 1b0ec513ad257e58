package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/filter"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/metrics"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/clips", listClipsHandler(cfg))
	r.Get("/clips/{id}", getClipHandler(cfg))
	r.Get("/clips/{id}/thumbnail", clipThumbnailHandler(cfg))
	r.Get("/news", listNewsHandler(cfg))
	r.Get("/settings", getSettingsHandler(cfg))
	if cfg.Media != nil {
		r.Get("/media/*", mediaHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthToken, cfg.Locale, cfg.Logger))

		r.Route("/capture", func(r chi.Router) {
			r.Post("/", openCaptureHandler(cfg))
			r.Get("/", captureStatusHandler(cfg))
			r.Delete("/", closeCaptureHandler(cfg))
			r.Post("/switch", switchCameraHandler(cfg))
			r.Post("/record", recordHandler(cfg))
			r.Post("/stop", stopHandler(cfg))
			r.Get("/recording", recordingHandler(cfg))
			r.Get("/thumbnails/{index}", captureThumbnailHandler(cfg))
			r.Put("/thumbnail", selectThumbnailHandler(cfg))
			r.Put("/filter", setFilterHandler(cfg))
			r.Post("/discard", discardHandler(cfg))
			r.Post("/publish", publishHandler(cfg))
			r.Get("/events", eventsHandler(cfg))
		})

		r.Patch("/clips/{id}", updateClipHandler(cfg))
		r.Delete("/clips/{id}", deleteClipHandler(cfg))
		r.Post("/clips/{id}/editor", openEditorHandler(cfg))
		r.Get("/clips/{id}/editor", getEditorHandler(cfg))
		r.Get("/clips/{id}/editor/thumbnails/{index}", editorThumbnailHandler(cfg))
		r.Delete("/clips/{id}/editor", closeEditorHandler(cfg))

		r.Post("/news", publishNewsHandler(cfg))
		r.Put("/settings", saveSettingsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
			Capture: string(workflow.PhaseIdle),
		}
		if cfg.Doctor != nil {
			resp.Encoders = encoderNames(cfg.Doctor.Peek())
		}
		if cfg.Workflows != nil {
			if wf, err := cfg.Workflows.Active(); err == nil {
				resp.Capture = string(wf.Phase())
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := cfg.Gallery.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}

		resp := ClipsResponse{Clips: make([]ClipResponse, len(cards))}
		for i, c := range cards {
			resp.Clips[i] = CardToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := cfg.Gallery.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, CardToResponse(*card))
	}
}

// clipThumbnailHandler redirects CDN-hosted clips to the transformed poster
// URL and renders the poster locally otherwise.
func clipThumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Clips.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}

		if blobstore.IsCDNVideo(clip.URL) {
			http.Redirect(w, r, clip.ThumbnailURL(), http.StatusFound)
			return
		}

		frame, ok := cfg.Posters.Poster(r.Context(), clip)
		if ok {
			w.Header().Set("Cache-Control", "public, max-age=300")
		} else {
			w.Header().Set("Cache-Control", "no-store")
		}
		if err := cfg.Playback.ServeBytes(w, r, frame, "image/jpeg"); err != nil {
			cfg.Logger.Error("poster write failed", "error", err, "clip_id", clip.ID)
		}
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req UpdateClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}

		var f *filter.Filter
		if req.Filter != nil {
			parsed, err := filter.Parse(*req.Filter)
			if err != nil {
				writeBadRequest(w, cfg, err.Error())
				return
			}
			f = &parsed
		}

		if req.ThumbnailIndex != nil {
			ed, err := cfg.Workflows.Editor(id)
			if err != nil {
				writeDomainError(w, r, cfg, err)
				return
			}
			clip, err := ed.Save(r.Context(), workflow.SaveOptions{Title: req.Title, Index: req.ThumbnailIndex, Filter: f})
			if err != nil {
				writeDomainError(w, r, cfg, err)
				return
			}
			_ = cfg.Workflows.CloseEditor(id)
			WriteJSON(w, http.StatusOK, CardToResponse(cfg.Gallery.Project(clip)))
			return
		}

		clip, err := cfg.Publisher.Update(r.Context(), id, publish.Edit{
			Title:           req.Title,
			ThumbnailOffset: req.ThumbnailOffset,
			Filter:          f,
		})
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, CardToResponse(cfg.Gallery.Project(clip)))
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Publisher.Delete(r.Context(), id); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		_ = cfg.Workflows.CloseEditor(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func listNewsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := cfg.News.List(r.Context())
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}

		resp := NewsResponse{Posts: make([]NewsPostResponse, len(posts))}
		for i, p := range posts {
			resp.Posts[i] = PostToResponse(p, newsDate(cfg, p.CreatedAtLocal))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func newsDate(cfg ServerConfig, t *time.Time) string {
	if t == nil {
		return locale.Unknown(cfg.Locale)
	}
	return locale.LongDate(*t, cfg.Locale)
}

func publishNewsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NewsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}

		post, err := cfg.News.Publish(r.Context(), req.Title, req.Content)
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, PostToResponse(post, newsDate(cfg, post.CreatedAtLocal)))
	}
}

func getSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Settings.Get(r.Context())
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, SettingsResponse{SiteName: s.SiteName})
	}
}

func saveSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}

		s, err := cfg.Settings.Save(r.Context(), req.SiteName)
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, SettingsResponse{SiteName: s.SiteName})
	}
}

// mediaHandler serves uploads of the local blob store with range support.
func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		path, err := cfg.Media.Path(key)
		if err != nil {
			WriteError(w, http.StatusNotFound, locale.Message(cfg.Locale, locale.MsgNotFound), "NOT_FOUND")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("media error", "error", err, "key", key)
		}
	}
}

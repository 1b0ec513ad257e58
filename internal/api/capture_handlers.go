package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/filter"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

// frameWait bounds how long a thumbnail request with wait=true blocks.
const frameWait = 30 * time.Second

func openCaptureHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenCaptureRequest
		if err := decodeOptional(r, &req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}

		wf, err := cfg.Workflows.Begin(r.Context(), capture.ParseFacing(req.Facing))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, StatusToResponse(wf.Status()))
	}
}

func captureStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

func closeCaptureHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workflows.End(); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func switchCameraHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		switched, err := wf.SwitchCamera(r.Context())
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, SwitchResponse{Switched: switched, Status: StatusToResponse(wf.Status())})
	})
}

func recordHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		if err := wf.Record(r.Context()); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

func stopHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		if err := wf.Stop(r.Context()); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

// recordingHandler plays back the frozen recording during review.
func recordingHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		blob, err := wf.Recording()
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		if err := cfg.Playback.ServeBytes(w, r, blob.Data, blob.MimeType); err != nil {
			cfg.Logger.Error("recording playback failed", "error", err, "workflow_id", wf.ID())
		}
	})
}

func captureThumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		index, ok := indexParam(w, r, cfg)
		if !ok {
			return
		}
		ctx, cancel := contextForFrame(r)
		defer cancel()

		frame, err := wf.Frame(ctx, index, r.URL.Query().Get("wait") == "true")
		writeFrame(w, r, cfg, frame, err)
	})
}

func selectThumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		var req SelectThumbnailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
			writeBadRequest(w, cfg, "index is required")
			return
		}
		if err := wf.SelectThumbnail(*req.Index); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

func setFilterHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		var req SetFilterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}
		f, err := filter.Parse(req.Filter)
		if err != nil {
			writeBadRequest(w, cfg, err.Error())
			return
		}
		if err := wf.SetFilter(f); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

func discardHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		var req DiscardRequest
		if err := decodeOptional(r, &req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}
		if err := wf.Discard(r.Context(), req.Confirmed); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(wf.Status()))
	})
}

func publishHandler(cfg ServerConfig) http.HandlerFunc {
	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		var req PublishRequest
		if err := decodeOptional(r, &req); err != nil {
			writeBadRequest(w, cfg, "invalid request body")
			return
		}
		opts := workflow.PublishOptions{Title: req.Title}
		if req.CreatedAtLocal != nil {
			opts.CreatedAtLocal = *req.CreatedAtLocal
		}

		clip, err := wf.Publish(r.Context(), opts)
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, PublishedResponse{
			Message: locale.Message(cfg.Locale, locale.MsgPublished),
			Clip:    CardToResponse(cfg.Gallery.Project(clip)),
		})
	})
}

func openEditorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Workflows.OpenEditor(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, editorToResponse(ed))
	}
}

func getEditorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Workflows.Editor(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, editorToResponse(ed))
	}
}

func editorThumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Workflows.Editor(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		index, ok := indexParam(w, r, cfg)
		if !ok {
			return
		}
		ctx, cancel := contextForFrame(r)
		defer cancel()

		frame, err := ed.Frame(ctx, index, r.URL.Query().Get("wait") == "true")
		writeFrame(w, r, cfg, frame, err)
	}
}

func closeEditorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workflows.CloseEditor(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func editorToResponse(ed *workflow.Editor) EditorResponse {
	id := ed.Clip().ID
	f := ed.Filter()
	return EditorResponse{
		ClipID:     id,
		Filter:     f.String(),
		FilterCSS:  f.CSS(),
		Candidates: CandidatesToResponse(ed.Candidates(), "/clips/"+id+"/editor/thumbnails"),
	}
}

// withWorkflow resolves the open capture before calling h.
func withWorkflow(cfg ServerConfig, h func(http.ResponseWriter, *http.Request, *workflow.Workflow)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wf, err := cfg.Workflows.Active()
		if err != nil {
			writeDomainError(w, r, cfg, err)
			return
		}
		h(w, r, wf)
	}
}

func indexParam(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeBadRequest(w, cfg, "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

func contextForFrame(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), frameWait)
}

func writeFrame(w http.ResponseWriter, r *http.Request, cfg ServerConfig, frame []byte, err error) {
	if err != nil {
		writeDomainError(w, r, cfg, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if err := cfg.Playback.ServeBytes(w, r, frame, "image/jpeg"); err != nil {
		cfg.Logger.Error("thumbnail write failed", "error", err)
	}
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

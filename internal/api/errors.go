package api

import (
	"errors"
	"net/http"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/site"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

// errorFor maps a domain error onto a status and a localized body.
func errorFor(err error, tag string) (int, ErrorResponse) {
	msg := func(k locale.Key) string { return locale.Message(tag, k) }

	var (
		deviceErr   *capture.DeviceError
		formatErr   *capture.UnsupportedFormatError
		stateErr    *capture.StateError
		phaseErr    *workflow.PhaseError
		uploadErr   *publish.UploadError
		metadataErr *publish.MetadataSaveError
		notFoundErr *publish.NotFoundError
	)

	switch {
	case errors.As(err, &deviceErr):
		status := http.StatusServiceUnavailable
		key, code := locale.MsgDeviceError, "DEVICE_ERROR"
		switch deviceErr.Kind {
		case capture.DevicePermissionDenied:
			status = http.StatusForbidden
		case capture.DeviceNotFound:
			status = http.StatusNotFound
		case capture.DeviceBusy:
			status, key, code = http.StatusConflict, locale.MsgDeviceBusy, "DEVICE_BUSY"
		}
		return status, ErrorResponse{Error: msg(key), Code: code, Detail: string(deviceErr.Kind), Retryable: true}
	case errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: msg(locale.MsgUnsupportedFormat), Code: "UNSUPPORTED_FORMAT"}
	case errors.As(err, &stateErr), errors.As(err, &phaseErr):
		return http.StatusConflict, ErrorResponse{Error: msg(locale.MsgInvalidState), Code: "INVALID_STATE", Detail: err.Error()}
	case errors.Is(err, capture.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, ErrorResponse{Error: msg(locale.MsgConfirmDiscard), Code: "CONFIRMATION_REQUIRED"}
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway, ErrorResponse{Error: msg(locale.MsgUploadFailed), Code: "UPLOAD_FAILED", Retryable: uploadErr.Retryable()}
	case errors.As(err, &metadataErr):
		return http.StatusBadGateway, ErrorResponse{
			Error:    msg(locale.MsgMetadataSaveFailed),
			Code:     "METADATA_SAVE_FAILED",
			MediaURL: metadataErr.MediaURL,
			MediaID:  metadataErr.MediaID,
		}
	case errors.As(err, &notFoundErr), errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: msg(locale.MsgNotFound), Code: "NOT_FOUND"}
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict, ErrorResponse{Error: msg(locale.MsgCaptureBusy), Code: "CAPTURE_BUSY"}
	case errors.Is(err, workflow.ErrNoWorkflow):
		return http.StatusNotFound, ErrorResponse{Error: msg(locale.MsgNoCapture), Code: "NO_CAPTURE"}
	case errors.Is(err, workflow.ErrNoEditor):
		return http.StatusNotFound, ErrorResponse{Error: msg(locale.MsgNotFound), Code: "NO_EDITOR"}
	case errors.Is(err, workflow.ErrShutdown):
		return http.StatusServiceUnavailable, ErrorResponse{Error: msg(locale.MsgInternal), Code: "SHUTTING_DOWN"}
	case errors.Is(err, thumbnail.ErrPending):
		return http.StatusConflict, ErrorResponse{Error: msg(locale.MsgThumbnailsPending), Code: "THUMBNAIL_PENDING", Retryable: true}
	case errors.Is(err, thumbnail.ErrOutOfRange):
		return http.StatusNotFound, ErrorResponse{Error: msg(locale.MsgNotFound), Code: "NOT_FOUND", Detail: err.Error()}
	case errors.Is(err, workflow.ErrNoThumbnails):
		return http.StatusNotFound, ErrorResponse{Error: msg(locale.MsgNotFound), Code: "NO_THUMBNAILS"}
	case errors.Is(err, thumbnail.ErrInvalidDuration):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: msg(locale.MsgInvalidRequest), Code: "INVALID_DURATION"}
	case errors.Is(err, site.ErrMissingFields):
		return http.StatusBadRequest, ErrorResponse{Error: msg(locale.MsgMissingFields), Code: "MISSING_FIELDS"}
	case errors.Is(err, site.ErrBlankSiteName):
		return http.StatusBadRequest, ErrorResponse{Error: msg(locale.MsgInvalidRequest), Code: "BAD_REQUEST", Detail: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: msg(locale.MsgInternal), Code: "INTERNAL_ERROR"}
	}
}

// writeDomainError writes err as JSON and logs unexpected failures.
func writeDomainError(w http.ResponseWriter, r *http.Request, cfg ServerConfig, err error) {
	status, body := errorFor(err, cfg.Locale)
	if status >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		cfg.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
			"request_id", requestID,
		)
	}
	WriteJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, cfg ServerConfig, detail string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  locale.Message(cfg.Locale, locale.MsgInvalidRequest),
		Code:   "BAD_REQUEST",
		Detail: detail,
	})
}


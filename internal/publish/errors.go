package publish

import (
	"fmt"
)

// UploadError means the blob store rejected or never received the
// recording. Nothing was persisted and the caller may retry.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Retryable is always true; no local state has been consumed.
func (e *UploadError) Retryable() bool { return true }

// MetadataSaveError means the media was uploaded but its clip record could
// not be written. MediaURL and MediaID identify the orphaned upload.
type MetadataSaveError struct {
	MediaURL string
	MediaID  string
	Err      error
}

func (e *MetadataSaveError) Error() string {
	return fmt.Sprintf("media uploaded to %s (id %s) but metadata save failed: %v", e.MediaURL, e.MediaID, e.Err)
}

func (e *MetadataSaveError) Unwrap() error { return e.Err }

// NotFoundError is returned when the clip was deleted concurrently.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("clip %s not found", e.ID)
}

// Package blobstore uploads recorded media to a binary store and returns a
// stable locator for it.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// ResourceVideo is the only resource kind the agent uploads.
const ResourceVideo = "video"

// Asset is the result of a successful upload.
type Asset struct {
	// URL is the stable locator of the uploaded media.
	URL string
	// ID is the store-assigned identifier used for management.
	ID string
}

// UploadOptions describe the blob being uploaded.
type UploadOptions struct {
	// Preset selects a store-side upload profile (Cloudinary) and is
	// otherwise ignored.
	Preset       string
	ResourceKind string
	ContentType  string
	Size         int64
}

// Store is an external binary media store.
type Store interface {
	Name() string
	Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*Asset, error)
}

// HTTPError represents a non-2xx response from a remote store.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("blob upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// ExtensionFor returns the file extension for a recorded container type,
// ignoring codec parameters.
func ExtensionFor(contentType string) string {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	switch strings.ToLower(base) {
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/x-msvideo":
		return ".avi"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

// newKey builds an object key such as "videos/<uuid>.webm".
func newKey(opts UploadOptions) string {
	kind := opts.ResourceKind
	if kind == "" {
		kind = ResourceVideo
	}
	return kind + "s/" + uuid.NewString() + ExtensionFor(opts.ContentType)
}

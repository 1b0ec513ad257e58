// Package publish uploads finished recordings and maintains their clip
// records.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/filter"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/metrics"
)

// ClipStore is the subset of clips.Repository the coordinator uses.
type ClipStore interface {
	Create(ctx context.Context, c *clips.Clip) error
	Update(ctx context.Context, id string, p clips.Patch) (*clips.Clip, error)
	Delete(ctx context.Context, id string) error
}

// Invalidator is told whenever the clip listing changed.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Request is one publish of a finished recording.
type Request struct {
	Recording *capture.Blob
	Title     string
	// ThumbnailOffset is the selected candidate offset in seconds.
	ThumbnailOffset float64
	Filter          filter.Filter
	// Duration in seconds; the recording's elapsed time when zero.
	Duration float64
	// CreatedAtLocal is the client-side capture time shown in the gallery.
	CreatedAtLocal time.Time
}

// Edit changes an existing clip. Nil fields are left untouched.
type Edit struct {
	Title           *string
	ThumbnailOffset *float64
	Filter          *filter.Filter
}

// Config holds the coordinator settings.
type Config struct {
	Preset string
	Locale string
}

// Coordinator uploads recordings and writes their metadata.
type Coordinator struct {
	blobs       blobstore.Store
	clips       ClipStore
	invalidator Invalidator
	cfg         Config
	now         func() time.Time
	logger      *slog.Logger
}

func NewCoordinator(blobs blobstore.Store, store ClipStore, invalidator Invalidator, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		blobs:       blobs,
		clips:       store,
		invalidator: invalidator,
		cfg:         cfg,
		now:         time.Now,
		logger:      logging.WithComponent(logging.OrDiscard(logger), "publish"),
	}
}

// DefaultTitle is "Video " followed by the localized short date.
func DefaultTitle(now time.Time, tag string) string {
	return locale.DefaultTitle(now, tag)
}

// Publish uploads the recording and stores its clip record. An
// *UploadError leaves nothing behind; a *MetadataSaveError carries the
// locator of the media that was uploaded.
func (c *Coordinator) Publish(ctx context.Context, req Request) (*clips.Clip, error) {
	if req.Recording == nil || len(req.Recording.Data) == 0 {
		return nil, errors.New("nothing to publish: recording is empty")
	}

	now := c.now()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle(now, c.cfg.Locale)
	}
	f := filter.OrNone(req.Filter.String())
	duration := req.Duration
	if duration <= 0 {
		duration = float64(req.Recording.Elapsed)
	}
	local := req.CreatedAtLocal
	if local.IsZero() {
		local = now
	}

	start := time.Now()
	size := len(req.Recording.Data)
	asset, err := c.blobs.Upload(ctx, bytes.NewReader(req.Recording.Data), blobstore.UploadOptions{
		Preset:       c.cfg.Preset,
		ResourceKind: blobstore.ResourceVideo,
		ContentType:  req.Recording.MimeType,
		Size:         int64(size),
	})
	if err != nil {
		metrics.ObserveUpload(c.blobs.Name(), metrics.OutcomeUploadError, size, start)
		c.logger.Warn("upload failed", "backend", c.blobs.Name(), "error", err)
		return nil, &UploadError{Err: err}
	}

	clip := &clips.Clip{
		Title:           title,
		URL:             asset.URL,
		MediaID:         asset.ID,
		Duration:        int(math.Round(duration)),
		ThumbnailOffset: roundOffset(req.ThumbnailOffset),
		Filter:          f,
		CreatedAtLocal:  &local,
	}
	if err := c.clips.Create(ctx, clip); err != nil {
		metrics.ObserveUpload(c.blobs.Name(), metrics.OutcomeMetadataError, size, start)
		c.logger.Error("metadata save failed after upload",
			"media_url", asset.URL,
			"media_id", asset.ID,
			"error", err,
		)
		return nil, &MetadataSaveError{MediaURL: asset.URL, MediaID: asset.ID, Err: err}
	}

	metrics.ObserveUpload(c.blobs.Name(), metrics.OutcomeSuccess, size, start)
	logging.WithClipID(c.logger, clip.ID).Info("clip published",
		"media_id", clip.MediaID,
		"duration_s", clip.Duration,
		"thumbnail_offset", clip.ThumbnailOffset,
		"filter", clip.Filter,
	)
	c.invalidate(ctx)
	return clip, nil
}

// Update retitles a clip or re-picks its thumbnail or filter. The media
// locator is never touched.
func (c *Coordinator) Update(ctx context.Context, id string, edit Edit) (*clips.Clip, error) {
	var patch clips.Patch
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			title = DefaultTitle(c.now(), c.cfg.Locale)
		}
		patch.Title = &title
	}
	if edit.ThumbnailOffset != nil {
		off := roundOffset(*edit.ThumbnailOffset)
		patch.ThumbnailOffset = &off
	}
	if edit.Filter != nil {
		if !edit.Filter.Valid() {
			return nil, fmt.Errorf("unknown filter %q", *edit.Filter)
		}
		patch.Filter = edit.Filter
	}

	clip, err := c.clips.Update(ctx, id, patch)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("update clip %s: %w", id, err)
	}

	logging.WithClipID(c.logger, id).Info("clip updated")
	c.invalidate(ctx)
	return clip, nil
}

// Delete removes the clip record. The uploaded media is left in place.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	err := c.clips.Delete(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("delete clip %s: %w", id, err)
	}

	logging.WithClipID(c.logger, id).Info("clip deleted")
	c.invalidate(ctx)
	return nil
}

func (c *Coordinator) invalidate(ctx context.Context) {
	if c.invalidator != nil {
		c.invalidator.Invalidate(ctx)
	}
}

func roundOffset(off float64) int {
	if off < 0 || math.IsNaN(off) {
		return 0
	}
	return int(math.Round(off))
}

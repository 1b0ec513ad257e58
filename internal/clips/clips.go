// Package clips persists clip metadata in the document store.
package clips

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/filter"
)

// Collection is the document store collection holding clips.
const Collection = "videos"

// DefaultThumbnailOffset applies to records written before the field
// existed.
const DefaultThumbnailOffset = 1

// Field names of the stored record.
const (
	fieldTitle          = "title"
	fieldURL            = "url"
	fieldMediaID        = "mediaId"
	fieldLegacyMediaID  = "cloudinaryId"
	fieldDuration       = "duration"
	fieldThumbnailTime  = "thumbnailTime"
	fieldFilter         = "filter"
	fieldCreatedAtLocal = "createdAtLocal"
)

// Clip is the persisted metadata of one published recording.
type Clip struct {
	ID    string
	Title string
	// URL is the media locator. It never changes after creation.
	URL     string
	MediaID string
	// Duration in whole seconds.
	Duration        int
	ThumbnailOffset int
	Filter          filter.Filter
	// CreatedAt is the server timestamp and decides sort order.
	CreatedAt time.Time
	// CreatedAtLocal is the client-captured display timestamp. It may be
	// missing on older records.
	CreatedAtLocal *time.Time
}

// ThumbnailURL is the gallery-sized poster image URL.
func (c *Clip) ThumbnailURL() string {
	return blobstore.ThumbnailURL(c.URL, c.ThumbnailOffset, blobstore.ThumbnailWidth, blobstore.ThumbnailHeight)
}

// Patch carries the only fields an edit may change. Nil fields are left
// untouched.
type Patch struct {
	Title           *string
	ThumbnailOffset *int
	Filter          *filter.Filter
}

func (p Patch) fields() (map[string]any, error) {
	fields := map[string]any{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, fmt.Errorf("title must not be empty")
		}
		fields[fieldTitle] = title
	}
	if p.ThumbnailOffset != nil {
		if *p.ThumbnailOffset < 0 {
			return nil, fmt.Errorf("thumbnail offset must not be negative")
		}
		fields[fieldThumbnailTime] = *p.ThumbnailOffset
	}
	if p.Filter != nil {
		if !p.Filter.Valid() {
			return nil, fmt.Errorf("unknown filter %q", *p.Filter)
		}
		fields[fieldFilter] = p.Filter.String()
	}
	return fields, nil
}

// Repository stores clips in the Collection of a document store.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Create stores c and fills in its ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, c *Clip) error {
	data := map[string]any{
		fieldTitle:         c.Title,
		fieldURL:           c.URL,
		fieldMediaID:       c.MediaID,
		fieldDuration:      c.Duration,
		fieldThumbnailTime: c.ThumbnailOffset,
		fieldFilter:        filter.OrNone(c.Filter.String()).String(),
	}
	if c.CreatedAtLocal != nil {
		data[fieldCreatedAtLocal] = c.CreatedAtLocal.Format(time.RFC3339Nano)
	}

	doc, err := r.store.Create(ctx, Collection, data)
	if err != nil {
		return fmt.Errorf("save clip: %w", err)
	}
	c.ID = doc.ID
	c.CreatedAt = doc.CreatedAt
	return nil
}

// Get returns docstore.ErrNotFound when the clip does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Clip, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

// List returns all clips, newest first.
func (r *Repository) List(ctx context.Context) ([]*Clip, error) {
	docs, err := r.store.List(ctx, Collection, docstore.Descending)
	if err != nil {
		return nil, err
	}
	out := make([]*Clip, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

// Update applies p and returns the updated clip.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (*Clip, error) {
	fields, err := p.fields()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}
	doc, err := r.store.Update(ctx, Collection, id, fields)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, Collection, id)
}

func fromDocument(doc *docstore.Document) *Clip {
	c := &Clip{
		ID:              doc.ID,
		Title:           doc.String(fieldTitle),
		URL:             doc.String(fieldURL),
		MediaID:         doc.String(fieldMediaID),
		ThumbnailOffset: DefaultThumbnailOffset,
		Filter:          filter.OrNone(doc.String(fieldFilter)),
		CreatedAt:       doc.CreatedAt,
	}
	if c.MediaID == "" {
		c.MediaID = doc.String(fieldLegacyMediaID)
	}
	if d, ok := doc.Float(fieldDuration); ok && d > 0 {
		c.Duration = int(math.Round(d))
	}
	if off, ok := doc.Float(fieldThumbnailTime); ok && off >= 0 {
		c.ThumbnailOffset = int(math.Round(off))
	}
	if s := doc.String(fieldCreatedAtLocal); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			c.CreatedAtLocal = &t
		}
	}
	return c
}

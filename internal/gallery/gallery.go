// Package gallery projects stored clips into gallery cards, with search and
// an optional listing cache.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/metrics"
)

const listKey = "gallery:clips"

// ClipLister is the part of clips.Repository the projection reads.
type ClipLister interface {
	List(ctx context.Context) ([]*clips.Clip, error)
	Get(ctx context.Context, id string) (*clips.Clip, error)
}

// Card is one gallery entry, ready for display.
type Card struct {
	ID              string
	Title           string
	URL             string
	Duration        int
	DurationLabel   string
	Date            string
	ThumbnailURL    string
	ThumbnailOffset int
	Filter          string
	FilterCSS       string
	CreatedAt       time.Time
	CreatedAtLocal  *time.Time
}

// Config holds the projection settings.
type Config struct {
	Locale string
	TTL    time.Duration
	// PublicBaseURL prefixes poster URLs of clips whose media host cannot
	// derive thumbnails.
	PublicBaseURL string
	// Location is used for display dates. time.Local when nil.
	Location *time.Location
}

// Projection turns the clip collection into gallery cards.
type Projection struct {
	clips  ClipLister
	cache  Cache
	cfg    Config
	logger *slog.Logger
}

func NewProjection(lister ClipLister, cache Cache, cfg Config, logger *slog.Logger) *Projection {
	if cache == nil {
		cache = NopCache{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Projection{
		clips:  lister,
		cache:  cache,
		cfg:    cfg,
		logger: logging.WithComponent(logging.OrDiscard(logger), "gallery"),
	}
}

// List returns every clip as a card, newest first.
func (p *Projection) List(ctx context.Context) ([]Card, error) {
	all, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(all))
	for _, c := range all {
		cards = append(cards, p.Project(c))
	}
	return cards, nil
}

// Search returns the cards whose title contains query, case-insensitively.
// A blank query returns everything.
func (p *Projection) Search(ctx context.Context, query string) ([]Card, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return p.List(ctx)
	}
	all, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	var cards []Card
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Title), q) {
			cards = append(cards, p.Project(c))
		}
	}
	return cards, nil
}

// Get returns one card. It reads through to the store and returns
// docstore.ErrNotFound for unknown ids.
func (p *Projection) Get(ctx context.Context, id string) (*Card, error) {
	c, err := p.clips.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	card := p.Project(c)
	return &card, nil
}

// Invalidate drops the cached listing.
func (p *Projection) Invalidate(ctx context.Context) {
	if err := p.cache.Delete(ctx, listKey); err != nil {
		p.logger.Warn("gallery cache invalidation failed", "error", err)
		return
	}
	p.logger.Debug("gallery cache invalidated")
}

// load reads the listing through the cache. Cache failures fall back to the
// store.
func (p *Projection) load(ctx context.Context) ([]*clips.Clip, error) {
	var cached []*clips.Clip
	found, err := p.cache.GetJSON(ctx, listKey, &cached)
	switch {
	case err != nil:
		metrics.GalleryCache("error")
		p.logger.Warn("gallery cache read failed", "error", err)
	case found:
		metrics.GalleryCache("hit")
		return cached, nil
	default:
		metrics.GalleryCache("miss")
	}

	all, err := p.clips.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	if err := p.cache.SetJSON(ctx, listKey, all, p.cfg.TTL); err != nil {
		p.logger.Warn("gallery cache write failed", "error", err)
	}
	return all, nil
}

// Project builds the card of one clip.
func (p *Projection) Project(c *clips.Clip) Card {
	card := Card{
		ID:              c.ID,
		Title:           c.Title,
		URL:             c.URL,
		Duration:        c.Duration,
		DurationLabel:   FormatDuration(c.Duration),
		Date:            locale.Unknown(p.cfg.Locale),
		ThumbnailOffset: c.ThumbnailOffset,
		Filter:          c.Filter.String(),
		FilterCSS:       c.Filter.CSS(),
		CreatedAt:       c.CreatedAt,
		CreatedAtLocal:  c.CreatedAtLocal,
	}
	if c.CreatedAtLocal != nil {
		card.Date = locale.LongDate(c.CreatedAtLocal.In(p.cfg.Location), p.cfg.Locale)
	}
	if blobstore.IsCDNVideo(c.URL) {
		card.ThumbnailURL = c.ThumbnailURL()
	} else {
		card.ThumbnailURL = p.cfg.PublicBaseURL + "/clips/" + c.ID + "/thumbnail"
	}
	return card
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/metrics"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
)

// SourceFactory opens a frame source over a media URL or local path.
type SourceFactory func(input string) thumbnail.FrameSource

// Posters renders gallery-sized poster frames for clips whose media host
// cannot derive them from the URL.
type Posters struct {
	sources SourceFactory
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

func NewPosters(sources SourceFactory, cache Cache, ttl time.Duration, logger *slog.Logger) *Posters {
	if cache == nil {
		cache = NopCache{}
	}
	return &Posters{
		sources: sources,
		cache:   cache,
		ttl:     ttl,
		logger:  logging.WithComponent(logging.OrDiscard(logger), "posters"),
	}
}

// Poster returns the JPEG poster of c at its thumbnail offset. When the
// frame cannot be rendered it returns the placeholder and false.
func (p *Posters) Poster(ctx context.Context, c *clips.Clip) ([]byte, bool) {
	key := fmt.Sprintf("poster:%s:%d", c.ID, c.ThumbnailOffset)

	var cached []byte
	if found, err := p.cache.GetJSON(ctx, key, &cached); err == nil && found {
		return cached, true
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		img, err := p.sources(c.URL).Frame(ctx, float64(c.ThumbnailOffset))
		if err != nil {
			return nil, err
		}
		size := thumbnail.GallerySize
		return thumbnail.EncodeJPEG(imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos))
	})
	if err != nil {
		metrics.ThumbnailRender(false)
		logging.WithClipID(p.logger, c.ID).Warn("poster render failed", "offset", c.ThumbnailOffset, "error", err)
		return thumbnail.Placeholder(thumbnail.GallerySize), false
	}
	metrics.ThumbnailRender(true)

	frame := v.([]byte)
	if err := p.cache.SetJSON(ctx, key, frame, p.ttl); err != nil {
		p.logger.Warn("poster cache write failed", "error", err)
	}
	return frame, true
}

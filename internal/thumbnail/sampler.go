package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// Size is an output frame size in pixels.
type Size struct {
	Width  int
	Height int
}

var (
	// SelectionSize is used by the thumbnail picker.
	SelectionSize = Size{Width: 240, Height: 135}
	// GallerySize matches the gallery cards.
	GallerySize = Size{Width: 480, Height: 270}
)

const jpegQuality = 85

// FrameSource decodes one raster frame at an offset in seconds. Every call
// is independent so renders may run concurrently.
type FrameSource interface {
	Frame(ctx context.Context, offset float64) (image.Image, error)
}

// Sampler renders candidate frames with a bounded number of workers.
type Sampler struct {
	workers     int
	ffprobePath string
	logger      *slog.Logger
}

func NewSampler(workers int, ffprobePath string, logger *slog.Logger) *Sampler {
	if workers < 1 {
		workers = 1
	}
	return &Sampler{
		workers:     workers,
		ffprobePath: ffprobePath,
		logger:      logging.WithComponent(logging.OrDiscard(logger), "thumbnail_sampler"),
	}
}

// Render renders every candidate of set from src. A failing candidate is
// recorded on the set and never blocks its siblings. Render returns only
// once every candidate is complete; the error is non-nil only when ctx was
// cancelled.
func (s *Sampler) Render(ctx context.Context, set *Set, src FrameSource, size Size) error {
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i := range set.candidates {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				set.complete(i, nil, err)
				return nil
			}
			frame, err := renderOne(ctx, src, set.candidates[i].offset, size)
			if err != nil {
				s.logger.Warn("thumbnail render failed", "index", i, "offset", set.candidates[i].offset, "error", err)
			}
			set.complete(i, frame, err)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, c := range set.Candidates() {
		if c.Failed {
			failed++
		}
	}
	s.logger.Info("thumbnails rendered",
		"candidates", set.Len(),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ctx.Err()
}

func renderOne(ctx context.Context, src FrameSource, offset float64, size Size) ([]byte, error) {
	img, err := src.Frame(ctx, offset)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos))
}

// EncodeJPEG encodes img as a JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Placeholder is a neutral frame shown when a render failed.
func Placeholder(size Size) []byte {
	img := imaging.New(size.Width, size.Height, color.NRGBA{R: 0x2b, G: 0x2f, B: 0x36, A: 0xff})
	// A centred lighter square hints at a missing picture.
	inner := imaging.New(size.Width/4, size.Height/4, color.NRGBA{R: 0x4a, G: 0x50, B: 0x5a, A: 0xff})
	img = imaging.PasteCenter(img, inner)
	b, _ := EncodeJPEG(img)
	return b
}

// Probe returns the duration of the media at input in seconds, falling back
// to elapsed when it cannot be determined. Streamed WebM files often carry
// no duration.
func (s *Sampler) Probe(ctx context.Context, input string, elapsed int) float64 {
	d, err := ProbeDuration(ctx, s.ffprobePath, input)
	if err != nil || d <= 0 {
		s.logger.Info("using elapsed seconds as duration", "elapsed_s", elapsed, "probe_error", err)
		return float64(elapsed)
	}
	return d
}

// ProbeDuration asks ffprobe for the container duration.
func ProbeDuration(ctx context.Context, ffprobePath, input string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(out))
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("duration unavailable")
	}
	return strconv.ParseFloat(s, 64)
}

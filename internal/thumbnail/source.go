package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

const frameTimeout = 30 * time.Second

// FFmpegSource decodes frames from a local file or URL with ffmpeg. Each
// Frame call runs its own ffmpeg process.
type FFmpegSource struct {
	ffmpegPath string
	input      string
	logger     *slog.Logger
}

func NewFFmpegSource(ffmpegPath, input string, logger *slog.Logger) *FFmpegSource {
	return &FFmpegSource{
		ffmpegPath: ffmpegPath,
		input:      input,
		logger:     logging.OrDiscard(logger),
	}
}

func (s *FFmpegSource) Frame(ctx context.Context, offset float64) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", s.input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %.2fs: %w: %s", offset, err, tail(stderr.String(), 256))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.2fs", offset)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	s.logger.Debug("frame decoded", "offset", offset, "png_bytes", len(out))
	return img, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

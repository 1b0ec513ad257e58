package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

const defaultDoctorTTL = 5 * time.Minute

// Capabilities lists the encoders the local ffmpeg build provides.
type Capabilities struct {
	Encoders map[string]bool
	ProbedAt time.Time
}

// Has reports whether every named encoder is available.
func (c *Capabilities) Has(names ...string) bool {
	if c == nil {
		return false
	}
	for _, n := range names {
		if !c.Encoders[n] {
			return false
		}
	}
	return true
}

// ProbeFunc inspects the host and reports its capabilities.
type ProbeFunc func(ctx context.Context) (*Capabilities, error)

// Doctor caches encoder probe results with a TTL so that format
// negotiation does not spawn ffmpeg on every recording.
type Doctor struct {
	probe  ProbeFunc
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewDoctor(probe ProbeFunc, logger *slog.Logger) *Doctor {
	return &Doctor{
		probe:  probe,
		ttl:    defaultDoctorTTL,
		logger: logging.WithComponent(logging.OrDiscard(logger), "capture_doctor"),
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *Doctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *Doctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness. A failed probe
// falls back to the stale cache when there is one.
func (d *Doctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.probe(ctx)
	if err != nil {
		d.logger.Warn("encoder probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}
	if caps.ProbedAt.IsZero() {
		caps.ProbedAt = time.Now()
	}

	d.cached = caps
	d.logger.Info("encoder probe complete", "encoders", len(caps.Encoders))
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *Doctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// FFmpegEncoderProbe returns a ProbeFunc that runs `ffmpeg -encoders`.
func FFmpegEncoderProbe(ffmpegPath string) ProbeFunc {
	return func(ctx context.Context) (*Capabilities, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
		cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg -encoders: %w: %s", err, truncate(stderr.String(), 512))
		}
		return &Capabilities{Encoders: ParseEncoders(out), ProbedAt: time.Now()}, nil
	}
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output.
// Entries follow the "------" separator line as "<flags> <name> <description>".
func ParseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	started := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

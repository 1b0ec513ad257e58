package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// DeviceConfig maps logical cameras onto ffmpeg input devices.
type DeviceConfig struct {
	InputFormat      string
	FrontDevice      string
	BackDevice       string
	AudioInputFormat string
	AudioDevice      string
	Width            int
	Height           int
}

// FFmpegProvider hands out exclusive streams on local capture devices. The
// streams carry the ffmpeg input arguments the encoder needs.
type FFmpegProvider struct {
	cfg    DeviceConfig
	logger *slog.Logger

	mu       sync.Mutex
	reserved map[string]string
}

func NewFFmpegProvider(cfg DeviceConfig, logger *slog.Logger) *FFmpegProvider {
	return &FFmpegProvider{
		cfg:      cfg,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "device_provider"),
		reserved: make(map[string]string),
	}
}

func (p *FFmpegProvider) device(f Facing) string {
	if f == FacingBack {
		return p.cfg.BackDevice
	}
	return p.cfg.FrontDevice
}

func (p *FFmpegProvider) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device := p.device(c.Facing)
	if device == "" {
		return nil, &DeviceError{Kind: DeviceNotFound, Facing: c.Facing, Err: errors.New("no device configured")}
	}
	if err := checkDeviceNode(device); err != nil {
		return nil, &DeviceError{Kind: classifyOpenError(err), Facing: c.Facing, Err: err}
	}

	if c.Width == 0 || c.Height == 0 {
		c.Width, c.Height = p.cfg.Width, p.cfg.Height
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if owner, busy := p.reserved[device]; busy {
		return nil, &DeviceError{Kind: DeviceBusy, Facing: c.Facing, Err: fmt.Errorf("%s held by stream %s", device, owner)}
	}

	s := &deviceStream{
		id:          uuid.NewString(),
		constraints: c,
		device:      device,
		provider:    p,
	}
	s.active.Store(true)
	p.reserved[device] = s.id

	p.logger.Info("device reserved", "device", device, "stream_id", s.id, "constraints", c.String())
	return s, nil
}

func (p *FFmpegProvider) release(device, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved[device] == id {
		delete(p.reserved, device)
		p.logger.Info("device unreserved", "device", device, "stream_id", id)
	}
}

// checkDeviceNode verifies a /dev node exists and is readable. Other
// device names (e.g. avfoundation indices) are passed through unchecked.
func checkDeviceNode(device string) error {
	if !strings.HasPrefix(device, "/dev/") {
		return nil
	}
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

func classifyOpenError(err error) DeviceErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return DeviceNotFound
	case errors.Is(err, fs.ErrPermission):
		return DevicePermissionDenied
	default:
		return DeviceUnavailable
	}
}

type deviceStream struct {
	id          string
	constraints Constraints
	device      string
	provider    *FFmpegProvider
	active      atomic.Bool
}

func (s *deviceStream) ID() string               { return s.id }
func (s *deviceStream) Constraints() Constraints { return s.constraints }
func (s *deviceStream) Active() bool             { return s.active.Load() }

func (s *deviceStream) Stop() {
	if s.active.CompareAndSwap(true, false) {
		s.provider.release(s.device, s.id)
	}
}

// InputArgs returns the ffmpeg arguments that open this stream's devices.
func (s *deviceStream) InputArgs() []string {
	cfg := s.provider.cfg
	args := []string{"-f", cfg.InputFormat}
	if s.constraints.Width > 0 && s.constraints.Height > 0 {
		args = append(args, "-video_size", strconv.Itoa(s.constraints.Width)+"x"+strconv.Itoa(s.constraints.Height))
	}
	args = append(args, "-i", s.device)
	if s.constraints.Audio && cfg.AudioDevice != "" {
		args = append(args, "-f", cfg.AudioInputFormat, "-i", cfg.AudioDevice)
	}
	return args
}

// InputSource is implemented by streams that ffmpeg can open directly.
type InputSource interface {
	InputArgs() []string
}

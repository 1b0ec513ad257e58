package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// Session owns at most one live stream. Starting a new stream always stops
// the previous one first.
type Session struct {
	provider Provider
	logger   *slog.Logger
	labels   func(Facing) string

	mu        sync.Mutex
	facing    Facing
	stream    Stream
	recording bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLabels overrides the camera names returned by Label.
func WithLabels(fn func(Facing) string) SessionOption {
	return func(s *Session) { s.labels = fn }
}

func NewSession(provider Provider, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "device_session"),
		labels:   Facing.Label,
		facing:   FacingFront,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start releases any held stream and acquires a new one for facing. On
// failure the session holds no stream.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, facing)
}

func (s *Session) startLocked(ctx context.Context, facing Facing) error {
	s.releaseLocked()
	s.facing = facing

	stream, err := s.provider.Acquire(ctx, DefaultConstraints(facing))
	if err != nil {
		s.logger.Warn("device acquisition failed", "facing", facing, "error", err)
		return asDeviceError(err, facing)
	}

	s.stream = stream
	s.logger.Info("device acquired", "facing", facing, "stream_id", stream.ID())
	return nil
}

// Switch flips the camera and restarts the stream. It is ignored, and
// returns false, while a recording is in progress.
func (s *Session) Switch(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		s.logger.Info("camera switch ignored while recording")
		return false, nil
	}
	return true, s.startLocked(ctx, s.facing.Flip())
}

// Stop releases the stream. It is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	if s.stream == nil {
		return
	}
	id := s.stream.ID()
	s.stream.Stop()
	s.stream = nil
	s.logger.Info("device released", "stream_id", id)
}

// Stream returns the live stream, or nil.
func (s *Session) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Label is the human name of the active camera.
func (s *Session) Label() string {
	return s.labels(s.Facing())
}

// Live reports whether an active stream is held.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil && s.stream.Active()
}

func (s *Session) setRecording(v bool) {
	s.mu.Lock()
	s.recording = v
	s.mu.Unlock()
}

func asDeviceError(err error, facing Facing) error {
	var de *DeviceError
	if errors.As(err, &de) {
		if de.Facing == "" {
			de.Facing = facing
		}
		return de
	}
	return &DeviceError{Kind: DeviceUnavailable, Facing: facing, Err: err}
}

// Package capture owns the camera/microphone device session and the
// recording state machine built on top of it.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Facing selects the logical camera.
type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// ParseFacing accepts "front"/"back" (and the browser names "user" and
// "environment"). Unknown values map to front.
func ParseFacing(s string) Facing {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back", "environment", "rear":
		return FacingBack
	default:
		return FacingFront
	}
}

// Flip returns the other camera.
func (f Facing) Flip() Facing {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

// Label is the human name of the camera.
func (f Facing) Label() string {
	if f == FacingBack {
		return "Back camera"
	}
	return "Front camera"
}

// Constraints describe the stream requested from a Provider.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
	Audio  bool
}

// DefaultConstraints requests 1280x720 with audio on the given camera.
func DefaultConstraints(f Facing) Constraints {
	return Constraints{Facing: f, Width: 1280, Height: 720, Audio: true}
}

func (c Constraints) String() string {
	return fmt.Sprintf("%s %dx%d audio=%t", c.Facing, c.Width, c.Height, c.Audio)
}

// Stream is a live camera/microphone handle. Stop releases every track and
// is safe to call more than once.
type Stream interface {
	ID() string
	Constraints() Constraints
	Active() bool
	Stop()
}

// Provider acquires live streams from physical devices.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Encoder turns a live stream into an encoded container.
type Encoder interface {
	// Supports reports whether mimeType can be produced on this host.
	Supports(ctx context.Context, mimeType string) bool
	// Start begins encoding stream as mimeType, emitting a chunk at least
	// every timeslice while data is available.
	Start(ctx context.Context, stream Stream, mimeType string, timeslice time.Duration) (Encoding, error)
}

// Encoding is a running encoder.
type Encoding interface {
	// Chunks is closed after the final chunk has been delivered.
	Chunks() <-chan []byte
	// Stop finishes the container and flushes the remaining data.
	Stop() error
	// Abort terminates without flushing.
	Abort()
}

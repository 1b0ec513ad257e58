package api

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
)

type fakeProvider struct {
	mu   sync.Mutex
	next int
	fail error
}

func (p *fakeProvider) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	p.next++
	return &fakeStream{id: fmt.Sprintf("stream-%d", p.next), c: c}, nil
}

type fakeStream struct {
	mu      sync.Mutex
	id      string
	c       capture.Constraints
	stopped bool
}

func (s *fakeStream) ID() string                       { return s.id }
func (s *fakeStream) Constraints() capture.Constraints { return s.c }

func (s *fakeStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

type fakeEncoder struct {
	started chan *fakeEncoding
}

func (e *fakeEncoder) Supports(ctx context.Context, mime string) bool {
	return mime == "video/webm;codecs=vp8,opus"
}

func (e *fakeEncoder) Start(ctx context.Context, stream capture.Stream, mime string, timeslice time.Duration) (capture.Encoding, error) {
	enc := &fakeEncoding{chunks: make(chan []byte, 16)}
	e.started <- enc
	return enc, nil
}

type fakeEncoding struct {
	chunks chan []byte
	once   sync.Once
}

func (e *fakeEncoding) Chunks() <-chan []byte { return e.chunks }

func (e *fakeEncoding) Stop() error {
	e.once.Do(func() { close(e.chunks) })
	return nil
}

func (e *fakeEncoding) Abort() {
	e.once.Do(func() { close(e.chunks) })
}

// fixedThumbnails renders with the real sampler and reports a fixed
// duration instead of running ffprobe.
type fixedThumbnails struct {
	*thumbnail.Sampler
	duration float64
}

func (f *fixedThumbnails) Probe(ctx context.Context, input string, elapsed int) float64 {
	return f.duration
}

type solidSource struct{}

func (solidSource) Frame(ctx context.Context, offset float64) (image.Image, error) {
	return imaging.New(64, 36, color.NRGBA{R: 30, G: 120, B: 200, A: 255}), nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	err   error
	count int
}

func (f *fakeBlobs) Name() string { return "fake" }

func (f *fakeBlobs) Upload(ctx context.Context, r io.Reader, opts blobstore.UploadOptions) (*blobstore.Asset, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.count++
	key := fmt.Sprintf("clip-%d.webm", f.count)
	return &blobstore.Asset{URL: "http://127.0.0.1:8787/media/" + key, ID: key}, nil
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
)

type fakeProvider struct {
	mu   sync.Mutex
	live int
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
	p.live++
	return &fakeStream{id: fmt.Sprintf("stream-%d", p.next), c: c, p: p, active: true}, nil
}

func (p *fakeProvider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

type fakeStream struct {
	id     string
	c      capture.Constraints
	p      *fakeProvider
	active bool
}

func (s *fakeStream) ID() string                       { return s.id }
func (s *fakeStream) Constraints() capture.Constraints { return s.c }

func (s *fakeStream) Active() bool {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.active
}

func (s *fakeStream) Stop() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.active {
		s.active = false
		s.p.live--
	}
}

type fakeEncoder struct {
	started chan *fakeEncoding
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{started: make(chan *fakeEncoding, 4)}
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
func (e *fakeEncoding) emit(b string)         { e.chunks <- []byte(b) }

func (e *fakeEncoding) Stop() error {
	e.once.Do(func() { close(e.chunks) })
	return nil
}

func (e *fakeEncoding) Abort() {
	e.once.Do(func() { close(e.chunks) })
}

// fakeThumbnails renders with the real sampler but reports a fixed
// duration instead of running ffprobe.
type fakeThumbnails struct {
	*thumbnail.Sampler
	duration float64

	mu     sync.Mutex
	probed []string
}

func (f *fakeThumbnails) Probe(ctx context.Context, input string, elapsed int) float64 {
	f.mu.Lock()
	f.probed = append(f.probed, input)
	f.mu.Unlock()
	if f.duration <= 0 {
		return float64(elapsed)
	}
	return f.duration
}

type fakeSource struct {
	failAt float64
}

func (s *fakeSource) Frame(ctx context.Context, offset float64) (image.Image, error) {
	if s.failAt > 0 && offset == s.failAt {
		return nil, errors.New("seek failed")
	}
	return imaging.New(64, 36, color.NRGBA{R: 200, G: 40, B: 40, A: 255}), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	requests []publish.Request
	edits    map[string]publish.Edit
}

func (p *fakePublisher) Publish(ctx context.Context, req publish.Request) (*clips.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &clips.Clip{ID: "clip-1", Title: req.Title, Filter: req.Filter}, nil
}

func (p *fakePublisher) Update(ctx context.Context, id string, edit publish.Edit) (*clips.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.edits == nil {
		p.edits = map[string]publish.Edit{}
	}
	p.edits[id] = edit
	if p.err != nil {
		return nil, p.err
	}
	c := &clips.Clip{ID: id}
	if edit.Filter != nil {
		c.Filter = *edit.Filter
	}
	if edit.ThumbnailOffset != nil {
		c.ThumbnailOffset = int(*edit.ThumbnailOffset + 0.5)
	}
	return c, nil
}

type fakeClips map[string]*clips.Clip

func (f fakeClips) Get(ctx context.Context, id string) (*clips.Clip, error) {
	if c, ok := f[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("clip %s: %w", id, docstore.ErrNotFound)
}

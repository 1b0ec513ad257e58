package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeProvider struct {
	mu      sync.Mutex
	live    int
	maxLive int
	fail    map[Facing]error
	started []Facing
	next    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{fail: map[Facing]error{}}
}

func (p *fakeProvider) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[c.Facing]; err != nil {
		return nil, err
	}
	p.next++
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	p.started = append(p.started, c.Facing)
	s := &fakeStream{id: fmt.Sprintf("stream-%d", p.next), c: c, p: p, active: true}
	return s, nil
}

func (p *fakeProvider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

type fakeStream struct {
	id     string
	c      Constraints
	p      *fakeProvider
	active bool
}

func (s *fakeStream) ID() string               { return s.id }
func (s *fakeStream) Constraints() Constraints { return s.c }

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
	supported map[string]bool
	startErr  error

	mu       sync.Mutex
	encoding *fakeEncoding
	started  chan *fakeEncoding
}

func newFakeEncoder(supported ...string) *fakeEncoder {
	e := &fakeEncoder{supported: map[string]bool{}, started: make(chan *fakeEncoding, 4)}
	for _, m := range supported {
		e.supported[m] = true
	}
	return e
}

func (e *fakeEncoder) Supports(ctx context.Context, mime string) bool {
	return e.supported[mime]
}

func (e *fakeEncoder) Start(ctx context.Context, stream Stream, mime string, timeslice time.Duration) (Encoding, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	enc := &fakeEncoding{chunks: make(chan []byte, 16), tail: []byte("-tail")}
	e.mu.Lock()
	e.encoding = enc
	e.mu.Unlock()
	e.started <- enc
	return enc, nil
}

type fakeEncoding struct {
	chunks  chan []byte
	tail    []byte
	once    sync.Once
	stopped bool
	aborted bool
}

func (e *fakeEncoding) Chunks() <-chan []byte { return e.chunks }

func (e *fakeEncoding) emit(b string) { e.chunks <- []byte(b) }

func (e *fakeEncoding) Stop() error {
	e.once.Do(func() {
		e.stopped = true
		if len(e.tail) > 0 {
			e.chunks <- e.tail
		}
		close(e.chunks)
	})
	return nil
}

func (e *fakeEncoding) Abort() {
	e.once.Do(func() {
		e.aborted = true
		close(e.chunks)
	})
}

var errDenied = errors.New("permission denied by user")

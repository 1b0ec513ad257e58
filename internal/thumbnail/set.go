// Package thumbnail computes deterministic poster-frame candidates for a
// recording and renders a still frame for each of them.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	minCandidates = 3
	maxCandidates = 6
	// nearTolerance is how far a stored offset may be from a candidate and
	// still select it.
	nearTolerance = 1.0
)

var (
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrPending         = errors.New("frame not rendered yet")
	ErrOutOfRange      = errors.New("candidate index out of range")
)

// RenderError is recorded on a candidate whose frame could not be rendered.
type RenderError struct {
	Index  int
	Offset float64
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render candidate %d at %.2fs: %v", e.Index, e.Offset, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// CandidateCount is floor(duration) clamped to [3, 6].
func CandidateCount(duration float64) int {
	n := int(math.Floor(duration))
	if n < minCandidates {
		return minCandidates
	}
	if n > maxCandidates {
		return maxCandidates
	}
	return n
}

// Offsets returns the midpoints of CandidateCount equal segments of
// duration.
func Offsets(duration float64) ([]float64, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, ErrInvalidDuration
	}
	n := CandidateCount(duration)
	step := duration / float64(n)
	offsets := make([]float64, n)
	for i := range offsets {
		offsets[i] = step*float64(i) + step/2
	}
	return offsets, nil
}

// Candidate is a read-only view of one sampled offset.
type Candidate struct {
	Index    int
	Offset   float64
	Selected bool
	Ready    bool
	Failed   bool
	Err      error
}

type candidate struct {
	offset float64
	once   sync.Once
	done   chan struct{}
	frame  []byte
	err    error
}

// Set is a generated group of candidates of which exactly one is selected.
type Set struct {
	duration   float64
	candidates []*candidate

	mu       sync.RWMutex
	selected int
}

// NewSet builds the candidates for duration with the first one selected.
func NewSet(duration float64) (*Set, error) {
	offsets, err := Offsets(duration)
	if err != nil {
		return nil, err
	}
	s := &Set{duration: duration, candidates: make([]*candidate, len(offsets))}
	for i, off := range offsets {
		s.candidates[i] = &candidate{offset: off, done: make(chan struct{})}
	}
	return s, nil
}

// NewSetNear builds the same candidates as NewSet and selects the one
// nearest to stored when it lies within one second; otherwise the first.
func NewSetNear(duration, stored float64) (*Set, error) {
	s, err := NewSet(duration)
	if err != nil {
		return nil, err
	}
	best, bestDist := -1, math.Inf(1)
	for i, c := range s.candidates {
		if d := math.Abs(c.offset - stored); d <= nearTolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		s.selected = best
	}
	return s, nil
}

func (s *Set) Duration() float64 {
	return s.duration
}

func (s *Set) Len() int {
	return len(s.candidates)
}

// Select makes index the only selected candidate.
func (s *Set) Select(index int) error {
	if index < 0 || index >= len(s.candidates) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, len(s.candidates))
	}
	s.mu.Lock()
	s.selected = index
	s.mu.Unlock()
	return nil
}

func (s *Set) SelectedIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Selected returns the selected candidate.
func (s *Set) Selected() Candidate {
	return s.view(s.SelectedIndex())
}

// SelectedOffset is the poster time of the selected candidate.
func (s *Set) SelectedOffset() float64 {
	return s.candidates[s.SelectedIndex()].offset
}

func (s *Set) Candidates() []Candidate {
	out := make([]Candidate, len(s.candidates))
	for i := range s.candidates {
		out[i] = s.view(i)
	}
	return out
}

func (s *Set) view(i int) Candidate {
	c := s.candidates[i]
	v := Candidate{Index: i, Offset: c.offset, Selected: i == s.SelectedIndex()}
	select {
	case <-c.done:
		v.Ready = c.err == nil
		v.Failed = c.err != nil
		v.Err = c.err
	default:
	}
	return v
}

// Frame returns the rendered JPEG without waiting. It returns ErrPending
// before the render finished and a *RenderError when it failed.
func (s *Set) Frame(index int) ([]byte, error) {
	c, err := s.candidate(index)
	if err != nil {
		return nil, err
	}
	select {
	case <-c.done:
		return c.frame, c.err
	default:
		return nil, ErrPending
	}
}

// WaitFrame blocks until the candidate has been rendered or ctx is done.
func (s *Set) WaitFrame(ctx context.Context, index int) ([]byte, error) {
	c, err := s.candidate(index)
	if err != nil {
		return nil, err
	}
	select {
	case <-c.done:
		return c.frame, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when every candidate has finished rendering.
func (s *Set) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for _, c := range s.candidates {
			<-c.done
		}
		close(done)
	}()
	return done
}

func (s *Set) candidate(index int) (*candidate, error) {
	if index < 0 || index >= len(s.candidates) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, len(s.candidates))
	}
	return s.candidates[index], nil
}

// complete stores a render result. Only the first result counts.
func (s *Set) complete(index int, frame []byte, err error) {
	c := s.candidates[index]
	c.once.Do(func() {
		c.frame = frame
		if err != nil {
			c.err = &RenderError{Index: index, Offset: c.offset, Err: err}
		}
		close(c.done)
	})
}

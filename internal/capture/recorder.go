package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// State is the recorder lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePreviewing
	StateArmed
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewing:
		return "previewing"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// DefaultTimeslice is the chunk flush interval.
	DefaultTimeslice = time.Second
	tickInterval     = time.Second
	drainTimeout     = 10 * time.Second
)

// Blob is a finished recording. It is never modified after Stop.
type Blob struct {
	Data     []byte
	MimeType string
	// Elapsed is the number of whole seconds ticked while recording.
	Elapsed int
}

// Event is published on state changes and on every elapsed tick.
type Event struct {
	State   State
	Elapsed int
	Label   string
}

// FormatElapsed renders seconds as MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	State    State
	MimeType string
	Elapsed  int
	Chunks   int
	Bytes    int
}

// Recorder drives one Session through idle, previewing, armed, recording
// and stopped.
type Recorder struct {
	session     *Session
	encoder     Encoder
	preferences []string
	timeslice   time.Duration
	tick        time.Duration
	logger      *slog.Logger

	// opMu serializes lifecycle operations; mu guards the fields below.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	mimeType string
	chunks   [][]byte
	size     int
	elapsed  int
	blob     *Blob
	encoding Encoding
	drained  chan struct{}
	stopTick chan struct{}
	tickDone chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithPreferences replaces DefaultMimePreferences.
func WithPreferences(prefs []string) RecorderOption {
	return func(r *Recorder) { r.preferences = prefs }
}

// WithTickInterval changes the elapsed tick period.
func WithTickInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.tick = d }
}

func NewRecorder(session *Session, encoder Encoder, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		session:     session,
		encoder:     encoder,
		preferences: DefaultMimePreferences,
		timeslice:   DefaultTimeslice,
		tick:        tickInterval,
		logger:      logging.WithComponent(logging.OrDiscard(logger), "recorder"),
		subs:        make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the device session the recorder drives.
func (r *Recorder) Session() *Session {
	return r.session
}

// Preview starts the device session and enters PREVIEWING, clearing any
// previous recording. Calling it while already previewing is a no-op.
func (r *Recorder) Preview(ctx context.Context, facing Facing) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	switch st := r.State(); st {
	case StatePreviewing:
		return nil
	case StateIdle:
	default:
		return &StateError{Op: "preview", State: st}
	}

	if err := r.session.Start(ctx, facing); err != nil {
		return err
	}
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	r.setState(StatePreviewing)
	return nil
}

// Record negotiates a format and starts encoding the live stream.
func (r *Recorder) Record(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if st := r.State(); st != StatePreviewing {
		return &StateError{Op: "record", State: st}
	}
	stream := r.session.Stream()
	if stream == nil || !stream.Active() {
		return &DeviceError{Kind: DeviceUnavailable, Facing: r.session.Facing(), Err: fmt.Errorf("no live stream")}
	}

	r.setState(StateArmed)

	mime, err := Negotiate(ctx, r.encoder, r.preferences)
	if err != nil {
		r.setState(StatePreviewing)
		r.logger.Error("no supported recording format", "tried", r.preferences)
		return err
	}

	// The session must refuse camera switches before the encoder opens the
	// stream.
	r.session.setRecording(true)
	enc, err := r.encoder.Start(ctx, stream, mime, r.timeslice)
	if err != nil {
		r.session.setRecording(false)
		r.setState(StatePreviewing)
		return fmt.Errorf("start encoder: %w", err)
	}

	r.mu.Lock()
	r.resetLocked()
	r.mimeType = mime
	r.encoding = enc
	r.drained = make(chan struct{})
	r.stopTick = make(chan struct{})
	r.tickDone = make(chan struct{})
	drained, stopTick, tickDone := r.drained, r.stopTick, r.tickDone
	r.mu.Unlock()

	go r.collect(enc.Chunks(), drained)
	go r.runTicker(stopTick, tickDone)

	r.setState(StateRecording)
	r.logger.Info("recording started", "mime_type", mime, "stream_id", stream.ID())
	return nil
}

func (r *Recorder) collect(chunks <-chan []byte, drained chan<- struct{}) {
	defer close(drained)
	for chunk := range chunks {
		r.mu.Lock()
		if r.state == StateRecording {
			r.chunks = append(r.chunks, chunk)
			r.size += len(chunk)
		}
		r.mu.Unlock()
	}
}

func (r *Recorder) runTicker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.elapsed++
			elapsed := r.elapsed
			r.mu.Unlock()
			r.publish(Event{State: StateRecording, Elapsed: elapsed, Label: FormatElapsed(elapsed)})
		}
	}
}

// Stop flushes the encoder, freezes the blob and releases the device. It
// returns the same blob when called again.
func (r *Recorder) Stop(ctx context.Context) (*Blob, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	switch st := r.State(); st {
	case StateStopped:
		return r.Blob(), nil
	case StateRecording:
	default:
		return nil, &StateError{Op: "stop", State: st}
	}

	r.mu.Lock()
	enc, drained := r.encoding, r.drained
	r.mu.Unlock()

	r.haltTicker()
	stopErr := enc.Stop()
	if stopErr != nil {
		r.logger.Warn("encoder stop reported an error", "error", stopErr)
	}

	select {
	case <-drained:
	case <-ctx.Done():
		enc.Abort()
		<-drained
	case <-time.After(drainTimeout):
		enc.Abort()
		<-drained
	}

	r.mu.Lock()
	blob := &Blob{
		Data:     bytes.Join(r.chunks, nil),
		MimeType: r.mimeType,
		Elapsed:  r.elapsed,
	}
	r.blob = blob
	r.chunks = nil
	r.encoding = nil
	r.state = StateStopped
	r.mu.Unlock()

	r.session.setRecording(false)
	r.session.Stop()

	r.publish(Event{State: StateStopped, Elapsed: blob.Elapsed, Label: FormatElapsed(blob.Elapsed)})
	r.logger.Info("recording stopped", "bytes", len(blob.Data), "elapsed_s", blob.Elapsed, "mime_type", blob.MimeType)

	if len(blob.Data) == 0 && stopErr != nil {
		return blob, fmt.Errorf("recording produced no data: %w", stopErr)
	}
	return blob, nil
}

// Discard drops the finished recording and goes back to previewing on the
// same camera.
func (r *Recorder) Discard(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	if st := r.State(); st != StateStopped {
		return &StateError{Op: "discard", State: st}
	}

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	r.logger.Info("recording discarded")

	if err := r.session.Start(ctx, r.session.Facing()); err != nil {
		r.setState(StateIdle)
		return err
	}
	r.setState(StatePreviewing)
	return nil
}

// Close aborts any recording, releases the device and clears every
// recording field. It is safe from any state.
func (r *Recorder) Close() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	enc, drained := r.encoding, r.drained
	r.mu.Unlock()

	r.haltTicker()
	if enc != nil {
		enc.Abort()
		<-drained
	}

	r.session.setRecording(false)
	r.session.Stop()

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	r.setState(StateIdle)
}

func (r *Recorder) haltTicker() {
	r.mu.Lock()
	stop, done := r.stopTick, r.tickDone
	r.stopTick, r.tickDone = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// resetLocked clears all recording fields. Caller holds mu.
func (r *Recorder) resetLocked() {
	r.mimeType = ""
	r.chunks = nil
	r.size = 0
	r.elapsed = 0
	r.blob = nil
	r.encoding = nil
	r.drained = nil
}

func (r *Recorder) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	elapsed := r.elapsed
	r.mu.Unlock()

	if prev != s {
		r.logger.Info("recorder state changed", "from", prev.String(), "to", s.String())
		r.publish(Event{State: s, Elapsed: elapsed, Label: FormatElapsed(elapsed)})
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Blob returns the frozen recording, or nil before Stop.
func (r *Recorder) Blob() *Blob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blob
}

func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		State:    r.state,
		MimeType: r.mimeType,
		Elapsed:  r.elapsed,
		Chunks:   len(r.chunks),
		Bytes:    r.size,
	}
	if r.blob != nil {
		snap.MimeType = r.blob.MimeType
		snap.Bytes = len(r.blob.Data)
	}
	return snap
}

// Subscribe returns a channel of recorder events and a function that
// unsubscribes and closes it. Slow subscribers miss events.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Recorder) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

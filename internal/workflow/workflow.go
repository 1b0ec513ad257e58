// Package workflow owns the capture flow from opening a camera to
// publishing a clip, and the editor used to re-pick a published clip's
// thumbnail.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/filter"
	"github.com/reelbox/reelbox-agent/internal/locale"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/metrics"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
)

// Phase is the coarse state of a capture workflow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreviewing Phase = "previewing"
	PhaseRecording  Phase = "recording"
	PhaseReviewing  Phase = "reviewing"
	PhaseUploading  Phase = "uploading"
	PhaseClosed     Phase = "closed"
)

// PhaseError reports an operation that the current phase does not allow.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.Phase)
}

// ErrNoThumbnails is returned when the recording was too short to sample.
var ErrNoThumbnails = errors.New("no thumbnail candidates for this recording")

// Publisher is the part of publish.Coordinator a workflow needs.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*clips.Clip, error)
	Update(ctx context.Context, id string, edit publish.Edit) (*clips.Clip, error)
}

// Thumbnails renders candidate frames and measures recordings.
// *thumbnail.Sampler implements it.
type Thumbnails interface {
	Render(ctx context.Context, set *thumbnail.Set, src thumbnail.FrameSource, size thumbnail.Size) error
	Probe(ctx context.Context, input string, elapsed int) float64
}

// SourceFactory opens a frame source over a local file or media URL.
type SourceFactory func(input string) thumbnail.FrameSource

// Deps are the collaborators shared by every workflow.
type Deps struct {
	Provider   capture.Provider
	Encoder    capture.Encoder
	Thumbnails Thumbnails
	Sources    SourceFactory
	Publisher  Publisher
	Locale     string
	// TempDir holds recordings while they are reviewed. os.TempDir when
	// empty.
	TempDir         string
	RecorderOptions []capture.RecorderOption
	Logger          *slog.Logger
}

// Workflow is one capture flow. It owns a device session, a recorder, a
// filter selector and, after Stop, the thumbnail candidates.
type Workflow struct {
	id       string
	deps     Deps
	recorder *capture.Recorder
	selector *filter.Selector
	logger   *slog.Logger
	now      func() time.Time

	opMu sync.Mutex

	mu         sync.Mutex
	phase      Phase
	set        *thumbnail.Set
	duration   float64
	tmpPath    string
	startedAt  time.Time
	stopRender context.CancelFunc
	renderDone chan struct{}
	// opened is set once the camera first came up.
	opened bool
}

func New(deps Deps) *Workflow {
	id := uuid.NewString()
	logger := logging.WithWorkflowID(logging.WithComponent(logging.OrDiscard(deps.Logger), "workflow"), id)
	session := capture.NewSession(deps.Provider, logger, capture.WithLabels(func(f capture.Facing) string {
		return locale.CameraLabel(deps.Locale, f == capture.FacingBack)
	}))
	return &Workflow{
		id:       id,
		deps:     deps,
		recorder: capture.NewRecorder(session, deps.Encoder, logger, deps.RecorderOptions...),
		selector: filter.NewSelector(),
		logger:   logger,
		now:      time.Now,
		phase:    PhaseIdle,
	}
}

func (w *Workflow) ID() string {
	return w.id
}

func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *Workflow) setPhase(p Phase) {
	w.mu.Lock()
	prev := w.phase
	w.phase = p
	w.mu.Unlock()
	if prev != p {
		w.logger.Info("workflow phase changed", "from", prev, "to", p)
	}
}

// Open starts the camera preview.
func (w *Workflow) Open(ctx context.Context, facing capture.Facing) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if p := w.Phase(); p != PhaseIdle {
		return &PhaseError{Op: "open", Phase: p}
	}
	if err := w.recorder.Preview(ctx, facing); err != nil {
		metrics.CaptureEvent("device_error")
		return err
	}
	metrics.CaptureEvent("open")
	metrics.ActiveCaptures.Inc()
	w.mu.Lock()
	w.opened = true
	w.mu.Unlock()
	w.setPhase(PhasePreviewing)
	return nil
}

// SwitchCamera flips between the front and back camera. It reports false
// when the switch was ignored because a recording is running. The workflow
// is closed when the other camera cannot be opened.
func (w *Workflow) SwitchCamera(ctx context.Context) (bool, error) {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	switch p := w.Phase(); p {
	case PhaseRecording:
		return false, nil
	case PhasePreviewing:
	default:
		return false, &PhaseError{Op: "switch camera", Phase: p}
	}
	switched, err := w.recorder.Session().Switch(ctx)
	if err != nil {
		// The previous camera is already released.
		metrics.CaptureEvent("device_error")
		w.closeLocked()
		return false, err
	}
	if switched {
		metrics.CaptureEvent("switch")
	}
	return switched, nil
}

// Record starts recording the live preview.
func (w *Workflow) Record(ctx context.Context) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if p := w.Phase(); p != PhasePreviewing {
		return &PhaseError{Op: "record", Phase: p}
	}
	if err := w.recorder.Record(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	w.startedAt = w.now()
	w.mu.Unlock()

	metrics.CaptureEvent("record")
	w.setPhase(PhaseRecording)
	return nil
}

// Stop finishes the recording, then derives thumbnail candidates from it
// and renders them in the background.
func (w *Workflow) Stop(ctx context.Context) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if p := w.Phase(); p != PhaseRecording {
		return &PhaseError{Op: "stop", Phase: p}
	}
	blob, err := w.recorder.Stop(ctx)
	if w.recorder.State() != capture.StateStopped {
		return err
	}
	if err != nil {
		w.logger.Warn("recording stopped with an error", "error", err)
	}
	metrics.CaptureEvent("stop")
	metrics.ObserveRecording(blob.Elapsed)
	w.setPhase(PhaseReviewing)

	if len(blob.Data) == 0 {
		return err
	}
	w.prepareThumbnails(ctx, blob)
	return nil
}

func (w *Workflow) prepareThumbnails(ctx context.Context, blob *capture.Blob) {
	path, err := w.writeTemp(blob)
	if err != nil {
		w.logger.Error("cannot stage recording for thumbnails", "error", err)
		return
	}
	duration := w.deps.Thumbnails.Probe(ctx, path, blob.Elapsed)

	set, err := thumbnail.NewSet(duration)
	if err != nil {
		w.logger.Warn("no thumbnail candidates", "duration_s", duration, "error", err)
		w.mu.Lock()
		w.tmpPath = path
		w.duration = float64(blob.Elapsed)
		w.mu.Unlock()
		return
	}

	renderCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	w.tmpPath = path
	w.duration = duration
	w.set = set
	w.stopRender = cancel
	w.renderDone = done
	w.mu.Unlock()

	src := w.deps.Sources(path)
	go func() {
		defer close(done)
		if err := w.deps.Thumbnails.Render(renderCtx, set, src, thumbnail.SelectionSize); err != nil {
			w.logger.Info("thumbnail render cancelled", "error", err)
		}
		for _, c := range set.Candidates() {
			metrics.ThumbnailRender(!c.Failed)
		}
	}()
}

func (w *Workflow) writeTemp(blob *capture.Blob) (string, error) {
	f, err := os.CreateTemp(w.deps.TempDir, "recording-*"+blobstore.ExtensionFor(blob.MimeType))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(blob.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

// SelectThumbnail makes index the poster frame candidate.
func (w *Workflow) SelectThumbnail(index int) error {
	w.mu.Lock()
	p, set := w.phase, w.set
	w.mu.Unlock()

	if p != PhaseReviewing {
		return &PhaseError{Op: "select thumbnail", Phase: p}
	}
	if set == nil {
		return ErrNoThumbnails
	}
	return set.Select(index)
}

// SetFilter changes the cosmetic filter of preview frames and of the clip.
func (w *Workflow) SetFilter(f filter.Filter) error {
	switch p := w.Phase(); p {
	case PhasePreviewing, PhaseRecording, PhaseReviewing:
	default:
		return &PhaseError{Op: "set filter", Phase: p}
	}
	return w.selector.Set(f)
}

// Discard drops the recording and returns to the live preview. The
// workflow is closed when the camera cannot be reopened.
func (w *Workflow) Discard(ctx context.Context, confirmed bool) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if p := w.Phase(); p != PhaseReviewing {
		return &PhaseError{Op: "discard", Phase: p}
	}
	if err := w.recorder.Discard(ctx, confirmed); err != nil {
		var de *capture.DeviceError
		if errors.As(err, &de) {
			metrics.CaptureEvent("device_error")
			w.closeLocked()
		}
		return err
	}
	w.releaseReview()
	metrics.CaptureEvent("discard")
	w.setPhase(PhasePreviewing)
	return nil
}

// PublishOptions are the user-supplied parts of a publish.
type PublishOptions struct {
	Title string
	// CreatedAtLocal is the capture time as seen by the client. The
	// recording start is used when zero.
	CreatedAtLocal time.Time
}

// Publish uploads the recording with the selected thumbnail and filter.
// On success the workflow is closed; on failure it stays in review so the
// user can retry.
func (w *Workflow) Publish(ctx context.Context, opts PublishOptions) (*clips.Clip, error) {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if p := w.Phase(); p != PhaseReviewing {
		return nil, &PhaseError{Op: "publish", Phase: p}
	}

	w.mu.Lock()
	set, startedAt := w.set, w.startedAt
	w.mu.Unlock()

	// The stored duration is the recorded time. The probed container
	// duration only places the thumbnail candidates.
	blob := w.recorder.Blob()
	req := publish.Request{
		Recording:      blob,
		Title:          opts.Title,
		Filter:         w.selector.Active(),
		CreatedAtLocal: opts.CreatedAtLocal,
	}
	if blob != nil {
		req.Duration = float64(blob.Elapsed)
	}
	if set != nil {
		req.ThumbnailOffset = set.SelectedOffset()
	}
	if req.CreatedAtLocal.IsZero() {
		req.CreatedAtLocal = startedAt
	}

	w.setPhase(PhaseUploading)
	clip, err := w.deps.Publisher.Publish(ctx, req)
	if err != nil {
		w.setPhase(PhaseReviewing)
		return nil, err
	}

	metrics.CaptureEvent("publish")
	w.closeLocked()
	return clip, nil
}

// Close releases everything the workflow holds. It is idempotent.
func (w *Workflow) Close() {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	w.closeLocked()
}

// closeLocked requires opMu.
func (w *Workflow) closeLocked() {
	if w.Phase() == PhaseClosed {
		return
	}
	w.recorder.Close()
	w.releaseReview()

	w.mu.Lock()
	opened := w.opened
	w.opened = false
	w.mu.Unlock()
	if opened {
		metrics.ActiveCaptures.Dec()
	}
	w.setPhase(PhaseClosed)
}

// releaseReview stops rendering and deletes the staged recording.
func (w *Workflow) releaseReview() {
	w.mu.Lock()
	cancel, done, path := w.stopRender, w.renderDone, w.tmpPath
	w.stopRender, w.renderDone, w.tmpPath = nil, nil, ""
	w.set = nil
	w.duration = 0
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("cannot remove staged recording", "path", logging.SanitizePath(path), "error", err)
		}
	}
}

// Recording returns the frozen recording for playback.
func (w *Workflow) Recording() (*capture.Blob, error) {
	switch p := w.Phase(); p {
	case PhaseReviewing, PhaseUploading:
	default:
		return nil, &PhaseError{Op: "play recording", Phase: p}
	}
	blob := w.recorder.Blob()
	if blob == nil {
		return nil, &PhaseError{Op: "play recording", Phase: w.Phase()}
	}
	return blob, nil
}

// Frame returns candidate index as a JPEG with the active filter applied.
// With wait set it blocks until the frame is rendered; otherwise it returns
// thumbnail.ErrPending. A failed candidate yields the placeholder.
func (w *Workflow) Frame(ctx context.Context, index int, wait bool) ([]byte, error) {
	w.mu.Lock()
	p, set := w.phase, w.set
	w.mu.Unlock()

	if p != PhaseReviewing && p != PhaseUploading {
		return nil, &PhaseError{Op: "show thumbnail", Phase: p}
	}
	if set == nil {
		return nil, ErrNoThumbnails
	}
	return frameOf(ctx, set, index, wait, w.selector.Active(), thumbnail.SelectionSize)
}

func frameOf(ctx context.Context, set *thumbnail.Set, index int, wait bool, f filter.Filter, size thumbnail.Size) ([]byte, error) {
	var (
		frame []byte
		err   error
	)
	if wait {
		frame, err = set.WaitFrame(ctx, index)
	} else {
		frame, err = set.Frame(index)
	}
	var renderErr *thumbnail.RenderError
	if errors.As(err, &renderErr) {
		frame, err = thumbnail.Placeholder(size), nil
	}
	if err != nil {
		return nil, err
	}
	return f.ApplyJPEG(frame)
}

// Subscribe streams recorder events until the returned function is called.
func (w *Workflow) Subscribe() (<-chan capture.Event, func()) {
	return w.recorder.Subscribe()
}

// Status is a point-in-time view of a workflow.
type Status struct {
	ID           string
	Phase        Phase
	State        capture.State
	Facing       capture.Facing
	CameraLabel  string
	Live         bool
	Elapsed      int
	ElapsedLabel string
	MimeType     string
	Bytes        int
	Filter       filter.Filter
	Duration     float64
	Candidates   []thumbnail.Candidate
}

func (w *Workflow) Status() Status {
	snap := w.recorder.Snapshot()
	session := w.recorder.Session()

	w.mu.Lock()
	st := Status{
		ID:       w.id,
		Phase:    w.phase,
		Duration: w.duration,
	}
	set := w.set
	w.mu.Unlock()

	st.State = w.recorder.State()
	st.Facing = session.Facing()
	st.CameraLabel = session.Label()
	st.Live = session.Live()
	st.Elapsed = snap.Elapsed
	st.ElapsedLabel = capture.FormatElapsed(snap.Elapsed)
	st.MimeType = snap.MimeType
	st.Bytes = snap.Bytes
	st.Filter = w.selector.Active()
	if set != nil {
		st.Candidates = set.Candidates()
	}
	return st
}

// ThumbnailsDone is closed once every candidate finished rendering. It is
// nil when no candidates exist.
func (w *Workflow) ThumbnailsDone() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set == nil {
		return nil
	}
	return w.set.Done()
}

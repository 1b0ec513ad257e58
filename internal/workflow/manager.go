package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/publish"
)

var (
	// ErrBusy is returned by Begin while another capture is open.
	ErrBusy = errors.New("a capture is already in progress")
	// ErrNoWorkflow is returned when no capture is open.
	ErrNoWorkflow = errors.New("no capture in progress")
	// ErrNoEditor is returned when the clip has no open editor.
	ErrNoEditor = errors.New("no editor open for this clip")
	// ErrShutdown is returned by Begin after Shutdown.
	ErrShutdown = errors.New("workflow manager is shut down")
)

// ClipReader loads clips for the editor.
type ClipReader interface {
	Get(ctx context.Context, id string) (*clips.Clip, error)
}

// Manager holds at most one capture workflow and the open editors.
type Manager struct {
	deps   Deps
	clips  ClipReader
	logger *slog.Logger

	mu      sync.Mutex
	active  *Workflow
	editors map[string]*Editor
	closed  bool
}

func NewManager(deps Deps, clipReader ClipReader) *Manager {
	return &Manager{
		deps:    deps,
		clips:   clipReader,
		logger:  logging.WithComponent(logging.OrDiscard(deps.Logger), "workflow-manager"),
		editors: make(map[string]*Editor),
	}
}

// Begin opens a new capture on the given camera.
func (m *Manager) Begin(ctx context.Context, facing capture.Facing) (*Workflow, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	if m.active != nil && m.active.Phase() != PhaseClosed {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	w := New(m.deps)
	m.active = w
	m.mu.Unlock()

	if err := w.Open(ctx, facing); err != nil {
		w.Close()
		m.mu.Lock()
		if m.active == w {
			m.active = nil
		}
		m.mu.Unlock()
		return nil, err
	}
	m.logger.Info("capture opened", "workflow_id", w.ID(), "facing", facing)
	return w, nil
}

// Active returns the open capture.
func (m *Manager) Active() (*Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Phase() == PhaseClosed {
		return nil, ErrNoWorkflow
	}
	return m.active, nil
}

// Current returns the open capture or nil, without an error.
func (m *Manager) Current() *Workflow {
	w, _ := m.Active()
	return w
}

// End closes the open capture.
func (m *Manager) End() error {
	m.mu.Lock()
	w := m.active
	m.active = nil
	m.mu.Unlock()

	if w == nil || w.Phase() == PhaseClosed {
		return ErrNoWorkflow
	}
	w.Close()
	m.logger.Info("capture closed", "workflow_id", w.ID())
	return nil
}

// OpenEditor starts an editor for clip id, replacing any editor already
// open for it.
func (m *Manager) OpenEditor(ctx context.Context, id string) (*Editor, error) {
	clip, err := m.clips.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &publish.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load clip %s: %w", id, err)
	}
	e, err := newEditor(ctx, clip, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.editors[id]
	m.editors[id] = e
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return e, nil
}

func (m *Manager) Editor(id string) (*Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.editors[id]
	if !ok {
		return nil, ErrNoEditor
	}
	return e, nil
}

// CloseEditor stops and forgets the editor for id.
func (m *Manager) CloseEditor(id string) error {
	m.mu.Lock()
	e, ok := m.editors[id]
	delete(m.editors, id)
	m.mu.Unlock()

	if !ok {
		return ErrNoEditor
	}
	e.Close()
	return nil
}

// Shutdown closes the capture and every editor. Begin fails afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	w := m.active
	m.active = nil
	editors := m.editors
	m.editors = make(map[string]*Editor)
	m.mu.Unlock()

	if w != nil {
		w.Close()
	}
	for _, e := range editors {
		e.Close()
	}
	m.logger.Info("workflow manager shut down", "editors", len(editors))
}

package ui

import (
	"bytes"
	"context"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/getlantern/systray"

	"github.com/reelbox/reelbox-agent/internal/workflow"
)

const refreshInterval = time.Second

// Captures is the part of the workflow manager the tray drives.
type Captures interface {
	Current() *workflow.Workflow
	End() error
}

type Tray struct {
	captures Captures
	logger   *slog.Logger

	statusItem *titledItem
	stopItem   *systray.MenuItem
	closeItem  *systray.MenuItem

	mu   sync.Mutex
	done chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Captures Captures
	Logger   *slog.Logger
	OnQuit   func()
}

// titledItem remembers the last title so unchanged refreshes are skipped.
type titledItem struct {
	item  *systray.MenuItem
	title string
}

func (s *titledItem) SetTitle(title string) {
	if title == s.title {
		return
	}
	s.title = title
	s.item.SetTitle(title)
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		captures: cfg.Captures,
		logger:   cfg.Logger,
		onQuit:   cfg.OnQuit,
		done:     make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("Reelbox")
	systray.SetTooltip("Reelbox Agent")

	status := systray.AddMenuItem("", "Current capture")
	status.Disable()
	t.statusItem = &titledItem{item: status}
	t.statusItem.SetTitle(StatusTitle(workflow.PhaseIdle, ""))

	systray.AddSeparator()

	t.stopItem = systray.AddMenuItem("Stop recording", "Finish the running recording")
	t.closeItem = systray.AddMenuItem("Close capture", "Release the camera")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Reelbox Agent")

	t.refresh()
	go t.watch()

	go func() {
		for {
			select {
			case <-t.stopItem.ClickedCh:
				t.handleStop()
			case <-t.closeItem.ClickedCh:
				t.handleClose()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.mu.Unlock()
	t.logger.Info("system tray exiting")
}

func (t *Tray) watch() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.refresh()
		case <-t.done:
			return
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	phase, elapsed := workflow.PhaseIdle, ""
	if wf := t.captures.Current(); wf != nil {
		st := wf.Status()
		phase, elapsed = st.Phase, st.ElapsedLabel
	}
	t.statusItem.SetTitle(StatusTitle(phase, elapsed))

	if phase == workflow.PhaseRecording {
		t.stopItem.Enable()
	} else {
		t.stopItem.Disable()
	}
	if phase == workflow.PhaseIdle || phase == workflow.PhaseClosed {
		t.closeItem.Disable()
	} else {
		t.closeItem.Enable()
	}
}

func (t *Tray) handleStop() {
	wf := t.captures.Current()
	if wf == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := wf.Stop(ctx); err != nil {
		t.logger.Error("failed to stop recording from tray", "error", err)
	}
	t.refresh()
}

func (t *Tray) handleClose() {
	if err := t.captures.End(); err != nil {
		t.logger.Warn("failed to close capture from tray", "error", err)
	}
	t.refresh()
}

// StatusTitle is the tray status line for a capture phase.
func StatusTitle(phase workflow.Phase, elapsed string) string {
	switch phase {
	case workflow.PhaseRecording:
		return "Recording " + elapsed
	case workflow.PhasePreviewing:
		return "Camera on"
	case workflow.PhaseReviewing:
		return "Reviewing " + elapsed
	case workflow.PhaseUploading:
		return "Uploading..."
	default:
		return "Idle"
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

// iconBytes draws the tray icon: a red record dot on a dark tile.
func iconBytes() []byte {
	img := imaging.New(32, 32, color.NRGBA{R: 0x22, G: 0x26, B: 0x2e, A: 0xff})
	dot := imaging.New(14, 14, color.NRGBA{R: 0xe5, G: 0x3e, B: 0x3e, A: 0xff})
	img = imaging.PasteCenter(img, dot)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil
	}
	return buf.Bytes()
}

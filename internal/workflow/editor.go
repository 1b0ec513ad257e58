package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/filter"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
)

// Editor re-samples a published clip so its thumbnail and filter can be
// picked again.
type Editor struct {
	clip      *clips.Clip
	set       *thumbnail.Set
	selector  *filter.Selector
	publisher Publisher
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// newEditor builds the candidates from the stored duration, pre-selects
// the one nearest to the stored offset and starts rendering them from the
// media URL. Clips saved without a duration are probed.
func newEditor(ctx context.Context, clip *clips.Clip, deps Deps) (*Editor, error) {
	duration := float64(clip.Duration)
	if duration <= 0 {
		duration = deps.Thumbnails.Probe(ctx, clip.URL, 0)
	}
	set, err := thumbnail.NewSetNear(duration, float64(clip.ThumbnailOffset))
	if err != nil {
		return nil, err
	}
	selector := filter.NewSelector()
	if err := selector.Set(clip.Filter); err != nil {
		return nil, err
	}

	renderCtx, cancel := context.WithCancel(context.Background())
	e := &Editor{
		clip:      clip,
		set:       set,
		selector:  selector,
		publisher: deps.Publisher,
		logger:    logging.WithClipID(logging.WithComponent(logging.OrDiscard(deps.Logger), "editor"), clip.ID),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	src := deps.Sources(clip.URL)
	go func() {
		defer close(e.done)
		if err := deps.Thumbnails.Render(renderCtx, set, src, thumbnail.SelectionSize); err != nil {
			e.logger.Info("editor render cancelled", "error", err)
		}
	}()
	return e, nil
}

func (e *Editor) Clip() *clips.Clip {
	return e.clip
}

func (e *Editor) Candidates() []thumbnail.Candidate {
	return e.set.Candidates()
}

func (e *Editor) Select(index int) error {
	return e.set.Select(index)
}

// SetFilter changes the filter applied to the editor's frames.
func (e *Editor) SetFilter(f filter.Filter) error {
	return e.selector.Set(f)
}

func (e *Editor) Filter() filter.Filter {
	return e.selector.Active()
}

// Frame returns candidate index with the editor's filter applied.
func (e *Editor) Frame(ctx context.Context, index int, wait bool) ([]byte, error) {
	return frameOf(ctx, e.set, index, wait, e.selector.Active(), thumbnail.SelectionSize)
}

// Done is closed when rendering has finished or was cancelled.
func (e *Editor) Done() <-chan struct{} {
	return e.done
}

// SaveOptions change a clip through its editor. Nil fields keep the
// editor's current choice.
type SaveOptions struct {
	Title  *string
	Index  *int
	Filter *filter.Filter
}

// Save writes the selected thumbnail offset and filter, plus an optional
// new title.
func (e *Editor) Save(ctx context.Context, opts SaveOptions) (*clips.Clip, error) {
	if opts.Index != nil {
		if err := e.set.Select(*opts.Index); err != nil {
			return nil, err
		}
	}
	if opts.Filter != nil {
		if err := e.selector.Set(*opts.Filter); err != nil {
			return nil, err
		}
	}
	offset := e.set.SelectedOffset()
	f := e.selector.Active()

	clip, err := e.publisher.Update(ctx, e.clip.ID, publish.Edit{
		Title:           opts.Title,
		ThumbnailOffset: &offset,
		Filter:          &f,
	})
	if err != nil {
		return nil, err
	}
	e.clip = clip
	return clip, nil
}

// Close stops rendering. It is idempotent.
func (e *Editor) Close() {
	e.once.Do(func() {
		e.cancel()
		<-e.done
	})
}

// Package filter defines the cosmetic filters a clip can carry. Filters are
// presentation only: they are applied to preview frames and stored as clip
// metadata, never baked into recorded media.
package filter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// Filter is one of the fixed filter identifiers.
type Filter string

const (
	None      Filter = "none"
	Grayscale Filter = "grayscale"
	Sepia     Filter = "sepia"
	Contrast  Filter = "contrast"
	Warm      Filter = "warm"
	Cool      Filter = "cool"
)

var all = []Filter{None, Grayscale, Sepia, Contrast, Warm, Cool}

var css = map[Filter]string{
	None:      "none",
	Grayscale: "grayscale(100%)",
	Sepia:     "sepia(100%)",
	Contrast:  "contrast(150%)",
	Warm:      "sepia(30%) saturate(140%) hue-rotate(-10deg)",
	Cool:      "saturate(110%) hue-rotate(15deg) brightness(105%)",
}

// All returns every filter in display order.
func All() []Filter {
	return append([]Filter(nil), all...)
}

// Parse accepts a filter name case-insensitively. The empty string is None.
func Parse(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return None, nil
	}
	if !f.Valid() {
		return None, fmt.Errorf("unknown filter %q", s)
	}
	return f, nil
}

// OrNone maps unknown or missing values, as found in older records, to None.
func OrNone(s string) Filter {
	f, err := Parse(s)
	if err != nil {
		return None
	}
	return f
}

func (f Filter) Valid() bool {
	_, ok := css[f]
	return ok
}

func (f Filter) String() string {
	return string(f)
}

// CSS is the CSS filter expression the browser applies to previews.
func (f Filter) CSS() string {
	if v, ok := css[f]; ok {
		return v
	}
	return "none"
}

// Apply returns img with the filter applied.
func (f Filter) Apply(img image.Image) image.Image {
	switch f {
	case Grayscale:
		return imaging.Grayscale(img)
	case Sepia:
		return imaging.AdjustFunc(imaging.Grayscale(img), func(c color.NRGBA) color.NRGBA {
			l := float64(c.R)
			return color.NRGBA{
				R: clamp(l*1.07 + 20),
				G: clamp(l*0.94 + 8),
				B: clamp(l*0.75 - 4),
				A: c.A,
			}
		})
	case Contrast:
		return imaging.AdjustContrast(img, 50)
	case Warm:
		return imaging.AdjustFunc(imaging.AdjustSaturation(img, 20), func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: clamp(float64(c.R) * 1.10), G: c.G, B: clamp(float64(c.B) * 0.85), A: c.A}
		})
	case Cool:
		return imaging.AdjustFunc(imaging.AdjustBrightness(img, 5), func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: clamp(float64(c.R) * 0.88), G: c.G, B: clamp(float64(c.B) * 1.12), A: c.A}
		})
	default:
		return img
	}
}

// ApplyJPEG decodes a JPEG frame, applies the filter and re-encodes it.
// None returns frame unchanged.
func (f Filter) ApplyJPEG(frame []byte) ([]byte, error) {
	if f == None || !f.Valid() {
		return frame, nil
	}
	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.Apply(img), imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// Selector holds the active filter of a workflow.
type Selector struct {
	mu     sync.RWMutex
	active Filter
}

func NewSelector() *Selector {
	return &Selector{active: None}
}

// Set switches the active filter. Invalid values are rejected and leave
// the selection unchanged.
func (s *Selector) Set(f Filter) error {
	if !f.Valid() {
		return fmt.Errorf("unknown filter %q", f)
	}
	s.mu.Lock()
	s.active = f
	s.mu.Unlock()
	return nil
}

func (s *Selector) Active() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

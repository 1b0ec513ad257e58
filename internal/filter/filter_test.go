package filter

import (
	"bytes"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"SEPIA", Sepia, false},
		{" warm ", Warm, false},
		{"cool", Cool, false},
		{"vintage", None, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOrNone(t *testing.T) {
	assert.Equal(t, None, OrNone(""))
	assert.Equal(t, None, OrNone("blur"))
	assert.Equal(t, Grayscale, OrNone("grayscale"))
}

func TestAll(t *testing.T) {
	got := All()
	assert.Equal(t, []Filter{None, Grayscale, Sepia, Contrast, Warm, Cool}, got)
	got[0] = "mutated"
	assert.Equal(t, None, All()[0])
	for _, f := range All() {
		assert.NotEmpty(t, f.CSS())
	}
	assert.Equal(t, "none", Filter("bogus").CSS())
}

func TestApply_Grayscale(t *testing.T) {
	img := imaging.New(4, 4, color.NRGBA{R: 255, A: 255})
	out := Grayscale.Apply(img)
	c := color.NRGBAModel.Convert(out.At(1, 1)).(color.NRGBA)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
}

func TestApply_WarmAndCool(t *testing.T) {
	gray := imaging.New(4, 4, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	w := color.NRGBAModel.Convert(Warm.Apply(gray).At(0, 0)).(color.NRGBA)
	assert.Greater(t, w.R, w.B)

	c := color.NRGBAModel.Convert(Cool.Apply(gray).At(0, 0)).(color.NRGBA)
	assert.Greater(t, c.B, c.R)

	n := None.Apply(gray)
	assert.Same(t, gray, n)
}

func TestApplyJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(16, 9, color.NRGBA{R: 200, G: 40, B: 40, A: 255}), imaging.JPEG))
	frame := buf.Bytes()

	same, err := None.ApplyJPEG(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, same)

	out, err := Sepia.ApplyJPEG(frame)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = Sepia.ApplyJPEG([]byte("not a jpeg"))
	assert.Error(t, err)
}

func TestSelector(t *testing.T) {
	s := NewSelector()
	assert.Equal(t, None, s.Active())

	require.NoError(t, s.Set(Contrast))
	assert.Equal(t, Contrast, s.Active())

	assert.Error(t, s.Set("bogus"))
	assert.Equal(t, Contrast, s.Active())

	var wg sync.WaitGroup
	for _, f := range All() {
		wg.Add(1)
		go func(f Filter) {
			defer wg.Done()
			_ = s.Set(f)
			_ = s.Active()
		}(f)
	}
	wg.Wait()
	assert.True(t, s.Active().Valid())
}

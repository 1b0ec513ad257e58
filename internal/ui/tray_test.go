package ui

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/reelbox/reelbox-agent/internal/workflow"
)

func TestStatusTitle(t *testing.T) {
	tests := []struct {
		phase   workflow.Phase
		elapsed string
		want    string
	}{
		{workflow.PhaseIdle, "", "Idle"},
		{workflow.PhasePreviewing, "00:00", "Camera on"},
		{workflow.PhaseRecording, "01:05", "Recording 01:05"},
		{workflow.PhaseReviewing, "00:12", "Reviewing 00:12"},
		{workflow.PhaseUploading, "00:12", "Uploading..."},
		{workflow.PhaseClosed, "", "Idle"},
	}

	for _, tt := range tests {
		if got := StatusTitle(tt.phase, tt.elapsed); got != tt.want {
			t.Errorf("StatusTitle(%q, %q) = %q, want %q", tt.phase, tt.elapsed, got, tt.want)
		}
	}
}

func TestIconBytesIsPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(iconBytes()))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Fatalf("icon size = %dx%d, want 32x32", b.Dx(), b.Dy())
	}
}

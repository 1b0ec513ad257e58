package capture

import (
	"context"
	"strings"
)

// DefaultMimePreferences is probed in order; the most compatible format
// comes last.
var DefaultMimePreferences = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

// Negotiate returns the first preference the encoder supports.
func Negotiate(ctx context.Context, enc Encoder, prefs []string) (string, error) {
	for _, mime := range prefs {
		if enc.Supports(ctx, mime) {
			return mime, nil
		}
	}
	return "", &UnsupportedFormatError{Tried: append([]string(nil), prefs...)}
}

// codecSpec maps a container/codec string onto ffmpeg arguments.
type codecSpec struct {
	Format     string
	VideoCodec string
	AudioCodec string
	Extra      []string
}

var codecSpecs = map[string]codecSpec{
	"video/webm;codecs=vp9,opus": {
		Format:     "webm",
		VideoCodec: "libvpx-vp9",
		AudioCodec: "libopus",
		Extra:      []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"},
	},
	"video/webm;codecs=vp8,opus": {
		Format:     "webm",
		VideoCodec: "libvpx",
		AudioCodec: "libopus",
		Extra:      []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/webm": {
		Format:     "webm",
		VideoCodec: "libvpx",
		AudioCodec: "libvorbis",
		Extra:      []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/mp4": {
		Format:     "mp4",
		VideoCodec: "libx264",
		AudioCodec: "aac",
		Extra:      []string{"-preset", "veryfast", "-pix_fmt", "yuv420p", "-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
}

// normalizeMime lower-cases and strips whitespace so that
// "video/webm; codecs=vp9, opus" matches the table.
func normalizeMime(mime string) string {
	return strings.ToLower(strings.ReplaceAll(mime, " ", ""))
}

func lookupCodec(mime string) (codecSpec, bool) {
	spec, ok := codecSpecs[normalizeMime(mime)]
	return spec, ok
}

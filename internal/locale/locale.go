// Package locale formats dates and user-facing messages for the supported
// display languages. Dutch is the default.
package locale

import (
	"fmt"
	"strings"
	"time"
)

const (
	Dutch     = "nl-NL"
	EnglishUS = "en-US"
	EnglishGB = "en-GB"
)

var dutchMonths = [...]string{
	"januari", "februari", "maart", "april", "mei", "juni",
	"juli", "augustus", "september", "oktober", "november", "december",
}

// Normalize maps a language tag onto a supported one, defaulting to Dutch.
func Normalize(tag string) string {
	t := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
	switch {
	case t == "en-gb":
		return EnglishGB
	case strings.HasPrefix(t, "en"):
		return EnglishUS
	default:
		return Dutch
	}
}

func isDutch(tag string) bool {
	return Normalize(tag) == Dutch
}

// ShortDate formats t numerically, e.g. 19-10-2026 for nl-NL.
func ShortDate(t time.Time, tag string) string {
	switch Normalize(tag) {
	case EnglishUS:
		return t.Format("1/2/2006")
	case EnglishGB:
		return t.Format("02/01/2006")
	default:
		return t.Format("2-1-2006")
	}
}

// LongDate formats t with the month name, e.g. 19 oktober 2026.
func LongDate(t time.Time, tag string) string {
	switch Normalize(tag) {
	case EnglishUS:
		return t.Format("January 2, 2006")
	case EnglishGB:
		return t.Format("2 January 2006")
	default:
		return fmt.Sprintf("%d %s %d", t.Day(), dutchMonths[t.Month()-1], t.Year())
	}
}

// Unknown is shown where a date is missing.
func Unknown(tag string) string {
	if isDutch(tag) {
		return "Onbekend"
	}
	return "Unknown"
}

// DefaultTitle is the title given to a clip saved without one.
func DefaultTitle(t time.Time, tag string) string {
	return "Video " + ShortDate(t, tag)
}

// CameraLabel is the human name of the front or back camera.
func CameraLabel(tag string, back bool) string {
	if isDutch(tag) {
		if back {
			return "Achterste camera"
		}
		return "Voorste camera"
	}
	if back {
		return "Back camera"
	}
	return "Front camera"
}

package blobstore

import (
	"fmt"
	"regexp"
)

// Gallery thumbnail dimensions.
const (
	ThumbnailWidth  = 480
	ThumbnailHeight = 270
)

const cdnMarker = "/video/upload/"

var cdnVideoURL = regexp.MustCompile(`^(.*?` + regexp.QuoteMeta(cdnMarker) + `)(.+)\.(?i:webm|mp4|mov|avi)$`)

// ThumbnailURL derives a still image URL from a CDN video locator by
// inserting a seek/size/fill-crop transformation after the upload marker and
// swapping the extension for .jpg. URLs that are not CDN video locators are
// returned unchanged.
func ThumbnailURL(videoURL string, offsetSeconds, width, height int) string {
	m := cdnVideoURL.FindStringSubmatch(videoURL)
	if m == nil {
		return videoURL
	}
	return fmt.Sprintf("%sso_%d,w_%d,h_%d,c_fill/%s.jpg", m[1], offsetSeconds, width, height, m[2])
}

// IsCDNVideo reports whether ThumbnailURL can transform videoURL.
func IsCDNVideo(videoURL string) bool {
	return cdnVideoURL.MatchString(videoURL)
}

// Package metrics defines the agent's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeUploadError   = "upload_error"
	OutcomeMetadataError = "metadata_error"
)

var (
	// UploadsTotal counts publish attempts by blob backend and outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_uploads_total",
		Help: "Total number of clip publish attempts by backend and outcome",
	}, []string{"backend", "outcome"})

	// UploadDuration records blob upload latency.
	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelbox_upload_duration_seconds",
		Help:    "Blob upload latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"backend"})

	// UploadBytes records the size of uploaded recordings.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelbox_upload_bytes",
		Help:    "Size of uploaded recordings in bytes",
		Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
	})

	// CaptureEventsTotal counts recorder lifecycle events.
	CaptureEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_capture_events_total",
		Help: "Total capture lifecycle events by type",
	}, []string{"event"})

	// RecordingSeconds records the length of finished recordings.
	RecordingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelbox_recording_seconds",
		Help:    "Length of finished recordings in seconds",
		Buckets: []float64{1, 3, 5, 10, 30, 60, 120, 300, 600},
	})

	// ActiveCaptures is 1 while a capture workflow is open.
	ActiveCaptures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelbox_active_captures",
		Help: "Number of open capture workflows",
	})

	// ThumbnailRendersTotal counts candidate frame renders by outcome.
	ThumbnailRendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_thumbnail_renders_total",
		Help: "Total thumbnail candidate renders by outcome",
	}, []string{"outcome"})

	// GalleryCacheTotal counts gallery listing cache lookups.
	GalleryCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_gallery_cache_total",
		Help: "Gallery listing cache lookups by result",
	}, []string{"result"})

	// HTTPRequestDuration records API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelbox_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// WebSocketConnections is the number of open event stream connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelbox_websocket_connections",
		Help: "Number of open capture event websocket connections",
	})
)

// ObserveUpload records the outcome and latency of one publish attempt.
func ObserveUpload(backend, outcome string, size int, start time.Time) {
	UploadsTotal.WithLabelValues(backend, outcome).Inc()
	if outcome != OutcomeUploadError {
		UploadDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		UploadBytes.Observe(float64(size))
	}
}

// CaptureEvent increments the counter for a capture lifecycle event.
func CaptureEvent(event string) {
	CaptureEventsTotal.WithLabelValues(event).Inc()
}

// ObserveRecording records a finished recording length.
func ObserveRecording(seconds int) {
	RecordingSeconds.Observe(float64(seconds))
}

// ThumbnailRender increments the render counter.
func ThumbnailRender(ok bool) {
	if ok {
		ThumbnailRendersTotal.WithLabelValues("success").Inc()
		return
	}
	ThumbnailRendersTotal.WithLabelValues("failure").Inc()
}

// GalleryCache increments the cache counter for hit, miss or error.
func GalleryCache(result string) {
	GalleryCacheTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records the latency of one request.
func ObserveHTTP(method, route string, status int, start time.Time) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

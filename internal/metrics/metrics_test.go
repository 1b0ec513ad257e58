package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpload(t *testing.T) {
	before := testutil.ToFloat64(UploadsTotal.WithLabelValues("local", OutcomeSuccess))
	ObserveUpload("local", OutcomeSuccess, 1024, time.Now())
	after := testutil.ToFloat64(UploadsTotal.WithLabelValues("local", OutcomeSuccess))
	assert.Equal(t, before+1, after)

	failedBefore := testutil.ToFloat64(UploadsTotal.WithLabelValues("local", OutcomeUploadError))
	ObserveUpload("local", OutcomeUploadError, 0, time.Now())
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("local", OutcomeUploadError)))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(CaptureEventsTotal.WithLabelValues("record"))
	CaptureEvent("record")
	assert.Equal(t, before+1, testutil.ToFloat64(CaptureEventsTotal.WithLabelValues("record")))

	okBefore := testutil.ToFloat64(ThumbnailRendersTotal.WithLabelValues("success"))
	ThumbnailRender(true)
	ThumbnailRender(false)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(ThumbnailRendersTotal.WithLabelValues("success")))

	hitBefore := testutil.ToFloat64(GalleryCacheTotal.WithLabelValues("hit"))
	GalleryCache("hit")
	assert.Equal(t, hitBefore+1, testutil.ToFloat64(GalleryCacheTotal.WithLabelValues("hit")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ObserveHTTP("GET", "/health", 200, time.Now())
	ObserveRecording(12)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, "reelbox_http_request_duration_seconds"))
	assert.True(t, strings.Contains(out, "reelbox_recording_seconds"))
}

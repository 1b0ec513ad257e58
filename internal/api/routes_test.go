package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/db"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/gallery"
	"github.com/reelbox/reelbox-agent/internal/playback"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/site"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

const testToken = "test-token"

type testServer struct {
	router   *chi.Mux
	provider *fakeProvider
	encoder  *fakeEncoder
	blobs   *fakeBlobs
	clips   *clips.Repository
	cfg     ServerConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := docstore.NewSQLiteStore(database.Conn())

	ts := &testServer{
		provider: &fakeProvider{},
		encoder:  &fakeEncoder{started: make(chan *fakeEncoding, 4)},
		blobs:    &fakeBlobs{},
		clips:    clips.NewRepository(store),
	}
	sources := func(string) thumbnail.FrameSource { return solidSource{} }

	projection := gallery.NewProjection(ts.clips, nil, gallery.Config{
		Locale:        "nl-NL",
		PublicBaseURL: "http://127.0.0.1:8787",
		Location:      time.UTC,
	}, logger)
	publisher := publish.NewCoordinator(ts.blobs, ts.clips, projection, publish.Config{Locale: "nl-NL"}, logger)

	manager := workflow.NewManager(workflow.Deps{
		Provider:        ts.provider,
		Encoder:         ts.encoder,
		Thumbnails:      &fixedThumbnails{Sampler: thumbnail.NewSampler(2, "", logger), duration: 5},
		Sources:         sources,
		Publisher:       publisher,
		Locale:          "nl-NL",
		TempDir:         t.TempDir(),
		RecorderOptions: []capture.RecorderOption{capture.WithTickInterval(5 * time.Millisecond)},
		Logger:          logger,
	}, ts.clips)
	t.Cleanup(manager.Shutdown)

	ts.cfg = ServerConfig{
		Locale:    "nl-NL",
		AuthToken: testToken,
		Workflows: manager,
		Publisher: publisher,
		Clips:     ts.clips,
		Gallery:   projection,
		Posters:   gallery.NewPosters(sources, nil, time.Minute, logger),
		News:      site.NewNews(store, logger),
		Settings:  site.NewSettingsStore(store, logger),
		Playback:  playback.NewServer(logger),
		Logger:    logger,
		StartTime: time.Now().Add(-10 * time.Second),
		Version:   "test",
	}
	ts.router = NewRouter(ts.cfg)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) expect(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rr.Code, want, rr.Body.String())
	}
}

// recordToReview opens a capture, records some data and stops.
func (ts *testServer) recordToReview(t *testing.T) CaptureStatusResponse {
	t.Helper()
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", OpenCaptureRequest{Facing: "back"}), http.StatusCreated)
	ts.expect(t, ts.do(t, http.MethodPost, "/capture/record", nil), http.StatusOK)

	select {
	case enc := <-ts.encoder.started:
		enc.chunks <- []byte("webm-data")
	case <-time.After(2 * time.Second):
		t.Fatal("encoder not started")
	}

	rr := ts.do(t, http.MethodPost, "/capture/stop", nil)
	ts.expect(t, rr, http.StatusOK)

	var st CaptureStatusResponse
	decodeInto(t, rr, &st)
	return st
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body: %v (%s)", err, rr.Body.String())
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	ts.expect(t, rr, http.StatusOK)

	var resp HealthResponse
	decodeInto(t, rr, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Fatalf("health = %+v", resp)
	}
	if resp.UptimeS < 10 {
		t.Fatalf("uptime_s = %d, want >= 10", resp.UptimeS)
	}
	if resp.Capture != "idle" {
		t.Fatalf("capture = %q, want idle", resp.Capture)
	}
}

func TestCaptureRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/capture", nil))
	ts.expect(t, rr, http.StatusUnauthorized)
}

func TestCapture_RecordReviewPublish(t *testing.T) {
	ts := newTestServer(t)

	st := ts.recordToReview(t)
	if st.Phase != "reviewing" {
		t.Fatalf("phase = %q, want reviewing", st.Phase)
	}
	if st.Facing != "back" || st.CameraLabel != "Achterste camera" {
		t.Fatalf("camera = %q %q", st.Facing, st.CameraLabel)
	}
	if len(st.Candidates) != 5 {
		t.Fatalf("candidates = %d, want 5", len(st.Candidates))
	}
	if !st.Candidates[0].Selected || st.Candidates[0].URL != "/capture/thumbnails/0" {
		t.Fatalf("first candidate = %+v", st.Candidates[0])
	}

	rr := ts.do(t, http.MethodGet, "/capture/thumbnails/2?wait=true", nil)
	ts.expect(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("Content-Type = %q", ct)
	}

	rr = ts.do(t, http.MethodGet, "/capture/recording", nil)
	ts.expect(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Body.String(), "webm-data") {
		t.Fatalf("recording body = %q", rr.Body.String())
	}

	two := 2
	ts.expect(t, ts.do(t, http.MethodPut, "/capture/thumbnail", SelectThumbnailRequest{Index: &two}), http.StatusOK)
	ts.expect(t, ts.do(t, http.MethodPut, "/capture/filter", SetFilterRequest{Filter: "sepia"}), http.StatusOK)

	rr = ts.do(t, http.MethodPost, "/capture/publish", PublishRequest{Title: "Kerstdiner"})
	ts.expect(t, rr, http.StatusCreated)

	var published PublishedResponse
	decodeInto(t, rr, &published)
	if published.Message != "Video is online gezet!" {
		t.Fatalf("message = %q", published.Message)
	}
	clip := published.Clip
	if clip.Title != "Kerstdiner" || clip.Filter != "sepia" {
		t.Fatalf("clip = %+v", clip)
	}
	if clip.ThumbnailOffset != 3 {
		t.Fatalf("thumbnail_offset = %d, want 3", clip.ThumbnailOffset)
	}
	if clip.Duration != 5 || clip.DurationLabel != "0:05" {
		t.Fatalf("duration = %d %q", clip.Duration, clip.DurationLabel)
	}
	if clip.ThumbnailURL != "http://127.0.0.1:8787/clips/"+clip.ID+"/thumbnail" {
		t.Fatalf("thumbnail_url = %q", clip.ThumbnailURL)
	}

	// The published capture is closed.
	ts.expect(t, ts.do(t, http.MethodGet, "/capture", nil), http.StatusNotFound)

	rr = ts.do(t, http.MethodGet, "/clips", nil)
	ts.expect(t, rr, http.StatusOK)
	var list ClipsResponse
	decodeInto(t, rr, &list)
	if len(list.Clips) != 1 || list.Clips[0].ID != clip.ID {
		t.Fatalf("clips = %+v", list.Clips)
	}
}

func TestCapture_SecondOpenIsBusy(t *testing.T) {
	ts := newTestServer(t)

	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)

	rr := ts.do(t, http.MethodPost, "/capture", nil)
	ts.expect(t, rr, http.StatusConflict)
	if body := decodeJSONBody(t, rr); body["code"] != "CAPTURE_BUSY" {
		t.Fatalf("code = %v", body["code"])
	}

	ts.expect(t, ts.do(t, http.MethodDelete, "/capture", nil), http.StatusNoContent)
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)
}

func TestCapture_SwitchIgnoredWhileRecording(t *testing.T) {
	ts := newTestServer(t)

	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)

	rr := ts.do(t, http.MethodPost, "/capture/switch", nil)
	ts.expect(t, rr, http.StatusOK)
	var sw SwitchResponse
	decodeInto(t, rr, &sw)
	if !sw.Switched || sw.Status.Facing != "back" {
		t.Fatalf("switch while previewing = %+v", sw)
	}

	ts.expect(t, ts.do(t, http.MethodPost, "/capture/record", nil), http.StatusOK)
	rr = ts.do(t, http.MethodPost, "/capture/switch", nil)
	ts.expect(t, rr, http.StatusOK)
	decodeInto(t, rr, &sw)
	if sw.Switched || sw.Status.Facing != "back" {
		t.Fatalf("switch while recording = %+v", sw)
	}
}

func TestCapture_DiscardNeedsConfirmation(t *testing.T) {
	ts := newTestServer(t)
	ts.recordToReview(t)

	rr := ts.do(t, http.MethodPost, "/capture/discard", DiscardRequest{})
	ts.expect(t, rr, http.StatusPreconditionRequired)
	if body := decodeJSONBody(t, rr); body["error"] != "Weet je zeker dat je deze video wilt verwijderen?" {
		t.Fatalf("error = %v", body["error"])
	}

	rr = ts.do(t, http.MethodPost, "/capture/discard", DiscardRequest{Confirmed: true})
	ts.expect(t, rr, http.StatusOK)
	var st CaptureStatusResponse
	decodeInto(t, rr, &st)
	if st.Phase != "previewing" || len(st.Candidates) != 0 {
		t.Fatalf("after discard = %+v", st)
	}
}

func TestCapture_SwitchFailureClosesCapture(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)

	ts.provider.fail = &capture.DeviceError{Kind: capture.DevicePermissionDenied}
	rr := ts.do(t, http.MethodPost, "/capture/switch", nil)
	ts.expect(t, rr, http.StatusForbidden)
	if body := decodeJSONBody(t, rr); body["code"] != "DEVICE_ERROR" {
		t.Fatalf("code = %v", body["code"])
	}

	ts.expect(t, ts.do(t, http.MethodGet, "/capture", nil), http.StatusNotFound)

	ts.provider.fail = nil
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)
}

func TestCapture_DiscardRestartFailureClosesCapture(t *testing.T) {
	ts := newTestServer(t)
	ts.recordToReview(t)

	ts.provider.fail = errors.New("camera unplugged")
	rr := ts.do(t, http.MethodPost, "/capture/discard", DiscardRequest{Confirmed: true})
	ts.expect(t, rr, http.StatusServiceUnavailable)
	if body := decodeJSONBody(t, rr); body["code"] != "DEVICE_ERROR" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}

	ts.expect(t, ts.do(t, http.MethodGet, "/capture", nil), http.StatusNotFound)

	ts.provider.fail = nil
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)
}

func TestCapture_StopWhilePreviewingIsInvalidState(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)

	rr := ts.do(t, http.MethodPost, "/capture/stop", nil)
	ts.expect(t, rr, http.StatusConflict)
	if body := decodeJSONBody(t, rr); body["code"] != "INVALID_STATE" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestCapture_UploadFailureKeepsReview(t *testing.T) {
	ts := newTestServer(t)
	ts.recordToReview(t)
	ts.blobs.err = context.DeadlineExceeded

	rr := ts.do(t, http.MethodPost, "/capture/publish", PublishRequest{})
	ts.expect(t, rr, http.StatusBadGateway)
	body := decodeJSONBody(t, rr)
	if body["code"] != "UPLOAD_FAILED" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}

	rr = ts.do(t, http.MethodGet, "/capture", nil)
	ts.expect(t, rr, http.StatusOK)
	var st CaptureStatusResponse
	decodeInto(t, rr, &st)
	if st.Phase != "reviewing" {
		t.Fatalf("phase = %q, want reviewing", st.Phase)
	}
}

func TestCapture_ThumbnailIndexOutOfRange(t *testing.T) {
	ts := newTestServer(t)
	ts.recordToReview(t)

	ts.expect(t, ts.do(t, http.MethodGet, "/capture/thumbnails/9?wait=true", nil), http.StatusNotFound)
	ts.expect(t, ts.do(t, http.MethodGet, "/capture/thumbnails/x", nil), http.StatusBadRequest)
}

func TestClips_UpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	clip := &clips.Clip{Title: "Oud", URL: "http://127.0.0.1:8787/media/a.webm", Duration: 6, ThumbnailOffset: 1}
	if err := ts.clips.Create(ctx, clip); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	title := "Nieuw"
	offset := 4.4
	filterName := "warm"
	rr := ts.do(t, http.MethodPatch, "/clips/"+clip.ID, UpdateClipRequest{Title: &title, ThumbnailOffset: &offset, Filter: &filterName})
	ts.expect(t, rr, http.StatusOK)
	var got ClipResponse
	decodeInto(t, rr, &got)
	if got.Title != "Nieuw" || got.ThumbnailOffset != 4 || got.Filter != "warm" {
		t.Fatalf("updated = %+v", got)
	}
	if got.URL != clip.URL {
		t.Fatalf("url changed to %q", got.URL)
	}

	bad := "vintage"
	ts.expect(t, ts.do(t, http.MethodPatch, "/clips/"+clip.ID, UpdateClipRequest{Filter: &bad}), http.StatusBadRequest)

	ts.expect(t, ts.do(t, http.MethodDelete, "/clips/"+clip.ID, nil), http.StatusNoContent)
	ts.expect(t, ts.do(t, http.MethodDelete, "/clips/"+clip.ID, nil), http.StatusNotFound)
	ts.expect(t, ts.do(t, http.MethodPatch, "/clips/"+clip.ID, UpdateClipRequest{Title: &title}), http.StatusNotFound)
}

func TestClips_EditorSaveByIndex(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	clip := &clips.Clip{Title: "Zomer", URL: "http://127.0.0.1:8787/media/b.webm", Duration: 6, ThumbnailOffset: 4}
	if err := ts.clips.Create(ctx, clip); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rr := ts.do(t, http.MethodPost, "/clips/"+clip.ID+"/editor", nil)
	ts.expect(t, rr, http.StatusCreated)
	var ed EditorResponse
	decodeInto(t, rr, &ed)
	if len(ed.Candidates) != 6 {
		t.Fatalf("candidates = %d, want 6", len(ed.Candidates))
	}
	// Offsets are 0.5 .. 5.5; the stored 4 is equally near 3.5 and 4.5.
	if !ed.Candidates[3].Selected {
		t.Fatalf("selected = %+v", ed.Candidates)
	}

	ts.expect(t, ts.do(t, http.MethodGet, "/clips/"+clip.ID+"/editor/thumbnails/5?wait=true", nil), http.StatusOK)

	five := 5
	rr = ts.do(t, http.MethodPatch, "/clips/"+clip.ID, UpdateClipRequest{ThumbnailIndex: &five})
	ts.expect(t, rr, http.StatusOK)
	var got ClipResponse
	decodeInto(t, rr, &got)
	if got.ThumbnailOffset != 6 {
		t.Fatalf("thumbnail_offset = %d, want 6", got.ThumbnailOffset)
	}

	// Saving closes the editor.
	ts.expect(t, ts.do(t, http.MethodGet, "/clips/"+clip.ID+"/editor", nil), http.StatusNotFound)
	ts.expect(t, ts.do(t, http.MethodPost, "/clips/missing/editor", nil), http.StatusNotFound)
}

func TestClips_ThumbnailRendersPoster(t *testing.T) {
	ts := newTestServer(t)

	clip := &clips.Clip{Title: "Lokaal", URL: "http://127.0.0.1:8787/media/c.webm", Duration: 4, ThumbnailOffset: 2}
	if err := ts.clips.Create(context.Background(), clip); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clips/"+clip.ID+"/thumbnail", nil))
	ts.expect(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestClips_ThumbnailRedirectsForCDN(t *testing.T) {
	ts := newTestServer(t)

	clip := &clips.Clip{Title: "CDN", URL: "https://res.cloudinary.com/demo/video/upload/v1/d.webm", Duration: 4, ThumbnailOffset: 2}
	if err := ts.clips.Create(context.Background(), clip); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clips/"+clip.ID+"/thumbnail", nil))
	ts.expect(t, rr, http.StatusFound)
	if loc := rr.Header().Get("Location"); loc != clip.ThumbnailURL() {
		t.Fatalf("Location = %q, want %q", loc, clip.ThumbnailURL())
	}
}

func TestNewsAndSettings(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/news", NewsRequest{Title: "Hallo", Content: " "})
	ts.expect(t, rr, http.StatusBadRequest)
	if body := decodeJSONBody(t, rr); body["error"] != "Vul een titel en inhoud in" {
		t.Fatalf("error = %v", body["error"])
	}

	ts.expect(t, ts.do(t, http.MethodPost, "/news", NewsRequest{Title: "Hallo", Content: "Welkom"}), http.StatusCreated)

	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/news", nil))
	ts.expect(t, rr, http.StatusOK)
	var news NewsResponse
	decodeInto(t, rr, &news)
	if len(news.Posts) != 1 || news.Posts[0].Title != "Hallo" {
		t.Fatalf("posts = %+v", news.Posts)
	}

	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/settings", nil))
	ts.expect(t, rr, http.StatusOK)
	var settings SettingsResponse
	decodeInto(t, rr, &settings)
	if settings.SiteName != site.DefaultSiteName {
		t.Fatalf("site_name = %q", settings.SiteName)
	}

	ts.expect(t, ts.do(t, http.MethodPut, "/settings", SettingsRequest{SiteName: "  "}), http.StatusBadRequest)
	rr = ts.do(t, http.MethodPut, "/settings", SettingsRequest{SiteName: "Familie"})
	ts.expect(t, rr, http.StatusOK)
	decodeInto(t, rr, &settings)
	if settings.SiteName != "Familie" {
		t.Fatalf("site_name = %q", settings.SiteName)
	}
}

func TestEvents_StreamsRecorderState(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(t, ts.do(t, http.MethodPost, "/capture", nil), http.StatusCreated)

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/capture/events?token=" + testToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first EventMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Phase != "previewing" || first.State != "previewing" {
		t.Fatalf("initial event = %+v", first)
	}

	ts.expect(t, ts.do(t, http.MethodPost, "/capture/record", nil), http.StatusOK)

	for {
		var ev EventMessage
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if ev.State == "recording" {
			if ev.Label != capture.FormatElapsed(ev.Elapsed) {
				t.Fatalf("label = %q for %d", ev.Label, ev.Elapsed)
			}
			break
		}
	}
}

package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/gallery"
	"github.com/reelbox/reelbox-agent/internal/site"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

type HealthResponse struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	UptimeS  int64    `json:"uptime_s"`
	Encoders []string `json:"encoders,omitempty"`
	Capture  string   `json:"capture"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ClipResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	Duration        int     `json:"duration"`
	DurationLabel   string  `json:"duration_label"`
	Date            string  `json:"date"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	ThumbnailOffset int     `json:"thumbnail_offset"`
	Filter          string  `json:"filter"`
	FilterCSS       string  `json:"filter_css"`
	CreatedAt       string  `json:"created_at"`
	CreatedAtLocal  *string `json:"created_at_local,omitempty"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type PublishedResponse struct {
	Message string       `json:"message"`
	Clip    ClipResponse `json:"clip"`
}

type UpdateClipRequest struct {
	Title           *string  `json:"title,omitempty"`
	ThumbnailOffset *float64 `json:"thumbnail_offset,omitempty"`
	// ThumbnailIndex picks a candidate of the open editor.
	ThumbnailIndex *int    `json:"thumbnail_index,omitempty"`
	Filter         *string `json:"filter,omitempty"`
}

type OpenCaptureRequest struct {
	Facing string `json:"facing,omitempty"`
}

type SelectThumbnailRequest struct {
	Index *int `json:"index"`
}

type SetFilterRequest struct {
	Filter string `json:"filter"`
}

type DiscardRequest struct {
	Confirmed bool `json:"confirmed"`
}

type PublishRequest struct {
	Title          string     `json:"title"`
	CreatedAtLocal *time.Time `json:"created_at_local,omitempty"`
}

type CandidateResponse struct {
	Index    int     `json:"index"`
	Offset   float64 `json:"offset"`
	Selected bool    `json:"selected"`
	Ready    bool    `json:"ready"`
	Failed   bool    `json:"failed"`
	URL      string  `json:"url"`
}

type CaptureStatusResponse struct {
	ID           string              `json:"id"`
	Phase        string              `json:"phase"`
	State        string              `json:"state"`
	Facing       string              `json:"facing"`
	CameraLabel  string              `json:"camera_label"`
	Live         bool                `json:"live"`
	Elapsed      int                 `json:"elapsed"`
	ElapsedLabel string              `json:"elapsed_label"`
	MimeType     string              `json:"mime_type,omitempty"`
	Bytes        int                 `json:"bytes"`
	Filter       string              `json:"filter"`
	FilterCSS    string              `json:"filter_css"`
	Duration     float64             `json:"duration,omitempty"`
	Candidates   []CandidateResponse `json:"candidates,omitempty"`
}

type SwitchResponse struct {
	Switched bool                  `json:"switched"`
	Status   CaptureStatusResponse `json:"status"`
}

type EditorResponse struct {
	ClipID     string              `json:"clip_id"`
	Filter     string              `json:"filter"`
	FilterCSS  string              `json:"filter_css"`
	Candidates []CandidateResponse `json:"candidates"`
}

type EventMessage struct {
	Phase   string `json:"phase"`
	State   string `json:"state"`
	Elapsed int    `json:"elapsed"`
	Label   string `json:"label"`
}

type NewsRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type NewsPostResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	CreatedAt string `json:"created_at"`
}

type NewsResponse struct {
	Posts []NewsPostResponse `json:"posts"`
}

type SettingsRequest struct {
	SiteName string `json:"site_name"`
}

type SettingsResponse struct {
	SiteName string `json:"site_name"`
}

func CardToResponse(c gallery.Card) ClipResponse {
	resp := ClipResponse{
		ID:              c.ID,
		Title:           c.Title,
		URL:             c.URL,
		Duration:        c.Duration,
		DurationLabel:   c.DurationLabel,
		Date:            c.Date,
		ThumbnailURL:    c.ThumbnailURL,
		ThumbnailOffset: c.ThumbnailOffset,
		Filter:          c.Filter,
		FilterCSS:       c.FilterCSS,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if c.CreatedAtLocal != nil {
		s := c.CreatedAtLocal.Format(time.RFC3339)
		resp.CreatedAtLocal = &s
	}
	return resp
}

func CandidatesToResponse(cands []thumbnail.Candidate, urlPrefix string) []CandidateResponse {
	out := make([]CandidateResponse, len(cands))
	for i, c := range cands {
		out[i] = CandidateResponse{
			Index:    c.Index,
			Offset:   c.Offset,
			Selected: c.Selected,
			Ready:    c.Ready,
			Failed:   c.Failed,
			URL:      fmt.Sprintf("%s/%d", urlPrefix, c.Index),
		}
	}
	return out
}

func StatusToResponse(st workflow.Status) CaptureStatusResponse {
	return CaptureStatusResponse{
		ID:           st.ID,
		Phase:        string(st.Phase),
		State:        st.State.String(),
		Facing:       string(st.Facing),
		CameraLabel:  st.CameraLabel,
		Live:         st.Live,
		Elapsed:      st.Elapsed,
		ElapsedLabel: st.ElapsedLabel,
		MimeType:     st.MimeType,
		Bytes:        st.Bytes,
		Filter:       st.Filter.String(),
		FilterCSS:    st.Filter.CSS(),
		Duration:     st.Duration,
		Candidates:   CandidatesToResponse(st.Candidates, "/capture/thumbnails"),
	}
}

func EventToMessage(phase workflow.Phase, ev capture.Event) EventMessage {
	return EventMessage{
		Phase:   string(phase),
		State:   ev.State.String(),
		Elapsed: ev.Elapsed,
		Label:   ev.Label,
	}
}

func PostToResponse(p *site.Post, date string) NewsPostResponse {
	return NewsPostResponse{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Date:      date,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func encoderNames(caps *capture.Capabilities) []string {
	if caps == nil {
		return nil
	}
	names := make([]string, 0, len(caps.Encoders))
	for name, ok := range caps.Encoders {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// Cloudinary uploads media with an unsigned upload preset.
type Cloudinary struct {
	baseURL    string
	cloudName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

func NewCloudinary(baseURL, cloudName string, logger *slog.Logger) *Cloudinary {
	return &Cloudinary{
		baseURL:   baseURL,
		cloudName: cloudName,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logging.WithComponent(logging.OrDiscard(logger), "cloudinary"),
	}
}

func (c *Cloudinary) Name() string {
	return "cloudinary"
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*Asset, error) {
	kind := opts.ResourceKind
	if kind == "" {
		kind = ResourceVideo
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if opts.Preset != "" {
		if err := mw.WriteField("upload_preset", opts.Preset); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("resource_type", kind); err != nil {
		return nil, err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="upload`+ExtensionFor(opts.ContentType)+`"`)
	if opts.ContentType != "" {
		header.Set("Content-Type", opts.ContentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	n, err := io.Copy(part, r)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1_1/%s/%s/upload", c.baseURL, c.cloudName, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("uploading media",
		"url", url,
		"preset", opts.Preset,
		"content_type", opts.ContentType,
		"blob_bytes", n,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 4096)}
	}

	var result cloudinaryResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("upload response has no secure_url")
	}

	c.logger.Info("media uploaded", "public_id", result.PublicID)
	return &Asset{URL: result.SecureURL, ID: result.PublicID}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

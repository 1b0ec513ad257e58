package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// Server writes media bodies honouring Range requests.
type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logging.WithComponent(logging.OrDiscard(logger), "playback")}
}

// ServeFile serves the file at path. A missing file is a 404.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	return s.Serve(w, r, file, stat.Size(), contentTypeFor(path))
}

var mediaTypes = map[string]string{
	".webm": "video/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".jpg":  "image/jpeg",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// ServeBytes serves an in-memory recording.
func (s *Server) ServeBytes(w http.ResponseWriter, r *http.Request, data []byte, contentType string) error {
	return s.Serve(w, r, bytes.NewReader(data), int64(len(data)), contentType)
}

// Serve writes size bytes of content, or the requested range of it.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	rng, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed header is ignored and the whole body is sent.
	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		if _, err := io.Copy(w, content); err != nil {
			s.logger.Debug("media copy interrupted", "error", err)
		}
		return nil
	}

	if _, err := content.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek media: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(rng.ContentLength(), 10))
	w.Header().Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, content, rng.ContentLength()); err != nil {
		s.logger.Debug("media copy interrupted", "error", err)
	}
	return nil
}

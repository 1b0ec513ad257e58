package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// Local writes media under a directory and serves it back through the
// agent's /media endpoint.
type Local struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewLocal creates dir if needed. baseURL is the public URL prefix that maps
// to dir, e.g. http://127.0.0.1:8787/media.
func NewLocal(dir, baseURL string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Local{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logging.WithComponent(logging.OrDiscard(logger), "local_media"),
	}, nil
}

func (l *Local) Name() string {
	return "local"
}

func (l *Local) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*Asset, error) {
	key := newKey(opts)
	path := filepath.Join(l.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create media file: %w", err)
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("write media file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	l.logger.Info("media stored", "key", key, "bytes", n)
	return &Asset{URL: l.baseURL + "/" + key, ID: key}, nil
}

// Path resolves a key to a file inside the media directory. Keys that
// escape the directory are rejected.
func (l *Local) Path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.HasSuffix(clean, ".part") {
		return "", os.ErrNotExist
	}
	return filepath.Join(l.dir, clean), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

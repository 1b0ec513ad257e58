package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/gallery"
	"github.com/reelbox/reelbox-agent/internal/playback"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/site"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

// MediaStore resolves keys of locally stored media to file paths.
type MediaStore interface {
	Path(key string) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Locale         string
	AuthToken      string

	Workflows *workflow.Manager
	Publisher *publish.Coordinator
	Clips     *clips.Repository
	Gallery   *gallery.Projection
	Posters   *gallery.Posters
	News      *site.News
	Settings  *site.SettingsStore
	Playback  *playback.Server
	// Media is nil unless the local blob store is in use.
	Media  MediaStore
	Doctor *capture.Doctor

	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

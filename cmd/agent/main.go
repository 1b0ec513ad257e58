package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/reelbox/reelbox-agent/internal/api"
	"github.com/reelbox/reelbox-agent/internal/blobstore"
	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/clips"
	"github.com/reelbox/reelbox-agent/internal/config"
	"github.com/reelbox/reelbox-agent/internal/db"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/gallery"
	"github.com/reelbox/reelbox-agent/internal/logging"
	"github.com/reelbox/reelbox-agent/internal/playback"
	"github.com/reelbox/reelbox-agent/internal/publish"
	"github.com/reelbox/reelbox-agent/internal/site"
	"github.com/reelbox/reelbox-agent/internal/thumbnail"
	"github.com/reelbox/reelbox-agent/internal/ui"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

var Version = "0.1.0"

const (
	credentialsCollection = "agent"
	credentialsID         = "credentials"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelbox agent", "version", Version, "data_dir", cfg.DataDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openDocstore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	authToken, err := ensureAuthToken(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	blobs, local, err := openBlobstore(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    REELBOX AGENT v%-23s ║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    %-45s ║\n", cfg.PublicBaseURL())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Media:      %-45s ║\n", blobs.Name())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	doctor := capture.NewDoctor(capture.FFmpegEncoderProbe(cfg.FFmpegPath()), logger)
	probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("ffmpeg encoder probe failed, recording may be unavailable", "error", err)
	} else {
		logger.Info("ffmpeg encoders detected", "encoders", len(caps.Encoders))
	}
	probeCancel()

	capCfg := cfg.Capture()
	provider := capture.NewFFmpegProvider(capture.DeviceConfig{
		InputFormat:      capCfg.InputFormat,
		FrontDevice:      capCfg.FrontDevice,
		BackDevice:       capCfg.BackDevice,
		AudioInputFormat: capCfg.AudioInputFormat,
		AudioDevice:      capCfg.AudioDevice,
		Width:            capCfg.Width,
		Height:           capCfg.Height,
	}, logger)
	encoder := capture.NewFFmpegEncoder(cfg.FFmpegPath(), doctor, logger)
	sources := frameSources(cfg.FFmpegPath(), cfg.PublicBaseURL()+"/media/", local, logger)

	var cache gallery.Cache = gallery.NopCache{}
	if cfg.RedisURL() != "" {
		redisCache, err := gallery.NewRedisCache(ctx, cfg.RedisURL())
		if err != nil {
			logger.Warn("redis unavailable, gallery cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
			logger.Info("gallery cache enabled", "ttl", cfg.GalleryCacheTTL())
		}
	}

	clipRepo := clips.NewRepository(store)
	projection := gallery.NewProjection(clipRepo, cache, gallery.Config{
		Locale:        cfg.Locale(),
		TTL:           cfg.GalleryCacheTTL(),
		PublicBaseURL: cfg.PublicBaseURL(),
	}, logger)
	posters := gallery.NewPosters(gallery.SourceFactory(sources), cache, time.Hour, logger)
	publisher := publish.NewCoordinator(blobs, clipRepo, projection, publish.Config{
		Preset: cfg.UploadPreset(),
		Locale: cfg.Locale(),
	}, logger)

	manager := workflow.NewManager(workflow.Deps{
		Provider:   provider,
		Encoder:    encoder,
		Thumbnails: thumbnail.NewSampler(cfg.ThumbnailWorkers(), cfg.FFprobePath(), logger),
		Sources:    workflow.SourceFactory(sources),
		Publisher:  publisher,
		Locale:     cfg.Locale(),
		TempDir:    os.TempDir(),
		Logger:     logger,
	}, clipRepo)

	serverCfg := api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Locale:         cfg.Locale(),
		AuthToken:      authToken,
		Workflows:      manager,
		Publisher:      publisher,
		Clips:          clipRepo,
		Gallery:        projection,
		Posters:        posters,
		News:           site.NewNews(store, logger),
		Settings:       site.NewSettingsStore(store, logger),
		Playback:       playback.NewServer(logger),
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		Version:        Version,
	}
	if local != nil {
		serverCfg.Media = local
	}
	apiServer := api.NewServer(serverCfg)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Captures: manager,
			Logger:   logger,
			OnQuit:   quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	manager.Shutdown()

	logger.Info("shutdown complete")
	return nil
}

func openDocstore(ctx context.Context, cfg config.Config, logger *slog.Logger) (docstore.Store, error) {
	if cfg.Docstore() == config.DocstorePostgres {
		store, err := docstore.OpenPostgres(ctx, cfg.PostgresDSN(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres docstore: %w", err)
		}
		logger.Info("using postgres docstore")
		return store, nil
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("using sqlite docstore", "path", logging.SanitizePath(cfg.DBPath()))
	return &sqliteDocstore{SQLiteStore: docstore.NewSQLiteStore(database.Conn()), db: database}, nil
}

// sqliteDocstore closes the database along with the store.
type sqliteDocstore struct {
	*docstore.SQLiteStore
	db *db.DB
}

func (s *sqliteDocstore) Close() error {
	return s.db.Close()
}

// openBlobstore returns the configured store. The local store is also
// returned on its own so the API can serve its files.
func openBlobstore(cfg config.Config, logger *slog.Logger) (blobstore.Store, *blobstore.Local, error) {
	switch cfg.Blobstore() {
	case config.BlobstoreCloudinary:
		return blobstore.NewCloudinary(cfg.CloudinaryAPIBase(), cfg.CloudinaryCloudName(), logger), nil, nil
	case config.BlobstoreS3:
		s3cfg := cfg.S3()
		store, err := blobstore.NewS3(blobstore.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			PublicBaseURL:   s3cfg.PublicBaseURL,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure s3 blobstore: %w", err)
		}
		return store, nil, nil
	default:
		local, err := blobstore.NewLocal(cfg.MediaDir(), cfg.PublicBaseURL()+"/media", logger)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

// frameSources opens ffmpeg frame sources. Media served by this agent is
// read straight from disk.
func frameSources(ffmpegPath, mediaPrefix string, local *blobstore.Local, logger *slog.Logger) func(string) thumbnail.FrameSource {
	return func(input string) thumbnail.FrameSource {
		if local != nil {
			if key, ok := strings.CutPrefix(input, mediaPrefix); ok {
				if path, err := local.Path(key); err == nil {
					input = path
				}
			}
		}
		return thumbnail.NewFFmpegSource(ffmpegPath, input, logger)
	}
}

func ensureAuthToken(ctx context.Context, store docstore.Store) (string, error) {
	doc, err := store.Get(ctx, credentialsCollection, credentialsID)
	if err == nil {
		if token := doc.String("auth_token"); token != "" {
			return token, nil
		}
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if _, err := store.Put(ctx, credentialsCollection, credentialsID, map[string]any{"auth_token": token}); err != nil {
		return "", err
	}

	return token, nil
}

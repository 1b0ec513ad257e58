// Package config provides configuration management for the Reelbox agent.
// Configuration is layered: built-in defaults, an optional reelbox.yaml file,
// then REELBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultHost     = "127.0.0.1"
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelbox"
	DefaultLocale   = "nl-NL"

	// EnvPrefix is prepended to every key when reading the environment,
	// e.g. REELBOX_PORT.
	EnvPrefix = "REELBOX"

	// EnvConfigFile points at an explicit config file.
	EnvConfigFile = "REELBOX_CONFIG"

	// Database filename
	DBFilename = "reelbox.db"

	DocstoreSQLite   = "sqlite"
	DocstorePostgres = "postgres"

	BlobstoreLocal      = "local"
	BlobstoreCloudinary = "cloudinary"
	BlobstoreS3         = "s3"

	DefaultUploadPreset     = "reelbox"
	DefaultCloudinaryAPI    = "https://api.cloudinary.com"
	DefaultGalleryCacheTTL  = 30 * time.Second
	DefaultThumbnailWorkers = 3
	DefaultCaptureWidth     = 1280
	DefaultCaptureHeight    = 720
)

// Keys understood by the loader. The environment name is EnvPrefix + "_" +
// upper-cased key.
const (
	keyPort               = "port"
	keyHost               = "host"
	keyLogLevel           = "log_level"
	keyDataDir            = "data_dir"
	keyLocale             = "locale"
	keyHeadless           = "headless"
	keyAllowedOrigins     = "allowed_origins"
	keyPublicBaseURL      = "public_base_url"
	keyDocstore           = "docstore"
	keyPostgresDSN        = "postgres_dsn"
	keyBlobstore          = "blobstore"
	keyUploadPreset       = "upload_preset"
	keyCloudinaryCloud    = "cloudinary_cloud_name"
	keyCloudinaryAPIBase  = "cloudinary_api_base"
	keyS3Bucket           = "s3_bucket"
	keyS3Region           = "s3_region"
	keyS3Endpoint         = "s3_endpoint"
	keyS3AccessKeyID      = "s3_access_key_id"
	keyS3SecretAccessKey  = "s3_secret_access_key"
	keyS3PublicBaseURL    = "s3_public_base_url"
	keyRedisURL           = "redis_url"
	keyGalleryCacheTTL    = "gallery_cache_ttl"
	keyFFmpegPath         = "ffmpeg_path"
	keyFFprobePath        = "ffprobe_path"
	keyCaptureInputFormat = "capture_input_format"
	keyCameraFront        = "camera_front"
	keyCameraBack         = "camera_back"
	keyAudioInputFormat   = "audio_input_format"
	keyAudioDevice        = "audio_device"
	keyCaptureWidth       = "capture_width"
	keyCaptureHeight      = "capture_height"
	keyThumbnailWorkers   = "thumbnail_workers"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Host() string
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	Locale() string
	Headless() bool
	AllowedOrigins() []string
	PublicBaseURL() string

	Docstore() string
	PostgresDSN() string

	Blobstore() string
	UploadPreset() string
	CloudinaryCloudName() string
	CloudinaryAPIBase() string
	S3() S3Config

	RedisURL() string
	GalleryCacheTTL() time.Duration

	FFmpegPath() string
	FFprobePath() string
	Capture() CaptureConfig
	ThumbnailWorkers() int
}

// S3Config groups the settings of the S3 blob store backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// CaptureConfig describes how physical devices are opened through ffmpeg.
type CaptureConfig struct {
	InputFormat      string
	FrontDevice      string
	BackDevice       string
	AudioInputFormat string
	AudioDevice      string
	Width            int
	Height           int
}

// EnvConfig is the viper-backed Config implementation.
type EnvConfig struct {
	v    *viper.Viper
	port int
}

// New creates a new EnvConfig with defaults, an optional config file and
// environment variable overrides.
func New() (*EnvConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &EnvConfig{v: v}

	port, err := strconv.Atoi(strings.TrimSpace(v.GetString(keyPort)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_PORT: %w", EnvPrefix, err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid %s_PORT: port must be between 1 and 65535", EnvPrefix)
	}
	cfg.port = port

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, DefaultPort)
	v.SetDefault(keyHost, DefaultHost)
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyDataDir, defaultDataDir())
	v.SetDefault(keyLocale, DefaultLocale)
	v.SetDefault(keyHeadless, false)
	v.SetDefault(keyAllowedOrigins, "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault(keyPublicBaseURL, "")
	v.SetDefault(keyDocstore, DocstoreSQLite)
	v.SetDefault(keyPostgresDSN, "")
	v.SetDefault(keyBlobstore, BlobstoreLocal)
	v.SetDefault(keyUploadPreset, DefaultUploadPreset)
	v.SetDefault(keyCloudinaryCloud, "")
	v.SetDefault(keyCloudinaryAPIBase, DefaultCloudinaryAPI)
	v.SetDefault(keyS3Bucket, "")
	v.SetDefault(keyS3Region, "us-east-1")
	v.SetDefault(keyS3Endpoint, "")
	v.SetDefault(keyS3AccessKeyID, "")
	v.SetDefault(keyS3SecretAccessKey, "")
	v.SetDefault(keyS3PublicBaseURL, "")
	v.SetDefault(keyRedisURL, "")
	v.SetDefault(keyGalleryCacheTTL, DefaultGalleryCacheTTL)
	v.SetDefault(keyFFmpegPath, "ffmpeg")
	v.SetDefault(keyFFprobePath, "ffprobe")
	v.SetDefault(keyCaptureInputFormat, "v4l2")
	v.SetDefault(keyCameraFront, "/dev/video0")
	v.SetDefault(keyCameraBack, "/dev/video1")
	v.SetDefault(keyAudioInputFormat, "alsa")
	v.SetDefault(keyAudioDevice, "default")
	v.SetDefault(keyCaptureWidth, DefaultCaptureWidth)
	v.SetDefault(keyCaptureHeight, DefaultCaptureHeight)
	v.SetDefault(keyThumbnailWorkers, DefaultThumbnailWorkers)
}

// readConfigFile loads REELBOX_CONFIG when set, otherwise looks for
// reelbox.yaml in the working directory and the data directory. A missing
// implicit file is not an error.
func readConfigFile(v *viper.Viper) error {
	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("reelbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString(keyDataDir))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (c *EnvConfig) validate() error {
	switch c.Docstore() {
	case DocstoreSQLite:
	case DocstorePostgres:
		if c.PostgresDSN() == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for the postgres document store", EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid %s_DOCSTORE %q: want sqlite or postgres", EnvPrefix, c.Docstore())
	}

	switch c.Blobstore() {
	case BlobstoreLocal:
	case BlobstoreCloudinary:
		if c.CloudinaryCloudName() == "" {
			return fmt.Errorf("%s_CLOUDINARY_CLOUD_NAME is required for the cloudinary blob store", EnvPrefix)
		}
	case BlobstoreS3:
		s3 := c.S3()
		if s3.Bucket == "" || s3.AccessKeyID == "" || s3.SecretAccessKey == "" {
			return fmt.Errorf("s3 blob store requires bucket, access key id and secret access key")
		}
	default:
		return fmt.Errorf("invalid %s_BLOBSTORE %q: want local, cloudinary or s3", EnvPrefix, c.Blobstore())
	}

	if c.ThumbnailWorkers() < 1 {
		return fmt.Errorf("invalid %s_THUMBNAIL_WORKERS: must be at least 1", EnvPrefix)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.v.GetString(keyHost)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.v.GetString(keyLogLevel)
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.v.GetString(keyDataDir)
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.DataDir(), DBFilename)
}

// MediaDir returns the directory used by the local blob store
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.DataDir(), "media")
}

func (c *EnvConfig) Locale() string {
	return c.v.GetString(keyLocale)
}

func (c *EnvConfig) Headless() bool {
	return c.v.GetBool(keyHeadless)
}

// AllowedOrigins returns the CORS origins permitted to call the API
func (c *EnvConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.v.GetString(keyAllowedOrigins), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// PublicBaseURL is the externally reachable base URL of this agent. It
// defaults to the listen address.
func (c *EnvConfig) PublicBaseURL() string {
	if u := strings.TrimRight(c.v.GetString(keyPublicBaseURL), "/"); u != "" {
		return u
	}
	return fmt.Sprintf("http://%s:%d", c.Host(), c.Port())
}

func (c *EnvConfig) Docstore() string {
	return strings.ToLower(c.v.GetString(keyDocstore))
}

func (c *EnvConfig) PostgresDSN() string {
	return c.v.GetString(keyPostgresDSN)
}

func (c *EnvConfig) Blobstore() string {
	return strings.ToLower(c.v.GetString(keyBlobstore))
}

func (c *EnvConfig) UploadPreset() string {
	return c.v.GetString(keyUploadPreset)
}

func (c *EnvConfig) CloudinaryCloudName() string {
	return c.v.GetString(keyCloudinaryCloud)
}

func (c *EnvConfig) CloudinaryAPIBase() string {
	return strings.TrimRight(c.v.GetString(keyCloudinaryAPIBase), "/")
}

func (c *EnvConfig) S3() S3Config {
	return S3Config{
		Bucket:          c.v.GetString(keyS3Bucket),
		Region:          c.v.GetString(keyS3Region),
		Endpoint:        c.v.GetString(keyS3Endpoint),
		AccessKeyID:     c.v.GetString(keyS3AccessKeyID),
		SecretAccessKey: c.v.GetString(keyS3SecretAccessKey),
		PublicBaseURL:   strings.TrimRight(c.v.GetString(keyS3PublicBaseURL), "/"),
	}
}

func (c *EnvConfig) RedisURL() string {
	return c.v.GetString(keyRedisURL)
}

func (c *EnvConfig) GalleryCacheTTL() time.Duration {
	return c.v.GetDuration(keyGalleryCacheTTL)
}

func (c *EnvConfig) FFmpegPath() string {
	return c.v.GetString(keyFFmpegPath)
}

func (c *EnvConfig) FFprobePath() string {
	return c.v.GetString(keyFFprobePath)
}

func (c *EnvConfig) Capture() CaptureConfig {
	return CaptureConfig{
		InputFormat:      c.v.GetString(keyCaptureInputFormat),
		FrontDevice:      c.v.GetString(keyCameraFront),
		BackDevice:       c.v.GetString(keyCameraBack),
		AudioInputFormat: c.v.GetString(keyAudioInputFormat),
		AudioDevice:      c.v.GetString(keyAudioDevice),
		Width:            c.v.GetInt(keyCaptureWidth),
		Height:           c.v.GetInt(keyCaptureHeight),
	}
}

func (c *EnvConfig) ThumbnailWorkers() int {
	return c.v.GetInt(keyThumbnailWorkers)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

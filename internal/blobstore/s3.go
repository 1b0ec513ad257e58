package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL overrides the locator prefix, e.g. a CDN in front of
	// the bucket.
	PublicBaseURL string
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores media in an S3-compatible bucket.
type S3 struct {
	client  s3API
	bucket  string
	baseURL string
	logger  *slog.Logger
}

func NewS3(cfg S3Config, logger *slog.Logger) (*S3, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: access key id, secret access key and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           cfg.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return newS3(s3.New(opts), cfg, logger), nil
}

func newS3(client s3API, cfg S3Config, logger *slog.Logger) *S3 {
	return &S3{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: objectBaseURL(cfg),
		logger:  logging.WithComponent(logging.OrDiscard(logger), "s3"),
	}
}

// objectBaseURL returns the URL prefix objects are reachable under.
func objectBaseURL(cfg S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func (s *S3) Name() string {
	return "s3"
}

func (s *S3) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*Asset, error) {
	key := newKey(opts)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.Size > 0 {
		input.ContentLength = aws.Int64(opts.Size)
	}

	s.logger.Info("uploading media", "bucket", s.bucket, "key", key, "blob_bytes", opts.Size)

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload file to S3: %w", err)
	}

	return &Asset{URL: s.baseURL + "/" + key, ID: key}, nil
}

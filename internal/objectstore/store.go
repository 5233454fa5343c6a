// Package objectstore republishes generated images into an S3-compatible bucket (MinIO).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

const vendor = "minio"

var (
	// ErrImageTooLarge is returned when a downloaded image exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("image exceeds size limit")
	// ErrNotAnImage is returned when the downloaded body is not an image.
	ErrNotAnImage = errors.New("downloaded content is not an image")
	// ErrMissingConfig is returned by New when endpoint, credentials or bucket are unset.
	ErrMissingConfig = errors.New("object store endpoint, credentials and bucket are required")
)

// Options configures Store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// MaxImageBytes caps downloads (default 20 MiB).
	MaxImageBytes int64
	// RetryMax is the number of download retries (default 3).
	RetryMax int
	// Timeout bounds one download attempt (default 1 minute).
	Timeout time.Duration

	VendorMetrics observability.VendorMetrics
}

// Store copies images from temporary URLs into a bucket.
type Store struct {
	client   *minio.Client
	bucket   string
	http     *retryablehttp.Client
	maxBytes int64
	metrics  observability.VendorMetrics
}

// New creates a Store. It does not contact the server; call EnsureBucket at startup.
func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" || opts.AccessKey == "" || opts.SecretKey == "" || opts.Bucket == "" {
		return nil, ErrMissingConfig
	}

	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 20 << 20
	}

	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}

	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = opts.RetryMax
	httpClient.HTTPClient.Timeout = opts.Timeout
	httpClient.Logger = nil

	return &Store{
		client:   client,
		bucket:   opts.Bucket,
		http:     httpClient,
		maxBytes: opts.MaxImageBytes,
		metrics:  opts.VendorMetrics,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	return observability.TimeVendorCall(ctx, s.metrics, vendor, "ensure_bucket", func() error {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", s.bucket, err)
		}

		if exists {
			return nil
		}

		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}

		slog.InfoContext(ctx, "Created object store bucket", "bucket", s.bucket)

		return nil
	})
}

// Republish downloads imageURL and stores it under a new time-ordered key, which it returns.
func (s *Store) Republish(ctx context.Context, imageURL string) (objectID string, err error) {
	ctx, span := observability.StartSpan(ctx, "objectstore.Republish")
	defer func() { observability.EndSpan(span, err) }()

	data, contentType, err := s.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	key := objectKey(contentType)

	err = observability.TimeVendorCall(ctx, s.metrics, vendor, "put_object", func() error {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})

		return err
	})
	if err != nil {
		return "", apperrors.NewUpstreamError(vendor, "put_object", err)
	}

	slog.DebugContext(ctx, "Republished image", "object_id", key, "bytes", len(data), "content_type", contentType)

	return key, nil
}

// download fetches url and returns its body and image content type.
func (s *Store) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	if int64(len(data)) > s.maxBytes {
		return nil, "", ErrImageTooLarge
	}

	contentType := detectContentType(resp.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrNotAnImage, contentType)
	}

	return data, contentType, nil
}

// detectContentType prefers a declared image type and sniffs the body otherwise.
func detectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if strings.HasPrefix(declared, "image/") {
		return declared
	}

	return http.DetectContentType(data)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func objectKey(contentType string) string {
	return uuid.Must(uuid.NewV7()).String() + extensions[contentType]
}

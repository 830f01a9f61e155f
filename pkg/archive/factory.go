package archive

import (
	"context"
	"fmt"
	"os"
)

// BackendType selects the archive backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendS3     BackendType = "s3"
	BackendGCS    BackendType = "gcs"
)

// NewFromEnv creates an archive based on environment variables.
//
//   - ARCHIVE_BACKEND: "memory" (default), "s3" or "gcs"
//
// For S3:
//   - ARCHIVE_S3_BUCKET (required)
//   - ARCHIVE_S3_REGION or AWS_REGION (default "us-east-1")
//   - ARCHIVE_S3_ENDPOINT (optional, for MinIO/LocalStack/gateways)
//   - ARCHIVE_S3_PREFIX (optional)
//
// For GCS:
//   - ARCHIVE_GCS_BUCKET (required)
//   - ARCHIVE_GCS_PREFIX (optional)
func NewFromEnv(ctx context.Context) (Archive, error) {
	backend := BackendType(os.Getenv("ARCHIVE_BACKEND"))
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return NewMemoryArchive(), nil
	case BackendS3:
		bucket := os.Getenv("ARCHIVE_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("archive: ARCHIVE_S3_BUCKET is required for s3 backend")
		}
		region := os.Getenv("ARCHIVE_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Archive(ctx, S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("ARCHIVE_S3_ENDPOINT"),
			Prefix:   os.Getenv("ARCHIVE_S3_PREFIX"),
		})
	case BackendGCS:
		bucket := os.Getenv("ARCHIVE_GCS_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("archive: ARCHIVE_GCS_BUCKET is required for gcs backend")
		}
		return NewGCSArchive(ctx, GCSConfig{
			Bucket: bucket,
			Prefix: os.Getenv("ARCHIVE_GCS_PREFIX"),
		})
	default:
		return nil, fmt.Errorf("archive: unsupported backend: %s", backend)
	}
}

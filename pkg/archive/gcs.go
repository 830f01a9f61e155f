package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSArchive implements Archive on Google Cloud Storage.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSArchive.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSArchive creates a GCS-backed archive using ADC credentials.
func NewGCSArchive(ctx context.Context, cfg GCSConfig) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to create GCS client: %w", err)
	}
	return &GCSArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchive) object(rawHash string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.prefix + rawHash + ".blob")
}

func (a *GCSArchive) Write(ctx context.Context, blob []byte) (string, error) {
	id := ContentID(blob)
	rawHash, _ := parseContentID(id)

	obj := a.object(rawHash)
	if _, err := obj.Attrs(ctx); err == nil {
		return id, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(blob); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: gcs close failed: %w", err)
	}
	return id, nil
}

func (a *GCSArchive) Get(ctx context.Context, contentID string) ([]byte, error) {
	rawHash, err := parseContentID(contentID)
	if err != nil {
		return nil, err
	}

	reader, err := a.object(rawHash).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs get failed for %s: %w", contentID, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

func (a *GCSArchive) Exists(ctx context.Context, contentID string) (bool, error) {
	rawHash, err := parseContentID(contentID)
	if err != nil {
		return false, err
	}
	if _, err := a.object(rawHash).Attrs(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, fmt.Errorf("archive: gcs attrs failed: %w", err)
	}
	return true, nil
}

package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archive implements Archive on an S3-compatible bucket (AWS, MinIO or an
// Arweave bundler gateway exposing the S3 API). Blobs are keyed by their
// sha256, so a retried upload of the same content hits HeadObject and
// returns without a second PUT.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3Archive.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack, gateway)
	Prefix   string // Optional key prefix
}

// NewS3Archive creates an S3-backed archive.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	return &S3Archive{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archive) key(rawHash string) string {
	return a.prefix + rawHash + ".blob"
}

func (a *S3Archive) Write(ctx context.Context, blob []byte) (string, error) {
	id := ContentID(blob)
	rawHash, _ := parseContentID(id)
	key := a.key(rawHash)

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return id, nil
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put failed: %w", err)
	}
	return id, nil
}

func (a *S3Archive) Get(ctx context.Context, contentID string) ([]byte, error) {
	rawHash, err := parseContentID(contentID)
	if err != nil {
		return nil, err
	}

	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(rawHash)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: s3 get failed for %s: %w", contentID, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

func (a *S3Archive) Exists(ctx context.Context, contentID string) (bool, error) {
	rawHash, err := parseContentID(contentID)
	if err != nil {
		return false, err
	}

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(rawHash)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Package archive is the write-once, content-addressed blob store holding
// published course documents (the Arweave-like copy). Writes are idempotent
// by content hash: storing the same canonical bytes twice returns the same
// content id and performs no second upload. A missing archive copy never
// invalidates a course; the engine reports it as a soft failure.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no blob exists for the content id.
var ErrNotFound = errors.New("archive: blob not found")

// Archive stores immutable blobs addressed by their sha256.
type Archive interface {
	// Write persists the blob and returns its content id ("sha256:<hex>").
	// Writing bytes that are already archived is a no-op returning the
	// existing id.
	Write(ctx context.Context, blob []byte) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
	Exists(ctx context.Context, contentID string) (bool, error)
}

// ContentID computes the content id the Archive would assign to blob.
func ContentID(blob []byte) string {
	h := sha256.Sum256(blob)
	return "sha256:" + hex.EncodeToString(h[:])
}

func parseContentID(contentID string) (string, error) {
	if !strings.HasPrefix(contentID, "sha256:") || len(contentID) != len("sha256:")+64 {
		return "", fmt.Errorf("archive: invalid content id: %s", contentID)
	}
	return contentID[len("sha256:"):], nil
}

// Package content is the off-chain relational store for rich course
// documents. It is the system of record for admin intent: the engine writes
// here before the ledger, and a ledger failure leaves the stored document in
// place for an idempotent retry. Implementations are expected to be cheaper
// and more reliable than the ledger adapter.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

var (
	// ErrNotFound is returned when no document exists for the course id.
	ErrNotFound = errors.New("content: course not found")
	// ErrInvalidDocument is returned when a document fails schema validation.
	ErrInvalidDocument = errors.New("content: invalid course document")
)

// Store holds course documents keyed by course id. UpsertCourse is
// idempotent: re-writing an identical document returns the same ref and
// must not create a second record.
type Store interface {
	UpsertCourse(ctx context.Context, doc *model.CourseContent) (ref string, err error)
	GetCourse(ctx context.Context, courseID string) (*model.CourseContent, error)
	ListCourses(ctx context.Context) ([]*model.CourseContent, error)

	// SetArchiveID records the immutable archive copy of a course document.
	SetArchiveID(ctx context.Context, courseID, archiveID string) error
	// ListMissingArchive returns documents that have no archive copy yet.
	ListMissingArchive(ctx context.Context) ([]*model.CourseContent, error)

	// UpsertAchievementMeta stores the off-chain metadata document for an
	// achievement type (raw JSON, written before the ledger record).
	UpsertAchievementMeta(ctx context.Context, achievementID string, meta []byte) error
	GetAchievementMeta(ctx context.Context, achievementID string) ([]byte, error)
}

// Canonical serializes a course document in RFC 8785 canonical form, so the
// same logical document always hashes identically regardless of field order.
func Canonical(doc *model.CourseContent) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("content: marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("content: canonicalization failed: %w", err)
	}
	return canonical, nil
}

// Ref derives the content reference for a document: the course id plus the
// canonical sha256. This is what the engine hands back on partial failure so
// the ledger step can be retried against the exact stored revision.
func Ref(doc *model.CourseContent) (string, error) {
	canonical, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(canonical)
	return doc.CourseID + "@sha256:" + hex.EncodeToString(h[:]), nil
}

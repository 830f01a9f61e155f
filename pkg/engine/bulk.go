package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// UploadToArchive copies one course document into the immutable archive and
// records the content id. Already-archived courses are returned as-is: the
// existing-reference check, not a duplicate error from the adapter, is what
// makes the operation idempotent. An archive failure is soft; the course
// stays valid without its archive copy.
func (e *Engine) UploadToArchive(ctx context.Context, token auth.Capability, courseID string) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	doc, err := e.store.GetCourse(ctx, courseID)
	if err != nil {
		e.record(ctx, "upload_to_archive", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}
	if doc.ArchiveID != "" {
		e.record(ctx, "upload_to_archive", start, "ok")
		return &Result{ReceiptID: newReceiptID(), ArchiveID: doc.ArchiveID}, nil
	}

	result, aerr := e.archiveCourse(ctx, doc)
	if aerr != nil {
		e.record(ctx, "upload_to_archive", start, "archive_error")
		return nil, aerr
	}
	e.logger.Info("course archived", "course", courseID, "archive_id", result.ArchiveID)
	e.record(ctx, "upload_to_archive", start, "ok")
	return result, nil
}

// archiveCourse writes the canonical document bytes and records the id in
// the content store.
func (e *Engine) archiveCourse(ctx context.Context, doc *model.CourseContent) (*Result, error) {
	blob, err := content.Canonical(doc)
	if err != nil {
		return nil, &ContentStoreError{Err: err}
	}
	archiveID, err := e.archive.Write(ctx, blob)
	if err != nil {
		return nil, &ArchiveError{Err: err}
	}
	if err := e.store.SetArchiveID(ctx, doc.CourseID, archiveID); err != nil {
		return nil, &ContentStoreError{Err: err}
	}
	return &Result{ReceiptID: newReceiptID(), ArchiveID: archiveID}, nil
}

// BulkUploadToArchive archives every course document that has no archive
// reference yet. Items fan out across a bounded worker pool; one item's
// failure never aborts its siblings. Courses that already carry a reference
// are counted as skipped and never re-submitted, so an immediate re-run
// reports every course as skipped.
func (e *Engine) BulkUploadToArchive(ctx context.Context, token auth.Capability) (*BulkResult, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	// The store answers the work set directly, so courses that already
	// carry a reference are never loaded for re-submission. The full
	// listing only sizes the skipped counter.
	missing, err := e.store.ListMissingArchive(ctx)
	if err != nil {
		e.record(ctx, "bulk_upload_to_archive", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}
	all, err := e.store.ListCourses(ctx)
	if err != nil {
		e.record(ctx, "bulk_upload_to_archive", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}

	agg := &BulkResult{Skipped: len(all) - len(missing)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for _, doc := range missing {
		wg.Add(1)
		sem <- struct{}{}
		go func(doc *model.CourseContent) {
			defer wg.Done()
			defer func() { <-sem }()

			_, aerr := e.archiveCourse(ctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if aerr != nil {
				agg.Failed++
				agg.Failures = append(agg.Failures, ItemFailure{CourseID: doc.CourseID, Reason: aerr.Error()})
				return
			}
			agg.Uploaded++
		}(doc)
	}
	wg.Wait()

	e.logger.Info("bulk archive finished",
		"uploaded", agg.Uploaded, "skipped", agg.Skipped, "failed", agg.Failed)
	e.record(ctx, "bulk_upload_to_archive", start, "ok")
	return agg, nil
}

// SeedCourse is one entry of a course seed manifest.
type SeedCourse struct {
	Course  model.Course
	Content *model.CourseContent
}

// SeedCourses registers every course from a seed manifest that the content
// store does not already hold, running the standard single-item create flow
// per course. Existing courses are skipped by reference check; a partial
// (content saved, ledger failed) counts as a failure with the ledger reason
// so the admin can retry those ids.
func (e *Engine) SeedCourses(ctx context.Context, token auth.Capability, seeds []SeedCourse) (*BulkResult, error) {
	start := time.Now()
	if token.Empty() {
		return nil, &PolicyViolation{Err: ErrMissingCapability}
	}

	agg := &BulkResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for _, seed := range seeds {
		if seed.Content != nil {
			if _, err := e.store.GetCourse(ctx, seed.Course.ID); err == nil {
				agg.Skipped++
				continue
			}
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(seed SeedCourse) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := e.CreateCourse(ctx, token, CourseRequest{Course: seed.Course, Content: seed.Content})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				agg.Failed++
				agg.Failures = append(agg.Failures, ItemFailure{CourseID: seed.Course.ID, Reason: err.Error()})
			case res.PartialFailure():
				agg.Failed++
				agg.Failures = append(agg.Failures, ItemFailure{CourseID: seed.Course.ID, Reason: res.OnChainError})
			default:
				agg.Uploaded++
			}
		}(seed)
	}
	wg.Wait()

	e.logger.Info("course seeding finished",
		"created", agg.Uploaded, "skipped", agg.Skipped, "failed", agg.Failed)
	e.record(ctx, "seed_courses", start, "ok")
	return agg, nil
}

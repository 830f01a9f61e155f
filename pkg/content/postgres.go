package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// PostgresStore implements Store on PostgreSQL. Course documents are stored
// as JSONB with the archive reference alongside, so ListMissingArchive is a
// single indexed query.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the courses table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS course_documents (
			course_id  TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			archive_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("content: migrate failed: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS achievement_metadata (
			achievement_id TEXT PRIMARY KEY,
			meta           JSONB NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("content: migrate failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAchievementMeta(ctx context.Context, achievementID string, meta []byte) error {
	query := `
		INSERT INTO achievement_metadata (achievement_id, meta, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (achievement_id) DO UPDATE SET
			meta = EXCLUDED.meta,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, achievementID, meta, time.Now().UTC()); err != nil {
		return fmt.Errorf("content: achievement meta upsert failed for %s: %w", achievementID, err)
	}
	return nil
}

func (s *PostgresStore) GetAchievementMeta(ctx context.Context, achievementID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT meta FROM achievement_metadata WHERE achievement_id = $1", achievementID)
	var meta []byte
	err := row.Scan(&meta)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content: achievement meta get failed for %s: %w", achievementID, err)
	}
	return meta, nil
}

func (s *PostgresStore) UpsertCourse(ctx context.Context, doc *model.CourseContent) (string, error) {
	if err := ValidateDocument(doc); err != nil {
		return "", err
	}
	ref, err := Ref(doc)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("content: marshal failed: %w", err)
	}

	// Preserve an existing archive_id unless the document carries one.
	query := `
		INSERT INTO course_documents (course_id, doc, archive_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id) DO UPDATE SET
			doc = EXCLUDED.doc,
			archive_id = CASE WHEN EXCLUDED.archive_id <> '' THEN EXCLUDED.archive_id ELSE course_documents.archive_id END,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, doc.CourseID, raw, doc.ArchiveID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("content: upsert failed for %s: %w", doc.CourseID, err)
	}
	return ref, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, courseID string) (*model.CourseContent, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT doc, archive_id FROM course_documents WHERE course_id = $1", courseID)

	var raw []byte
	var archiveID string
	err := row.Scan(&raw, &archiveID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content: get failed for %s: %w", courseID, err)
	}

	var doc model.CourseContent
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("content: corrupt document for %s: %w", courseID, err)
	}
	doc.ArchiveID = archiveID
	return &doc, nil
}

func (s *PostgresStore) ListCourses(ctx context.Context) ([]*model.CourseContent, error) {
	return s.list(ctx, "SELECT doc, archive_id FROM course_documents ORDER BY course_id")
}

func (s *PostgresStore) ListMissingArchive(ctx context.Context) ([]*model.CourseContent, error) {
	return s.list(ctx, "SELECT doc, archive_id FROM course_documents WHERE archive_id = '' ORDER BY course_id")
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]*model.CourseContent, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("content: list failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CourseContent
	for rows.Next() {
		var raw []byte
		var archiveID string
		if err := rows.Scan(&raw, &archiveID); err != nil {
			return nil, err
		}
		var doc model.CourseContent
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("content: corrupt document: %w", err)
		}
		doc.ArchiveID = archiveID
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetArchiveID(ctx context.Context, courseID, archiveID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE course_documents SET archive_id = $2, updated_at = $3 WHERE course_id = $1",
		courseID, archiveID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("content: set archive failed for %s: %w", courseID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

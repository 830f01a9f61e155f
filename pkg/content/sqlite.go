package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// SQLiteStore implements Store on an embedded SQLite database for local
// development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS course_documents (
		course_id  TEXT PRIMARY KEY,
		doc        JSON NOT NULL,
		archive_id TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS achievement_metadata (
		achievement_id TEXT PRIMARY KEY,
		meta           JSON NOT NULL,
		updated_at     DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("content: sqlite migrate failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertAchievementMeta(ctx context.Context, achievementID string, meta []byte) error {
	query := `
		INSERT INTO achievement_metadata (achievement_id, meta, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (achievement_id) DO UPDATE SET
			meta = excluded.meta,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, achievementID, meta, time.Now().UTC()); err != nil {
		return fmt.Errorf("content: achievement meta upsert failed for %s: %w", achievementID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAchievementMeta(ctx context.Context, achievementID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT meta FROM achievement_metadata WHERE achievement_id = ?", achievementID)
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

func (s *SQLiteStore) UpsertCourse(ctx context.Context, doc *model.CourseContent) (string, error) {
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

	query := `
		INSERT INTO course_documents (course_id, doc, archive_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (course_id) DO UPDATE SET
			doc = excluded.doc,
			archive_id = CASE WHEN excluded.archive_id <> '' THEN excluded.archive_id ELSE course_documents.archive_id END,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, doc.CourseID, raw, doc.ArchiveID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("content: upsert failed for %s: %w", doc.CourseID, err)
	}
	return ref, nil
}

func (s *SQLiteStore) GetCourse(ctx context.Context, courseID string) (*model.CourseContent, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT doc, archive_id FROM course_documents WHERE course_id = ?", courseID)

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

func (s *SQLiteStore) ListCourses(ctx context.Context) ([]*model.CourseContent, error) {
	return s.list(ctx, "SELECT doc, archive_id FROM course_documents ORDER BY course_id")
}

func (s *SQLiteStore) ListMissingArchive(ctx context.Context) ([]*model.CourseContent, error) {
	return s.list(ctx, "SELECT doc, archive_id FROM course_documents WHERE archive_id = '' ORDER BY course_id")
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]*model.CourseContent, error) {
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

func (s *SQLiteStore) SetArchiveID(ctx context.Context, courseID, archiveID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE course_documents SET archive_id = ?, updated_at = ? WHERE course_id = ?",
		archiveID, time.Now().UTC(), courseID)
	if err != nil {
		return fmt.Errorf("content: set archive failed for %s: %w", courseID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

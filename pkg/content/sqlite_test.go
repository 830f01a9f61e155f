package content

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	ref, err := store.UpsertCourse(ctx, testDoc("solana-basics"))
	require.NoError(t, err)
	assert.Contains(t, ref, "solana-basics@sha256:")

	doc, err := store.GetCourse(ctx, "solana-basics")
	require.NoError(t, err)
	assert.Equal(t, "Solana Basics", doc.Title)
	assert.Len(t, doc.Lessons, 2)

	_, err = store.GetCourse(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpsertPreservesArchiveID(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.UpsertCourse(ctx, testDoc("c1"))
	require.NoError(t, err)
	require.NoError(t, store.SetArchiveID(ctx, "c1", "sha256:abc"))

	// Re-upserting without an archive id keeps the recorded one.
	changed := testDoc("c1")
	changed.Lessons = append(changed.Lessons, model.Lesson{Slug: "more", Title: "More"})
	_, err = store.UpsertCourse(ctx, changed)
	require.NoError(t, err)

	doc, err := store.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", doc.ArchiveID)
	assert.Len(t, doc.Lessons, 3)
}

func TestSQLiteStore_ListMissingArchive(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.UpsertCourse(ctx, testDoc("c1"))
	require.NoError(t, err)
	_, err = store.UpsertCourse(ctx, testDoc("c2"))
	require.NoError(t, err)
	require.NoError(t, store.SetArchiveID(ctx, "c1", "sha256:abc"))

	missing, err := store.ListMissingArchive(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "c2", missing[0].CourseID)

	all, err := store.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_SetArchiveID_NotFound(t *testing.T) {
	store := newSQLiteStore(t)
	err := store.SetArchiveID(context.Background(), "ghost", "sha256:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AchievementMeta(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.GetAchievementMeta(ctx, "pioneer")
	assert.ErrorIs(t, err, ErrNotFound)

	meta := []byte(`{"image":"ipfs://abc"}`)
	require.NoError(t, store.UpsertAchievementMeta(ctx, "pioneer", meta))

	got, err := store.GetAchievementMeta(ctx, "pioneer")
	require.NoError(t, err)
	assert.JSONEq(t, string(meta), string(got))
}

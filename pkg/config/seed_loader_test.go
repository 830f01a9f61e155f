package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
name: genesis
courses:
  - id: solana-basics
    title: Solana Basics
    xp_per_lesson: 10
    schema_version: 1.0.0
    lessons:
      - slug: intro
        title: Introduction
      - slug: accounts
        title: Accounts
  - id: anchor-intro
    title: Anchor Intro
    xp_per_lesson: 15
    prerequisite: solana-basics
    lessons:
      - slug: setup
        title: Setup
`

func writeManifest(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadSeedManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "seed_genesis.yaml", sampleManifest)

	manifest, err := LoadSeedManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "genesis", manifest.Name)
	require.Len(t, manifest.Courses, 2)

	// Omitted schema_version defaults to 1.0.0.
	assert.Equal(t, "1.0.0", manifest.Courses[1].SchemaVersion)
}

func TestLoadSeedManifest_MissingID(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "seed_bad.yaml", "courses:\n  - title: No ID\n")

	_, err := LoadSeedManifest(path)
	assert.Error(t, err)
}

func TestLoadSeedManifests_Directory(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "seed_a.yaml", sampleManifest)
	writeManifest(t, dir, "seed_b.yaml", "courses: []\n")
	writeManifest(t, dir, "notes.yaml", "ignored: true\n")

	manifests, err := LoadSeedManifests(dir)
	require.NoError(t, err)
	assert.Len(t, manifests, 2)
}

func TestSeedCourse_Conversion(t *testing.T) {
	manifest, err := LoadSeedManifest(
		writeManifest(t, t.TempDir(), "seed_genesis.yaml", sampleManifest))
	require.NoError(t, err)

	seed := manifest.Courses[0]
	course := seed.Course()
	assert.Equal(t, "solana-basics", course.ID)
	assert.Equal(t, uint32(2), course.LessonCount)
	assert.Equal(t, uint64(10), course.XPPerLesson)

	doc := seed.Content()
	assert.Equal(t, "Solana Basics", doc.Title)
	require.Len(t, doc.Lessons, 2)
	assert.Equal(t, "intro", doc.Lessons[0].Slug)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LEDGER_RPS", "")
	t.Setenv("ENGINE_WORKERS", "")
	t.Setenv("ARCHIVE_BACKEND", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 10.0, cfg.LedgerRPS)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "memory", cfg.ArchiveBackend)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_RPS", "2.5")
	t.Setenv("ENGINE_WORKERS", "8")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2.5, cfg.LedgerRPS)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.RedisDB)
}

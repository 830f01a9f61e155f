package content

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// StoreType selects the content store backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
)

// NewStoreFromEnv creates a content store from environment variables.
//
//   - CONTENT_STORE_TYPE: "postgres" (default when DATABASE_URL is set),
//     "sqlite" or "memory"
//   - DATABASE_URL: Postgres DSN
//   - CONTENT_SQLITE_PATH: SQLite file path (default "data/content.db")
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("CONTENT_STORE_TYPE"))
	if storeType == "" {
		if os.Getenv("DATABASE_URL") != "" {
			storeType = StoreTypePostgres
		} else {
			storeType = StoreTypeSQLite
		}
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeSQLite:
		path := os.Getenv("CONTENT_SQLITE_PATH")
		if path == "" {
			path = "data/content.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("content: sqlite open failed: %w", err)
		}
		return NewSQLiteStore(db)
	case StoreTypePostgres:
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("content: DATABASE_URL is required for postgres store")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("content: postgres open failed: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("content: unsupported store type: %s", storeType)
	}
}

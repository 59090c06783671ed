// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/db"
	"github.com/usashopbox/storefront/internal/migrations"
)

// Open returns a fully migrated database in a temp dir, closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(ctx, database, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

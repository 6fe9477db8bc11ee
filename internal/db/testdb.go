package db

import (
	"database/sql"
	"testing"
)

// NewTestDB returns a migrated in-memory database that is closed when the
// test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

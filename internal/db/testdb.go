package db

import (
	"database/sql"
	"testing"
)

// NewTestDB opens a migrated in-memory database that is closed when the
// test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Migrate(database); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return database
}

// NewTestDocuments returns a document store over a fresh test database.
func NewTestDocuments(t testing.TB) *Documents {
	t.Helper()
	return NewDocuments(NewTestDB(t))
}

// Package testing provides shared test helpers.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/refinery/db"
)

// CreateTestDB opens a migrated SQLite database in a per-test temp
// directory. The database is closed automatically when the test ends.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "refinery_test.db")
	database, err := db.Open(path, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database, nil); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}

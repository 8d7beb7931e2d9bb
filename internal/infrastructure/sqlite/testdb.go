package sqlite

import (
	"database/sql"
	"testing"
)

// OpenTestDB opens a migrated in-memory database for repository and service
// tests. The single connection from [Open] keeps it safe for the concurrent
// attempt-guard tests, which hit the database from several goroutines.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}

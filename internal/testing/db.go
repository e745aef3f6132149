// Package testing provides testing utilities and helpers shared across the
// repository test suites.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/jaylee/stocklab-trader/internal/database"
)

// NewTestDB creates a temporary SQLite database for testing with the embedded
// schema applied. Returns the database instance and an idempotent cleanup
// function that closes the connection and removes the file.
//
// Supported schema names:
//   - "ledger"    - applies ledger_schema.sql
//   - "portfolio" - applies portfolio_schema.sql
//   - Unknown names create an empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary file per test for isolation; shared in-memory databases leak
	// state between parallel tests.
	tmpFile, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	profile := database.ProfileStandard
	if name == "ledger" {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		_ = db.Close()
	}

	t.Cleanup(cleanup)
	return db, cleanup
}

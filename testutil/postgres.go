// Package testutil provides helpers for integration tests that need a real
// Postgres instance. Tests using these helpers skip when TEST_PG_DSN is unset.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/luoshu/livesaver/db"
)

// SetupTestDB creates a test database connection and runs migrations.
// It skips the test if the TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

// SeedRecording inserts a recordings row for tests and returns the session id.
func SeedRecording(t *testing.T, dbc *sql.DB, sessionID, platform, state string, startedAt time.Time) {
	t.Helper()
	_, err := dbc.Exec(`INSERT INTO recordings (session_id, platform, state, started_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (session_id) DO NOTHING`, sessionID, platform, state, startedAt)
	if err != nil {
		t.Fatalf("failed to seed recording: %v", err)
	}
	t.Cleanup(func() {
		_, _ = dbc.Exec(`DELETE FROM chat_messages WHERE session_id=$1`, sessionID)
		_, _ = dbc.Exec(`DELETE FROM recordings WHERE session_id=$1`, sessionID)
	})
}

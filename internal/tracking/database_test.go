package tracking

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewDatabaseInMemory(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("sessions table not queryable: %v", err)
	}
}

func TestDatabaseSchemaExists(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"sessions", "transport_events"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("Table %s does not exist or is not queryable: %v", table, err)
		}
	}
}

func TestDatabaseIndexesExist(t *testing.T) {
	db := setupTestDB(t)

	expectedIndexes := []string{
		"idx_sessions_started",
		"idx_sessions_file",
		"idx_events_timestamp",
		"idx_events_session",
		"idx_events_kind",
	}

	for _, indexName := range expectedIndexes {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query index %s: %v", indexName, err)
		}
		if count != 1 {
			t.Errorf("Index %s not found", indexName)
		}
	}
}

func TestDatabaseConstraints(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name  string
		query string
		args  []any
	}{
		{
			name:  "zero channels",
			query: "INSERT INTO sessions (id, started_at, file_name, channels, sample_rate, seconds) VALUES (?, ?, ?, ?, ?, ?)",
			args:  []any{"a", 1, "x.wav", 0, 44100, 1.0},
		},
		{
			name:  "zero sample rate",
			query: "INSERT INTO sessions (id, started_at, file_name, channels, sample_rate, seconds) VALUES (?, ?, ?, ?, ?, ?)",
			args:  []any{"b", 1, "x.wav", 2, 0, 1.0},
		},
		{
			name:  "event without session",
			query: "INSERT INTO transport_events (timestamp, session_id, kind, seconds) VALUES (?, ?, ?, ?)",
			args:  []any{1, "missing", "play", 0.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Exec(tt.query, tt.args...); err == nil {
				t.Error("expected constraint violation")
			}
		})
	}
}

func TestPragmas(t *testing.T) {
	db := setupTestDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read user_version: %v", err)
	}
	if version != 1 {
		t.Errorf("user_version = %d, want 1", version)
	}
}

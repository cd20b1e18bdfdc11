package db

import (
	"path/filepath"
	"testing"
)

func TestInitDBCreatesSchema(t *testing.T) {
	ResetDB()
	defer ResetDB()

	path := filepath.Join(t.TempDir(), "nested", "bridge.db")
	conn, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	if GetDB() != conn {
		t.Errorf("GetDB() did not return the initialized connection")
	}

	var name string
	err = conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'connection_sessions'`).Scan(&name)
	if err != nil {
		t.Fatalf("schema missing: %v", err)
	}

	again, err := InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("second InitDB() error = %v", err)
	}
	if again != conn {
		t.Errorf("InitDB() should return the existing connection")
	}
}

func TestNewTestDBIsIsolated(t *testing.T) {
	a, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	defer a.Close()
	b, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	defer b.Close()

	if _, err := a.Exec(`INSERT INTO connection_sessions (connection_id, connected_at) VALUES ('x', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := b.QueryRow(`SELECT COUNT(*) FROM connection_sessions`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

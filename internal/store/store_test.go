package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_MetadataTablesExist(t *testing.T) {
	s := createTestStore(t, "")
	db, err := s.DB()
	if err != nil {
		t.Fatalf("DB() failed: %v", err)
	}

	for _, table := range []string{"soup_names", "soup_index_map", "store_info"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, "secret")
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t, "")

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Errorf("pragma check failed: %v", err)
		}
	}
}

func TestOpen_PureGoDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "secret", WithDriver(DriverPureGo))
	if err != nil {
		t.Fatalf("Open() with pure Go driver failed: %v", err)
	}
	defer s.Close()

	if s.Driver() != DriverPureGo {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DriverPureGo)
	}
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestOpen_DriversShareFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, "secret", WithDriver(DriverCGo))
	if err != nil {
		t.Fatalf("Open() with cgo driver failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path, "secret", WithDriver(DriverPureGo))
	if err != nil {
		t.Fatalf("reopen with pure Go driver failed: %v", err)
	}
	s2.Close()
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), "", WithDriver("postgres"))
	if !fault.IsInvalidInput(err) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", "")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "right")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	_, err = Open(path, "wrong")
	if !fault.IsAuthentication(err) {
		t.Fatalf("expected AUTHENTICATION, got %v", err)
	}

	// Empty passphrase is a different passphrase, not a bypass
	_, err = Open(path, "")
	if !fault.IsAuthentication(err) {
		t.Fatalf("expected AUTHENTICATION for empty passphrase, got %v", err)
	}

	s, err = Open(path, "right")
	if err != nil {
		t.Fatalf("reopen with right passphrase failed: %v", err)
	}
	s.Close()
}

func TestOpen_RefusesNewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s := openAt(t, path, "")
	db, _ := s.DB()
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	_, err := Open(path, "")
	if !fault.IsIntegrity(err) {
		t.Fatalf("expected SCHEMA_INTEGRITY, got %v", err)
	}
}

func TestBlobKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1 := openAt(t, path, "secret")
	k1 := s1.BlobKey()
	s1.Close()
	if len(k1) != 32 {
		t.Fatalf("BlobKey() length = %d, want 32", len(k1))
	}

	// Same passphrase and salt derive the same key
	s2 := openAt(t, path, "secret")
	defer s2.Close()
	if !bytes.Equal(k1, s2.BlobKey()) {
		t.Error("BlobKey() differs across reopen")
	}

	plain := createTestStore(t, "")
	if plain.BlobKey() != nil {
		t.Error("BlobKey() should be nil for empty passphrase")
	}
}

func TestClose_ThenOperationsFail(t *testing.T) {
	s := createTestStore(t, "")

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close()")
	}

	if _, err := s.DB(); !fault.IsConnectionClosed(err) {
		t.Errorf("DB() after Close: expected CONNECTION_CLOSED, got %v", err)
	}
	if _, err := s.BeginTx(context.Background()); !fault.IsConnectionClosed(err) {
		t.Errorf("BeginTx() after Close: expected CONNECTION_CLOSED, got %v", err)
	}

	// Second close is a no-op
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestReset_ClearsCache(t *testing.T) {
	s := createTestStore(t, "")

	s.Cache().Put(schema.Soup{Name: "employees", Table: "TABLE_1"})
	if s.Cache().Len() != 1 {
		t.Fatalf("cache Len() = %d, want 1", s.Cache().Len())
	}

	s.Reset()
	if _, ok := s.Cache().Get("employees"); ok {
		t.Error("cache still holds soup after Reset()")
	}

	// Reset leaves the connection usable
	if _, err := s.DB(); err != nil {
		t.Errorf("DB() after Reset failed: %v", err)
	}
}

func TestReset_WorksOnClosedHandle(t *testing.T) {
	s := createTestStore(t, "")
	s.Close()
	s.Reset()
}

package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a store in a temp directory and closes it on cleanup.
func createTestStore(t *testing.T, passphrase string) *Store {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "test.db"), passphrase)
}

func openAt(t *testing.T, path, passphrase string) *Store {
	t.Helper()
	s, err := Open(path, passphrase)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

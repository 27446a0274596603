package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/stigmergy/internal/store"
)

// OpenStore opens a fresh SQLite store under t.TempDir and closes it
// when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

package testutil

import (
	"testing"

	"github.com/nhle/homenotify/internal/store"
)

// NewTestLedger creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestLedger(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test ledger: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test ledger: %v", err)
		}
	})

	return s
}

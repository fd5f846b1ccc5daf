// Package helpers provides shared test fixtures.
package helpers

import (
	"testing"

	"github.com/emeraldgrove/clinic-assistant/internal/repository"
)

// NewTestStore returns an empty in-memory store, closed on test cleanup.
func NewTestStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

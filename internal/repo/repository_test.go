package repo_test

import (
	"testing"

	"github.com/hamed0406/fleetcheck/internal/repo"
	"github.com/hamed0406/fleetcheck/internal/repo/memory"
	pg "github.com/hamed0406/fleetcheck/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()
	var _ repo.Store = (*pg.Store)(nil)
}

package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"001_initial_schema.sql", 1},
		{"012_add_index.sql", 12},
		{"README.md", 0},
		{"initial.sql", 0},
		{"000_zero.sql", 0},
		{"abc_schema.sql", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, migrationVersion(tc.name))
		})
	}
}

func TestPendingMigrationsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010_later.sql", "002_second.sql", "001_first.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	got, err := pendingMigrations(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{got[0].version, got[1].version, got[2].version})
}

func TestShippedMigrationsParse(t *testing.T) {
	got, err := pendingMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].version)
}

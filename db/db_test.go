package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAndMigrate_SQLite(t *testing.T) {
	database, err := Connect("sqlite3", filepath.Join(t.TempDir(), "duels.sqlite"), time.Second)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database))
	require.NoError(t, Migrate(database), "migrations must be re-runnable")

	var tables []string
	err = database.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('results', 'participations') ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"participations", "results"}, tables)
}

func TestOpenDocumentStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "documents.db")

	store, err := OpenDocumentStore(path)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.FileExists(t, path)
}

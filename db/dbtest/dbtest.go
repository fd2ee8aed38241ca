// Package dbtest opens throwaway stores for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/Dosada05/duel-arena/db"
	"github.com/asdine/storm"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewSQLite returns a migrated in-memory sqlite database.
func NewSQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err, "failed to open in-memory sqlite")
	// every pooled connection would get its own empty :memory: database
	database.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(database), "failed to apply migrations")
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func NewDocumentStore(t testing.TB) *storm.DB {
	t.Helper()

	store, err := db.OpenDocumentStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err, "failed to open document store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// CheckIn inserts checked-in participations for a tournament.
func CheckIn(t testing.TB, database *sqlx.DB, tournamentID int, participantIDs ...int) {
	t.Helper()

	for _, id := range participantIDs {
		_, err := database.Exec(
			database.Rebind(`INSERT INTO participations (tournament_id, participant_id, checkin) VALUES (?, ?, ?)`),
			tournamentID, id, true,
		)
		require.NoError(t, err)
	}
}

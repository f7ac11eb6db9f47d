package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigratorUp(t *testing.T) {
	database := openTestDB(t)
	m := NewMigrator(database.DB)

	require.NoError(t, m.Up())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, len(migrations))
	assert.Equal(t, "initial_schema", applied[0].Description)
	assert.Len(t, applied[0].Checksum, 64)
	assert.False(t, applied[0].AppliedAt.IsZero())

	for _, table := range []string{"queue_items", "job_submissions", "remote_credentials"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigratorUpIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	m := NewMigrator(database.DB)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up())

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
}

func TestMigratorDetectsTamperedChecksum(t *testing.T) {
	database := openTestDB(t)
	m := NewMigrator(database.DB)

	require.NoError(t, m.Up())

	_, err := database.Exec("UPDATE schema_migrations SET checksum = ? WHERE version = 1",
		"0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	err = m.Up()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSteps = []string{
	`CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
	`ALTER TABLE settings ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';`,
}

func userVersion(t *testing.T, path string) int {
	t.Helper()
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func TestOpen_AppliesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrate_IsIncrementalAndIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.sqlite")
	ctx := context.Background()

	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, testSteps[:1]))
	require.NoError(t, db.Close())
	assert.Equal(t, 1, userVersion(t, path))

	db, err = Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, testSteps))
	require.NoError(t, Migrate(ctx, db, testSteps))
	_, err = db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES ('otp_enabled', 'true', 'now')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.Equal(t, 2, userVersion(t, path))
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db, testSteps))
	err = Migrate(context.Background(), db, testSteps[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this binary")
}

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthy.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db, testSteps))
	require.NoError(t, db.Close())

	issues, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	issues, err = VerifyIntegrity(path, "full")
	require.NoError(t, err)
	assert.Nil(t, issues)
}

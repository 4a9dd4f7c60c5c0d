package strategy

import (
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

func createSQLite(t *testing.T, path string, rows int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM notes`)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(`INSERT INTO notes (body) VALUES (?)`, "note")
		require.NoError(t, err)
	}
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func sqliteProject(source string) model.Project {
	return model.Project{ID: "notes", Type: model.ProjectTypeSQLite, Source: source}
}

func TestSQLite_BackupAndRestore(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app.db")
	createSQLite(t, src, 3)
	s := NewSQLite(zerolog.Nop())
	ctx := context.Background()

	scratch := t.TempDir()
	artifact, err := s.Backup(ctx, sqliteProject(src), scratch)
	require.NoError(t, err)
	assert.Equal(t, "notes.sqlite.gz", filepath.Base(artifact))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "snapshot file left in scratch")

	target := s.ScratchTarget(sqliteProject(src), t.TempDir())
	opts := backup.RestoreOptions{Target: target}
	require.NoError(t, s.Restore(ctx, artifact, sqliteProject(src), opts))
	assert.Equal(t, 3, countRows(t, target))

	createSQLite(t, target, 7)
	require.NoError(t, s.Restore(ctx, artifact, sqliteProject(src), opts))
	assert.Equal(t, 3, countRows(t, target))
	assert.Equal(t, 3, countRows(t, src))
}

func TestSQLite_RestoreRejectsCorruptSnapshot(t *testing.T) {
	s := NewSQLite(zerolog.Nop())
	dir := t.TempDir()

	artifact := filepath.Join(dir, "bad.sqlite.gz")
	f, err := os.Create(artifact)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte("this is not a database file, just some bytes that look nothing like one"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "live.db")
	createSQLite(t, target, 2)

	err = s.Restore(context.Background(), artifact, sqliteProject(target), backup.RestoreOptions{})
	var rf *backup.RestoreFailure
	require.True(t, errors.As(err, &rf), "got %v", err)
	assert.Equal(t, 2, countRows(t, target))

	matches, err := filepath.Glob(filepath.Join(dir, ".live.db.restore-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLite_BackupMissingDatabase(t *testing.T) {
	s := NewSQLite(zerolog.Nop())
	_, err := s.Backup(context.Background(), sqliteProject(filepath.Join(t.TempDir(), "missing.db")), t.TempDir())
	var bf *backup.BackupFailure
	require.True(t, errors.As(err, &bf))
}

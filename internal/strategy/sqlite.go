package strategy

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

// SQLite snapshots a database file with VACUUM INTO, which produces a
// consistent copy even while the database is being written in WAL mode.
type SQLite struct {
	logger zerolog.Logger
}

// NewSQLite creates a SQLite strategy.
func NewSQLite(logger zerolog.Logger) *SQLite {
	return &SQLite{logger: logger.With().Str("strategy", model.ProjectTypeSQLite).Logger()}
}

func (s *SQLite) Extension() string { return ".sqlite.gz" }

func (s *SQLite) ScratchTarget(project model.Project, dir string) string {
	return filepath.Join(dir, project.ID+".sqlite")
}

func (s *SQLite) Backup(ctx context.Context, project model.Project, scratchDir string) (string, error) {
	if _, err := os.Stat(project.Source); err != nil {
		return "", &backup.BackupFailure{Cause: "stat database file", Err: err}
	}

	snapshot := filepath.Join(scratchDir, project.ID+".snapshot.sqlite")
	defer os.Remove(snapshot)
	if err := vacuumInto(ctx, project.Source, snapshot); err != nil {
		return "", &backup.BackupFailure{Cause: "snapshot database", Err: err}
	}

	out := filepath.Join(scratchDir, project.ID+s.Extension())
	if err := gzipFile(snapshot, out); err != nil {
		os.Remove(out)
		return "", &backup.BackupFailure{Cause: "compress snapshot", Err: err}
	}
	s.logger.Debug().Str("project", project.ID).Str("source", project.Source).Str("artifact", out).Msg("database snapshotted")
	return out, nil
}

func vacuumInto(ctx context.Context, source, dest string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", source))
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping source database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Restore decompresses next to the target, checks the copy and renames it
// over the target in one step.
func (s *SQLite) Restore(ctx context.Context, artifactPath string, project model.Project, opts backup.RestoreOptions) error {
	target := opts.Target
	if target == "" {
		target = project.Source
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &backup.RestoreFailure{Cause: "create target directory", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".restore-")
	if err != nil {
		return &backup.RestoreFailure{Cause: "create staging file", Err: err}
	}
	staging := tmp.Name()
	tmp.Close()
	defer os.Remove(staging)

	if err := gunzipFile(artifactPath, staging); err != nil {
		return &backup.RestoreFailure{Cause: "decompress snapshot", Err: err}
	}
	if err := integrityCheck(ctx, staging); err != nil {
		return &backup.RestoreFailure{Cause: "verify snapshot", Err: err}
	}

	// A stale WAL would be replayed on top of the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
			return &backup.RestoreFailure{Cause: "remove " + suffix + " file", Err: err}
		}
	}
	if err := os.Rename(staging, target); err != nil {
		return &backup.RestoreFailure{Cause: "replace database file", Err: err}
	}
	s.logger.Info().Str("project", project.ID).Str("target", target).Msg("database restored")
	return nil
}

func integrityCheck(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func gzipFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return err
	}
	return zw.Close()
}

func gunzipFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	out, err := os.OpenFile(dst, os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, zr)
	return err
}

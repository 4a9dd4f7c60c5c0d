package strategy

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

// validDBName matches only alphanumeric characters and underscores.
var validDBName = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

// MySQL dumps a database with mysqldump. The dump omits its timestamp and
// drops each table before recreating it, so an unchanged database yields
// the same artifact and restores are repeatable.
type MySQL struct {
	runner       Runner
	defaultsFile string
	logger       zerolog.Logger
}

// NewMySQL creates a MySQL strategy. When defaultsFile is set it is passed
// to the mysql tools as --defaults-extra-file for credentials.
func NewMySQL(logger zerolog.Logger, runner Runner, defaultsFile string) *MySQL {
	return &MySQL{
		runner:       runner,
		defaultsFile: defaultsFile,
		logger:       logger.With().Str("strategy", model.ProjectTypeMySQL).Logger(),
	}
}

func (m *MySQL) Extension() string { return ".sql.gz" }

func (m *MySQL) ScratchTarget(project model.Project, _ string) string {
	const suffix = "_restore_test"
	base := project.Source
	if len(base) > 64-len(suffix) {
		base = base[:64-len(suffix)]
	}
	return base + suffix
}

// CleanupScratch drops the database a test restore was loaded into. It
// refuses to touch the project's own database.
func (m *MySQL) CleanupScratch(ctx context.Context, project model.Project, target string) error {
	if target == project.Source {
		return fmt.Errorf("refusing to drop live database %q", target)
	}
	if !validDBName.MatchString(target) {
		return fmt.Errorf("invalid database name %q", target)
	}
	drop := append(m.baseArgs(), "-e", fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", target))
	if err := m.runner.Run(ctx, "mysql", drop, nil, nil); err != nil {
		return fmt.Errorf("drop database %s: %w", target, err)
	}
	m.logger.Debug().Str("project", project.ID).Str("database", target).Msg("scratch database dropped")
	return nil
}

func (m *MySQL) baseArgs() []string {
	if m.defaultsFile == "" {
		return nil
	}
	return []string{"--defaults-extra-file=" + m.defaultsFile}
}

func (m *MySQL) Backup(ctx context.Context, project model.Project, scratchDir string) (string, error) {
	db := project.Source
	if !validDBName.MatchString(db) {
		return "", &backup.BackupFailure{Cause: fmt.Sprintf("invalid database name %q", db)}
	}

	out := filepath.Join(scratchDir, project.ID+m.Extension())
	if err := m.dump(ctx, db, out); err != nil {
		os.Remove(out)
		return "", &backup.BackupFailure{Cause: "mysqldump " + db, Err: err}
	}
	m.logger.Debug().Str("project", project.ID).Str("database", db).Str("artifact", out).Msg("database dumped")
	return out, nil
}

func (m *MySQL) dump(ctx context.Context, db, out string) (err error) {
	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(f)
	args := append(m.baseArgs(), "--single-transaction", "--skip-dump-date", "--add-drop-table", "--routines", "--triggers", db)
	if err := m.runner.Run(ctx, "mysqldump", args, nil, zw); err != nil {
		return err
	}
	return zw.Close()
}

// Restore streams the dump into the target database, creating it first.
func (m *MySQL) Restore(ctx context.Context, artifactPath string, project model.Project, opts backup.RestoreOptions) error {
	db := opts.Target
	if db == "" {
		db = project.Source
	}
	if !validDBName.MatchString(db) {
		return &backup.RestoreFailure{Cause: fmt.Sprintf("invalid database name %q", db)}
	}

	create := append(m.baseArgs(), "-e", fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", db))
	if err := m.runner.Run(ctx, "mysql", create, nil, nil); err != nil {
		return &backup.RestoreFailure{Cause: "create database " + db, Err: err}
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return &backup.RestoreFailure{Cause: "open dump", Err: err}
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return &backup.RestoreFailure{Cause: "open gzip", Err: err}
	}
	defer zr.Close()

	if err := m.runner.Run(ctx, "mysql", append(m.baseArgs(), db), zr, nil); err != nil {
		return &backup.RestoreFailure{Cause: "import into " + db, Err: err}
	}
	m.logger.Info().Str("project", project.ID).Str("database", db).Msg("database restored")
	return nil
}

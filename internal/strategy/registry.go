// Package strategy implements backup strategies for each project type.
package strategy

import (
	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

// Options configure the strategies.
type Options struct {
	// Runner executes mysqldump and mysql. Defaults to ExecRunner.
	Runner            Runner
	MySQLDefaultsFile string
}

// NewRegistry returns a registry with a strategy for every project type.
func NewRegistry(logger zerolog.Logger, opts Options) *backup.Registry {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	r := backup.NewRegistry()
	r.Register(model.ProjectTypeWeb, NewWeb(logger))
	r.Register(model.ProjectTypeMySQL, NewMySQL(logger, runner, opts.MySQLDefaultsFile))
	r.Register(model.ProjectTypeSQLite, NewSQLite(logger))
	return r
}

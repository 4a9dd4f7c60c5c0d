// Package app assembles the backup services from configuration. It is shared
// by the worker and backupctl so both run the same pipeline.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/compliance"
	"github.com/edvin/hostbackup/internal/config"
	"github.com/edvin/hostbackup/internal/metrics"
	"github.com/edvin/hostbackup/internal/notify"
	"github.com/edvin/hostbackup/internal/storage"
	"github.com/edvin/hostbackup/internal/strategy"
)

// Store is the log store the services share.
type Store interface {
	backup.LogStore
	compliance.Store
}

// Services holds the wired backup, restore and compliance services.
type Services struct {
	Projects     *config.Projects
	Store        Store
	Orchestrator *backup.Orchestrator
	Coordinator  *backup.Coordinator
	Scheduler    *compliance.Scheduler
}

// Options overrides parts of the wiring. Zero values use the production
// implementations.
type Options struct {
	Projects *config.Projects
	Registry *backup.Registry
	Storages backup.StorageProvider
	Metrics  *metrics.Backup
	Notifier notify.Notifier
}

// NewServices wires the services around st. Projects are loaded from
// cfg.ProjectsFile unless opts supplies them.
func NewServices(cfg *config.Config, logger zerolog.Logger, st Store, opts Options) (*Services, error) {
	projects := opts.Projects
	if projects == nil {
		var err error
		projects, err = config.LoadProjects(cfg.ProjectsFile)
		if err != nil {
			return nil, fmt.Errorf("load projects: %w", err)
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = strategy.NewRegistry(logger, strategy.Options{MySQLDefaultsFile: cfg.MySQLDefaultsFile})
	}
	for _, p := range projects.All() {
		if _, err := registry.Get(p); err != nil {
			return nil, err
		}
	}

	storages := opts.Storages
	if storages == nil {
		storages = storage.NewProvider(logger, storage.DefaultBreakerSettings)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewNotifier(cfg, logger)
	}

	deps := backup.Deps{
		Registry:           registry,
		Storages:           storages,
		Store:              st,
		Notifier:           notifier,
		Locker:             backup.NewProjectLocker(),
		Metrics:            opts.Metrics,
		Logger:             logger,
		ScratchDir:         cfg.ScratchDir,
		ReplicationTimeout: cfg.ReplicationTimeout,
	}
	coordinator := backup.NewCoordinator(deps, projects)

	return &Services{
		Projects:     projects,
		Store:        st,
		Orchestrator: backup.NewOrchestrator(deps),
		Coordinator:  coordinator,
		Scheduler: compliance.NewScheduler(compliance.Deps{
			Store:    st,
			Projects: projects,
			Restorer: coordinator,
			Notifier: notifier,
			Metrics:  opts.Metrics,
			Logger:   logger,
		}),
	}, nil
}

// NewNotifier logs every event and also posts it to the configured webhook.
func NewNotifier(cfg *config.Config, logger zerolog.Logger) notify.Notifier {
	log := notify.NewLog(logger)
	if cfg.WebhookURL == "" {
		return log
	}
	return notify.Multi{log, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTemplate)}
}

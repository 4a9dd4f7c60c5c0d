package backup

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/crypto"
	"github.com/edvin/hostbackup/internal/metrics"
	"github.com/edvin/hostbackup/internal/model"
	"github.com/edvin/hostbackup/internal/notify"
	"github.com/edvin/hostbackup/internal/storage"
)

// LogStore is the append-only log sink for backup and restore records.
// ListBackups returns records ordered by creation time, oldest first.
type LogStore interface {
	InsertBackup(ctx context.Context, rec *model.BackupRecord) error
	MarkBackupNotified(ctx context.Context, id string, at time.Time) error
	MarkBackupAutoDeleted(ctx context.Context, id string, at time.Time) error
	ListBackups(ctx context.Context, f model.BackupFilter) ([]model.BackupRecord, error)
	GetBackupByName(ctx context.Context, projectID, name string) (*model.BackupRecord, error)
	InsertRestore(ctx context.Context, rec *model.RestoreRecord) error
}

// StorageProvider resolves the artifact storages of a project.
type StorageProvider interface {
	Local(project model.Project) (storage.Storage, error)
	Offsite(ctx context.Context, project model.Project) (storage.Storage, error)
}

// Deps bundles what the orchestrator and the restore coordinator share.
// Registry, Storages and Store are required. A Locker must be shared
// between an Orchestrator and a Coordinator working on the same projects.
type Deps struct {
	Registry *Registry
	Storages StorageProvider
	Store    LogStore
	Notifier notify.Notifier
	Locker   *ProjectLocker
	Metrics  *metrics.Backup
	Logger   zerolog.Logger

	ScratchDir         string
	ReplicationTimeout time.Duration

	// Now and ResolveKey default to time.Now and crypto.ResolveKey.
	Now        func() time.Time
	ResolveKey func(ref string) ([]byte, error)
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.NewLog(d.Logger)
	}
	if d.Locker == nil {
		d.Locker = NewProjectLocker()
	}
	if d.ScratchDir == "" {
		d.ScratchDir = os.TempDir()
	}
	if d.ReplicationTimeout <= 0 {
		d.ReplicationTimeout = 10 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ResolveKey == nil {
		d.ResolveKey = crypto.ResolveKey
	}
	return d
}

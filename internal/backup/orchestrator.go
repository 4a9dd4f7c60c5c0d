package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/hostbackup/internal/crypto"
	"github.com/edvin/hostbackup/internal/integrity"
	"github.com/edvin/hostbackup/internal/model"
	"github.com/edvin/hostbackup/internal/notify"
	"github.com/edvin/hostbackup/internal/platform"
	"github.com/edvin/hostbackup/internal/storage"
)

// Orchestrator runs one backup attempt per call: produce, verify, store,
// replicate, log, sweep expired backups and notify.
type Orchestrator struct {
	deps     Deps
	verifier *integrity.Verifier
	logger   zerolog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	deps = deps.withDefaults()
	return &Orchestrator{
		deps:     deps,
		verifier: integrity.NewVerifier(),
		logger:   deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run performs a backup of project. Backup and replication failures are
// reported through the returned record's status, never as an error. An
// error is returned only when the project cannot be backed up at all
// (unknown type, cancelled context) or the record could not be persisted.
func (o *Orchestrator) Run(ctx context.Context, project model.Project) (*model.BackupRecord, error) {
	strategy, err := o.deps.Registry.Get(project)
	if err != nil {
		return nil, err
	}

	unlock, err := o.deps.Locker.Lock(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("lock project %s: %w", project.ID, err)
	}
	rec, err := o.runLocked(ctx, project, strategy)
	unlock()
	if err != nil {
		return rec, err
	}

	if rec.Status != model.BackupStatusSuccess {
		o.notify(ctx, rec)
	}
	o.deps.Metrics.ObserveBackup(rec.ProjectID, rec.ProjectType, rec.Status, rec.Duration, rec.SizeBytes, rec.CreatedAt)
	return rec, nil
}

func (o *Orchestrator) runLocked(ctx context.Context, project model.Project, strategy Strategy) (*model.BackupRecord, error) {
	log := o.logger.With().Str("project", project.ID).Str("type", project.Type).Logger()

	start := o.deps.Now()
	rec := &model.BackupRecord{
		ID:             platform.NewID(),
		ProjectID:      project.ID,
		ProjectType:    project.Type,
		Name:           platform.NewBackupName(project.ID, start, strategy.Extension()),
		CreatedAt:      start,
		Encrypted:      project.Encrypted,
		RetentionYears: project.RetentionYears,
	}
	log = log.With().Str("backup", rec.Name).Logger()
	log.Info().Msg("starting backup")

	data, err := o.produce(ctx, project, strategy, rec)
	rec.Duration = o.deps.Now().Sub(start)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return o.persist(ctx, rec, model.BackupStatusFailed, err)
	}

	key := storage.ArtifactKey(project.ID, rec.Name)
	local, err := o.deps.Storages.Local(project)
	if err == nil {
		err = local.Write(ctx, key, data)
	}
	if err != nil {
		err = &BackupFailure{Cause: "write local artifact", Err: err}
		log.Error().Err(err).Msg("backup failed")
		rec.Checksum = ""
		rec.SizeBytes = 0
		return o.persist(ctx, rec, model.BackupStatusFailed, err)
	}
	rec.DiskLocal = true
	rec.LocalPath = local.Location(key)

	offsite, err := o.deps.Storages.Offsite(ctx, project)
	if err == nil {
		defer offsite.Close()
		err = o.replicate(ctx, offsite, key, data)
	} else {
		err = &ReplicationFailure{Destination: project.Offsite.Kind, Err: err}
	}
	status := model.BackupStatusSuccess
	if err != nil {
		log.Warn().Err(err).Msg("offsite replication failed, backup is local only")
		status = model.BackupStatusPartial
	} else {
		rec.DiskOffsite = true
		rec.OffsitePath = offsite.Location(key)
	}

	saved, perr := o.persist(ctx, rec, status, err)
	if perr != nil {
		return saved, perr
	}
	log.Info().
		Str("status", rec.Status).
		Int64("size", rec.SizeBytes).
		Dur("duration", rec.Duration).
		Str("checksum", rec.Checksum).
		Msg("backup recorded")

	o.sweep(ctx, log, project, rec.ID, offsite)
	return saved, nil
}

// produce runs the strategy in a private scratch directory and returns the
// bytes to store. rec receives checksum and size of those bytes.
func (o *Orchestrator) produce(ctx context.Context, project model.Project, strategy Strategy, rec *model.BackupRecord) ([]byte, error) {
	dir, err := os.MkdirTemp(o.deps.ScratchDir, "backup-"+project.ID+"-")
	if err != nil {
		return nil, &BackupFailure{Cause: "create scratch directory", Err: err}
	}
	defer os.RemoveAll(dir)

	artifact, err := strategy.Backup(ctx, project, dir)
	if err != nil {
		var bf *BackupFailure
		if errors.As(err, &bf) {
			return nil, err
		}
		return nil, &BackupFailure{Cause: project.Type + " strategy", Err: err}
	}

	if project.Encrypted {
		artifact, err = o.seal(project, artifact, dir)
		if err != nil {
			return nil, err
		}
	}

	sum, err := o.verifier.Checksum(artifact)
	if err != nil {
		return nil, &BackupFailure{Cause: "checksum artifact", Err: err}
	}
	data, err := os.ReadFile(artifact)
	if err != nil {
		return nil, &BackupFailure{Cause: "read artifact", Err: err}
	}
	rec.Checksum = sum
	rec.SizeBytes = int64(len(data))
	return data, nil
}

func (o *Orchestrator) seal(project model.Project, artifact, dir string) (string, error) {
	key, err := o.deps.ResolveKey(project.KeyRef)
	if err != nil {
		return "", &BackupFailure{Cause: "resolve encryption key", Err: err}
	}
	plain, err := os.ReadFile(artifact)
	if err != nil {
		return "", &BackupFailure{Cause: "read artifact", Err: err}
	}
	sealed, err := crypto.Seal(plain, key)
	if err != nil {
		return "", &BackupFailure{Cause: "encrypt artifact", Err: err}
	}
	out := filepath.Join(dir, filepath.Base(artifact)+".sealed")
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return "", &BackupFailure{Cause: "write sealed artifact", Err: err}
	}
	return out, nil
}

func (o *Orchestrator) replicate(ctx context.Context, offsite storage.Storage, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, o.deps.ReplicationTimeout)
	defer cancel()
	if err := offsite.Write(ctx, key, data); err != nil {
		return &ReplicationFailure{Destination: offsite.Location(key), Err: err}
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, rec *model.BackupRecord, status string, cause error) (*model.BackupRecord, error) {
	rec.Status = status
	if cause != nil {
		msg := cause.Error()
		rec.ErrorMessage = &msg
	}
	if err := o.deps.Store.InsertBackup(ctx, rec); err != nil {
		return rec, fmt.Errorf("insert backup record %s: %w", rec.Name, err)
	}
	return rec, nil
}

// sweep removes artifacts of earlier successful backups whose retention has
// elapsed. It runs under the project lock and after the new record is
// durable. Failures are logged and leave the record for the next run.
func (o *Orchestrator) sweep(ctx context.Context, log zerolog.Logger, project model.Project, currentID string, offsite storage.Storage) {
	prior, err := o.deps.Store.ListBackups(ctx, model.BackupFilter{
		ProjectID: project.ID,
		Status:    model.BackupStatusSuccess,
	})
	if err != nil {
		log.Warn().Err(err).Msg("retention sweep skipped: list backups")
		return
	}

	now := o.deps.Now()
	for _, r := range prior {
		if r.ID == currentID || r.DeletedAt != nil {
			continue
		}
		if !IsAutoDeleteEligible(r, now) {
			continue
		}
		if err := o.deleteArtifacts(ctx, project, r, offsite); err != nil {
			log.Warn().Err(err).Str("expired", r.Name).Msg("retention deletion failed")
			continue
		}
		if err := o.deps.Store.MarkBackupAutoDeleted(ctx, r.ID, now); err != nil {
			log.Warn().Err(err).Str("expired", r.Name).Msg("mark backup deleted")
			continue
		}
		log.Info().
			Str("expired", r.Name).
			Time("created_at", r.CreatedAt).
			Int("retention_years", r.RetentionYears).
			Msg("expired backup deleted")
	}
}

func (o *Orchestrator) deleteArtifacts(ctx context.Context, project model.Project, r model.BackupRecord, offsite storage.Storage) error {
	key := storage.ArtifactKey(project.ID, r.Name)
	if r.DiskOffsite && offsite == nil {
		return fmt.Errorf("delete offsite %s: offsite storage unavailable", key)
	}
	g, gctx := errgroup.WithContext(ctx)

	if r.DiskLocal {
		g.Go(func() error {
			local, err := o.deps.Storages.Local(project)
			if err != nil {
				return err
			}
			if err := local.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete local %s: %w", key, err)
			}
			o.deps.Metrics.ObserveDeletion("local")
			return nil
		})
	}
	if r.DiskOffsite {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, o.deps.ReplicationTimeout)
			defer cancel()
			if err := offsite.Delete(dctx, key); err != nil {
				return fmt.Errorf("delete offsite %s: %w", key, err)
			}
			o.deps.Metrics.ObserveDeletion("offsite")
			return nil
		})
	}
	return g.Wait()
}

// notify sends the alert for a failed or partial run exactly once and marks
// the record. A delivery failure leaves NotificationSent false.
func (o *Orchestrator) notify(ctx context.Context, rec *model.BackupRecord) {
	kind := notify.KindBackupFailed
	if rec.Status == model.BackupStatusPartial {
		kind = notify.KindBackupPartial
	}
	ev := notify.Event{
		Kind:       kind,
		ProjectID:  rec.ProjectID,
		BackupName: rec.Name,
		Status:     rec.Status,
		OccurredAt: o.deps.Now(),
	}
	if rec.ErrorMessage != nil {
		ev.Message = *rec.ErrorMessage
	}

	log := o.logger.With().Str("project", rec.ProjectID).Str("backup", rec.Name).Logger()
	if err := o.deps.Notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("notification failed")
		return
	}
	if err := o.deps.Store.MarkBackupNotified(ctx, rec.ID, ev.OccurredAt); err != nil {
		log.Warn().Err(err).Msg("mark backup notified")
		return
	}
	at := ev.OccurredAt
	rec.NotificationSent = true
	rec.NotifiedAt = &at
}

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/crypto"
	"github.com/edvin/hostbackup/internal/integrity"
	"github.com/edvin/hostbackup/internal/model"
	"github.com/edvin/hostbackup/internal/notify"
	"github.com/edvin/hostbackup/internal/platform"
	"github.com/edvin/hostbackup/internal/storage"
)

var validate = validator.New()

// RestoreRequest asks for one backup to be restored.
type RestoreRequest struct {
	ProjectID   string `json:"project_id" validate:"required"`
	BackupName  string `json:"backup_name" validate:"required"`
	RestoreType string `json:"restore_type" validate:"required,oneof=production test archive"`
	Operator    string `json:"operator" validate:"required"`
	// Reason is mandatory for production restores.
	Reason string `json:"reason,omitempty" validate:"required_if=RestoreType production"`
	// Target overrides the restore destination. Archive restores must name
	// one; test restores get a scratch target when empty.
	Target string `json:"target,omitempty" validate:"required_if=RestoreType archive"`
}

// ProjectLookup resolves project configuration by ID.
type ProjectLookup interface {
	Get(id string) (model.Project, bool)
}

// Coordinator restores backups after verifying their integrity and logs
// every attempt.
type Coordinator struct {
	deps     Deps
	projects ProjectLookup
	verifier *integrity.Verifier
	logger   zerolog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Deps, projects ProjectLookup) *Coordinator {
	deps = deps.withDefaults()
	return &Coordinator{
		deps:     deps,
		projects: projects,
		verifier: integrity.NewVerifier(),
		logger:   deps.Logger.With().Str("component", "restore").Logger(),
	}
}

// Restore performs req. Invalid requests and unknown projects are rejected
// with *ValidationError or *ConfigurationError before any work. Once work
// has begun every attempt is persisted and the record returned; a failed
// attempt also returns its *IntegrityError or *RestoreFailure.
func (c *Coordinator) Restore(ctx context.Context, req RestoreRequest) (*model.RestoreRecord, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	req.Operator = strings.TrimSpace(req.Operator)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	project, ok := c.projects.Get(req.ProjectID)
	if !ok {
		return nil, &ConfigurationError{ProjectID: req.ProjectID, Reason: "unknown project"}
	}
	strategy, err := c.deps.Registry.Get(project)
	if err != nil {
		return nil, err
	}

	unlock, err := c.deps.Locker.Lock(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("lock project %s: %w", project.ID, err)
	}
	rec, restoreErr := c.restoreLocked(ctx, project, strategy, req)
	unlock()

	if err := c.deps.Store.InsertRestore(ctx, rec); err != nil {
		return rec, fmt.Errorf("insert restore record for %s: %w", req.BackupName, err)
	}
	c.deps.Metrics.ObserveRestore(rec.RestoreType, rec.Status)

	if restoreErr != nil {
		c.notifyFailure(ctx, rec)
		return rec, restoreErr
	}
	return rec, nil
}

func (c *Coordinator) restoreLocked(ctx context.Context, project model.Project, strategy Strategy, req RestoreRequest) (*model.RestoreRecord, error) {
	log := c.logger.With().
		Str("project", project.ID).
		Str("backup", req.BackupName).
		Str("restore_type", req.RestoreType).
		Str("operator", req.Operator).
		Logger()

	start := c.deps.Now()
	rec := &model.RestoreRecord{
		ID:          platform.NewID(),
		ProjectID:   project.ID,
		BackupName:  req.BackupName,
		RestoredAt:  start,
		RestoreType: req.RestoreType,
		Operator:    req.Operator,
		Reason:      req.Reason,
	}

	err := c.apply(ctx, project, strategy, req, rec)
	rec.Duration = c.deps.Now().Sub(start)
	if err != nil {
		msg := err.Error()
		rec.Status = model.RestoreStatusFailed
		rec.ErrorMessage = &msg
		log.Error().Err(err).Msg("restore failed")
		return rec, err
	}
	rec.Status = model.RestoreStatusSuccess
	log.Info().Str("source", rec.Source).Dur("duration", rec.Duration).Msg("restore completed")
	return rec, nil
}

func (c *Coordinator) apply(ctx context.Context, project model.Project, strategy Strategy, req RestoreRequest, rec *model.RestoreRecord) error {
	backup, err := c.deps.Store.GetBackupByName(ctx, project.ID, req.BackupName)
	if err != nil {
		return &RestoreFailure{Cause: "locate backup " + req.BackupName, Err: err}
	}
	if backup.DeletedAt != nil {
		return &RestoreFailure{Cause: "backup " + req.BackupName + " was removed by retention"}
	}
	if backup.Checksum == "" {
		return &RestoreFailure{Cause: "backup " + req.BackupName + " has no artifact (status " + backup.Status + ")"}
	}

	dir, err := os.MkdirTemp(c.deps.ScratchDir, "restore-"+project.ID+"-")
	if err != nil {
		return &RestoreFailure{Cause: "create scratch directory", Err: err}
	}
	defer os.RemoveAll(dir)

	data, location, err := c.fetch(ctx, project, *backup, rec)
	if err != nil {
		return err
	}

	artifact := filepath.Join(dir, backup.Name)
	if err := os.WriteFile(artifact, data, 0o600); err != nil {
		return &RestoreFailure{Cause: "stage artifact", Err: err}
	}
	if !c.verifier.Verify(artifact, backup.Checksum) {
		return &IntegrityError{BackupName: backup.Name, Expected: backup.Checksum, Location: location}
	}

	if backup.Encrypted {
		artifact, err = c.unseal(project, artifact, data)
		if err != nil {
			return markVerified(err)
		}
	}

	opts := RestoreOptions{Target: req.Target}
	if opts.Target == "" && req.RestoreType == model.RestoreTypeTest {
		opts.Target = strategy.ScratchTarget(project, dir)
		if cleaner, ok := strategy.(ScratchCleaner); ok {
			defer c.cleanupScratch(ctx, cleaner, project, opts.Target)
		}
	}
	if err := strategy.Restore(ctx, artifact, project, opts); err != nil {
		var rf *RestoreFailure
		if !errors.As(err, &rf) {
			err = &RestoreFailure{Cause: project.Type + " strategy", Err: err}
		}
		return markVerified(err)
	}
	return nil
}

const scratchCleanupTimeout = 2 * time.Minute

// cleanupScratch removes a scratch target. Failures are logged only; the
// restore result stands.
func (c *Coordinator) cleanupScratch(ctx context.Context, cleaner ScratchCleaner, project model.Project, target string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scratchCleanupTimeout)
	defer cancel()
	if err := cleaner.CleanupScratch(cctx, project, target); err != nil {
		c.logger.Warn().Err(err).Str("project", project.ID).Str("target", target).Msg("scratch target cleanup failed")
	}
}

func markVerified(err error) error {
	var rf *RestoreFailure
	if errors.As(err, &rf) {
		rf.Verified = true
	}
	return err
}

// fetch reads the artifact from local storage, falling back to offsite.
func (c *Coordinator) fetch(ctx context.Context, project model.Project, backup model.BackupRecord, rec *model.RestoreRecord) ([]byte, string, error) {
	key := storage.ArtifactKey(project.ID, backup.Name)
	var errs []error

	if backup.DiskLocal {
		local, err := c.deps.Storages.Local(project)
		if err == nil {
			var data []byte
			if data, err = local.Read(ctx, key); err == nil {
				rec.Source = model.SourceLocal
				return data, local.Location(key), nil
			}
		}
		errs = append(errs, fmt.Errorf("local: %w", err))
	}

	if backup.DiskOffsite {
		offsite, err := c.deps.Storages.Offsite(ctx, project)
		if err == nil {
			defer offsite.Close()
			var data []byte
			if data, err = offsite.Read(ctx, key); err == nil {
				rec.Source = model.SourceOffsite
				return data, offsite.Location(key), nil
			}
		}
		errs = append(errs, fmt.Errorf("offsite: %w", err))
	}

	if len(errs) == 0 {
		return nil, "", &RestoreFailure{Cause: "backup " + backup.Name + " has no stored copy"}
	}
	return nil, "", &RestoreFailure{Cause: "artifact unavailable", Err: errors.Join(errs...)}
}

func (c *Coordinator) unseal(project model.Project, artifact string, sealed []byte) (string, error) {
	key, err := c.deps.ResolveKey(project.KeyRef)
	if err != nil {
		return "", &RestoreFailure{Cause: "resolve encryption key", Err: err}
	}
	plain, err := crypto.Open(sealed, key)
	if err != nil {
		return "", &RestoreFailure{Cause: "decrypt artifact", Err: err}
	}
	out := artifact + ".plain"
	if err := os.WriteFile(out, plain, 0o600); err != nil {
		return "", &RestoreFailure{Cause: "stage decrypted artifact", Err: err}
	}
	return out, nil
}

func (c *Coordinator) notifyFailure(ctx context.Context, rec *model.RestoreRecord) {
	ev := notify.Event{
		Kind:       notify.KindRestoreFailed,
		ProjectID:  rec.ProjectID,
		BackupName: rec.BackupName,
		Status:     rec.Status,
		OccurredAt: c.deps.Now(),
	}
	if rec.ErrorMessage != nil {
		ev.Message = *rec.ErrorMessage
	}
	if err := c.deps.Notifier.Notify(ctx, ev); err != nil {
		c.logger.Error().Err(err).Str("project", rec.ProjectID).Msg("notification failed")
	}
}

// LatestRestorable returns the newest backup of the project that still has
// a verifiable artifact.
func (c *Coordinator) LatestRestorable(ctx context.Context, projectID string) (*model.BackupRecord, error) {
	records, err := c.deps.Store.ListBackups(ctx, model.BackupFilter{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("list backups for %s: %w", projectID, err)
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Restorable() {
			r := records[i]
			return &r, nil
		}
	}
	return nil, &RestoreFailure{Cause: "no restorable backup for project " + projectID}
}

func validateRequest(req RestoreRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	reason := "is required"
	switch fe.Tag() {
	case "oneof":
		reason = fmt.Sprintf("must be one of %s, got %q", fe.Param(), fe.Value())
	case "required_if":
		reason = fmt.Sprintf("is required for %s restores", req.RestoreType)
	}
	return &ValidationError{Field: fe.Field(), Reason: reason}
}

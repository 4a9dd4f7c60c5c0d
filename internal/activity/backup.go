package activity

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

// BackupRunner performs one backup attempt.
type BackupRunner interface {
	Run(ctx context.Context, project model.Project) (*model.BackupRecord, error)
}

// Restorer performs one restore attempt.
type Restorer interface {
	Restore(ctx context.Context, req backup.RestoreRequest) (*model.RestoreRecord, error)
}

// ComplianceService is the subset of the compliance scheduler driven from
// workflows.
type ComplianceService interface {
	CurrentQuarter() string
	FindProjectsNeedingTest(ctx context.Context, quarter string) ([]string, error)
	NotifyUncovered(ctx context.Context, quarter string) ([]string, error)
	RunRestoreTest(ctx context.Context, projectID, operator string) (*model.ComplianceTestRecord, error)
}

// ProjectSource lists configured projects.
type ProjectSource interface {
	IDs() []string
	Get(id string) (model.Project, bool)
}

// Backup contains the activities that drive backups, restores and quarterly
// compliance checks.
type Backup struct {
	runner     BackupRunner
	restorer   Restorer
	compliance ComplianceService
	projects   ProjectSource
}

// NewBackup creates a new Backup activity struct.
func NewBackup(runner BackupRunner, restorer Restorer, compliance ComplianceService, projects ProjectSource) *Backup {
	return &Backup{
		runner:     runner,
		restorer:   restorer,
		compliance: compliance,
		projects:   projects,
	}
}

// RestoreResult is returned by RunRestore. Failed restores are reported
// through the record so the workflow still sees what was attempted.
type RestoreResult struct {
	Record model.RestoreRecord `json:"record"`
	Error  string              `json:"error,omitempty"`
}

// ListProjectIDs returns the IDs of every configured project.
func (a *Backup) ListProjectIDs(ctx context.Context) ([]string, error) {
	return a.projects.IDs(), nil
}

// RunBackup backs up one project and returns the persisted record. Failed
// and partial backups come back as records, not activity errors.
func (a *Backup) RunBackup(ctx context.Context, projectID string) (*model.BackupRecord, error) {
	project, ok := a.projects.Get(projectID)
	if !ok {
		return nil, classify(&backup.ConfigurationError{ProjectID: projectID, Reason: "unknown project"})
	}
	activity.GetLogger(ctx).Info("running backup", "project", projectID, "type", project.Type)

	rec, err := a.runner.Run(ctx, project)
	if err != nil {
		return nil, classify(fmt.Errorf("backup %s: %w", projectID, err))
	}
	return rec, nil
}

// RunRestore restores one backup. Rejected requests fail the activity;
// attempted restores return their record along with the failure text.
func (a *Backup) RunRestore(ctx context.Context, req backup.RestoreRequest) (*RestoreResult, error) {
	rec, err := a.restorer.Restore(ctx, req)
	if rec == nil {
		return nil, classify(err)
	}
	res := &RestoreResult{Record: *rec}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

// CurrentQuarter returns the compliance quarter label for now.
func (a *Backup) CurrentQuarter(ctx context.Context) (string, error) {
	return a.compliance.CurrentQuarter(), nil
}

// FindProjectsNeedingTest returns the projects without a passing restore
// test in quarter.
func (a *Backup) FindProjectsNeedingTest(ctx context.Context, quarter string) ([]string, error) {
	ids, err := a.compliance.FindProjectsNeedingTest(ctx, quarter)
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// RunRestoreTest runs a scratch restore of the project's latest backup and
// records it for the current quarter.
func (a *Backup) RunRestoreTest(ctx context.Context, projectID string) (*model.ComplianceTestRecord, error) {
	rec, err := a.compliance.RunRestoreTest(ctx, projectID, "compliance-scheduler")
	if err != nil {
		return nil, classify(fmt.Errorf("restore test %s: %w", projectID, err))
	}
	return rec, nil
}

// NotifyUncovered alerts on every project still needing a test in quarter.
func (a *Backup) NotifyUncovered(ctx context.Context, quarter string) ([]string, error) {
	ids, err := a.compliance.NotifyUncovered(ctx, quarter)
	if err != nil {
		return ids, classify(err)
	}
	return ids, nil
}

// classify marks errors that will not go away on retry as non-retryable.
func classify(err error) error {
	var cfgErr *backup.ConfigurationError
	var valErr *backup.ValidationError
	switch {
	case errors.As(err, &cfgErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), "CONFIGURATION_ERROR", err)
	case errors.As(err, &valErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), "VALIDATION_ERROR", err)
	}
	return err
}

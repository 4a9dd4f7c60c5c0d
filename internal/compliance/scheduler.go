// Package compliance tracks the quarterly restore tests every project must
// pass and alerts on projects that have not been tested yet.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/metrics"
	"github.com/edvin/hostbackup/internal/model"
	"github.com/edvin/hostbackup/internal/notify"
	"github.com/edvin/hostbackup/internal/platform"
)

// Checklist items filled in by RunRestoreTest.
const (
	CheckBackupLocated    = "backup_located"
	CheckChecksumVerified = "checksum_verified"
	CheckRestoreCompleted = "restore_completed"
)

// Store persists compliance test records.
type Store interface {
	InsertComplianceTest(ctx context.Context, rec *model.ComplianceTestRecord) error
	ListComplianceTests(ctx context.Context, f model.ComplianceFilter) ([]model.ComplianceTestRecord, error)
}

// Projects is the set of known projects.
type Projects interface {
	IDs() []string
	Get(id string) (model.Project, bool)
}

// Restorer performs test restores.
type Restorer interface {
	LatestRestorable(ctx context.Context, projectID string) (*model.BackupRecord, error)
	Restore(ctx context.Context, req backup.RestoreRequest) (*model.RestoreRecord, error)
}

// Deps configures a Scheduler. Restorer is only needed by RunRestoreTest.
type Deps struct {
	Store    Store
	Projects Projects
	Restorer Restorer
	Notifier notify.Notifier
	Metrics  *metrics.Backup
	Logger   zerolog.Logger
	// Now defaults to the current time in UTC.
	Now func() time.Time
}

// Scheduler records restore tests and reports quarter coverage.
type Scheduler struct {
	store    Store
	projects Projects
	restorer Restorer
	notifier notify.Notifier
	metrics  *metrics.Backup
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(deps Deps) *Scheduler {
	s := &Scheduler{
		store:    deps.Store,
		projects: deps.Projects,
		restorer: deps.Restorer,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "compliance").Logger(),
		now:      deps.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(deps.Logger)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// CurrentQuarter returns the label of the quarter the scheduler clock is in.
func (s *Scheduler) CurrentQuarter() string {
	return QuarterOf(s.now())
}

// RecordTest stores the outcome of a restore test in the current quarter.
// The checklist is stored as given; it does not affect coverage.
func (s *Scheduler) RecordTest(ctx context.Context, projectID, backupName, result, report string, checklist map[string]bool) (*model.ComplianceTestRecord, error) {
	if _, ok := s.projects.Get(projectID); !ok {
		return nil, &backup.ConfigurationError{ProjectID: projectID, Reason: "unknown project"}
	}
	if result != model.TestResultPass && result != model.TestResultFail {
		return nil, &backup.ValidationError{Field: "Result", Reason: fmt.Sprintf("must be pass or fail, got %q", result)}
	}

	now := s.now()
	rec := &model.ComplianceTestRecord{
		ID:         platform.NewID(),
		ProjectID:  projectID,
		Quarter:    QuarterOf(now),
		TestedAt:   now,
		BackupName: backupName,
		Result:     result,
		Report:     report,
		Checklist:  checklist,
	}
	if err := s.store.InsertComplianceTest(ctx, rec); err != nil {
		return nil, fmt.Errorf("record compliance test for %s: %w", projectID, err)
	}
	s.logger.Info().
		Str("project", projectID).
		Str("quarter", rec.Quarter).
		Str("backup", backupName).
		Str("result", result).
		Bool("all_checked", rec.AllChecked()).
		Msg("restore test recorded")
	return rec, nil
}

// IsQuarterCovered reports whether the project has a passing test in quarter.
func (s *Scheduler) IsQuarterCovered(ctx context.Context, projectID, quarter string) (bool, error) {
	if _, _, err := ParseQuarter(quarter); err != nil {
		return false, &backup.ValidationError{Field: "Quarter", Reason: err.Error()}
	}
	tests, err := s.store.ListComplianceTests(ctx, model.ComplianceFilter{ProjectID: projectID, Quarter: quarter})
	if err != nil {
		return false, fmt.Errorf("list compliance tests for %s: %w", projectID, err)
	}
	for _, t := range tests {
		if t.Result == model.TestResultPass {
			return true, nil
		}
	}
	return false, nil
}

// Authoritative returns the record that decides the project's quarter: the
// first passing test, or the latest failing one when none passed. It
// returns nil when the project was not tested in quarter.
func (s *Scheduler) Authoritative(ctx context.Context, projectID, quarter string) (*model.ComplianceTestRecord, error) {
	tests, err := s.store.ListComplianceTests(ctx, model.ComplianceFilter{ProjectID: projectID, Quarter: quarter})
	if err != nil {
		return nil, fmt.Errorf("list compliance tests for %s: %w", projectID, err)
	}
	var latest *model.ComplianceTestRecord
	for i := range tests {
		if tests[i].Result == model.TestResultPass {
			return &tests[i], nil
		}
		if latest == nil || tests[i].TestedAt.After(latest.TestedAt) {
			latest = &tests[i]
		}
	}
	return latest, nil
}

// FindProjectsNeedingTest returns the sorted IDs of known projects without a
// passing test in quarter.
func (s *Scheduler) FindProjectsNeedingTest(ctx context.Context, quarter string) ([]string, error) {
	if _, _, err := ParseQuarter(quarter); err != nil {
		return nil, &backup.ValidationError{Field: "Quarter", Reason: err.Error()}
	}
	tests, err := s.store.ListComplianceTests(ctx, model.ComplianceFilter{Quarter: quarter})
	if err != nil {
		return nil, fmt.Errorf("list compliance tests for %s: %w", quarter, err)
	}
	covered := make(map[string]bool, len(tests))
	for _, t := range tests {
		if t.Result == model.TestResultPass {
			covered[t.ProjectID] = true
		}
	}

	var needing []string
	for _, id := range s.projects.IDs() {
		if !covered[id] {
			needing = append(needing, id)
		}
	}
	sort.Strings(needing)
	return needing, nil
}

// NotifyUncovered sends a compliance alert for every project still needing
// a test in quarter and returns those projects.
func (s *Scheduler) NotifyUncovered(ctx context.Context, quarter string) ([]string, error) {
	needing, err := s.FindProjectsNeedingTest(ctx, quarter)
	if err != nil {
		return nil, err
	}
	s.metrics.SetUncovered(quarter, len(needing))

	var errs []error
	for _, id := range needing {
		ev := notify.Event{
			Kind:       notify.KindComplianceNeeded,
			ProjectID:  id,
			Quarter:    quarter,
			Message:    fmt.Sprintf("no passing restore test recorded for %s", quarter),
			OccurredAt: s.now(),
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return needing, errors.Join(errs...)
	}
	return needing, nil
}

// RunRestoreTest restores the project's latest restorable backup into a
// scratch target and records the outcome for the current quarter.
func (s *Scheduler) RunRestoreTest(ctx context.Context, projectID, operator string) (*model.ComplianceTestRecord, error) {
	if s.restorer == nil {
		return nil, errors.New("restore tests need a restorer")
	}
	quarter := s.CurrentQuarter()
	checklist := map[string]bool{
		CheckBackupLocated:    false,
		CheckChecksumVerified: false,
		CheckRestoreCompleted: false,
	}
	var report []string

	latest, err := s.restorer.LatestRestorable(ctx, projectID)
	if err != nil {
		report = append(report, "no restorable backup: "+err.Error())
		return s.RecordTest(ctx, projectID, "", model.TestResultFail, strings.Join(report, "\n"), checklist)
	}
	checklist[CheckBackupLocated] = true
	report = append(report, fmt.Sprintf("located %s (created %s, checksum %s)", latest.Name, latest.CreatedAt.Format(time.RFC3339), latest.Checksum))

	restore, err := s.restorer.Restore(ctx, backup.RestoreRequest{
		ProjectID:   projectID,
		BackupName:  latest.Name,
		RestoreType: model.RestoreTypeTest,
		Operator:    operator,
		Reason:      "quarterly restore test " + quarter,
	})
	if restore == nil && err != nil {
		// Rejected before any work; nothing was tested.
		return nil, err
	}

	var integrityErr *backup.IntegrityError
	var restoreErr *backup.RestoreFailure
	switch {
	case err == nil:
		checklist[CheckChecksumVerified] = true
		checklist[CheckRestoreCompleted] = true
		report = append(report, fmt.Sprintf("checksum verified, restored from %s in %s", restore.Source, restore.Duration))
	case errors.As(err, &integrityErr):
		report = append(report, "checksum mismatch: "+err.Error())
	case errors.As(err, &restoreErr):
		checklist[CheckChecksumVerified] = restoreErr.Verified
		report = append(report, "restore failed: "+err.Error())
	default:
		report = append(report, "restore failed: "+err.Error())
	}

	result := model.TestResultFail
	if checklist[CheckRestoreCompleted] {
		result = model.TestResultPass
	}
	return s.RecordTest(ctx, projectID, latest.Name, result, strings.Join(report, "\n"), checklist)
}

package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/hostbackup/internal/activity"
	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/compliance"
	"github.com/edvin/hostbackup/internal/model"
)

// Backup and restore activities run exactly once. Each attempt writes its
// own log record; the next attempt is the next scheduled run.
func backupActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

func queryActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
}

// ProjectBackupWorkflow runs one backup of a project.
func ProjectBackupWorkflow(ctx workflow.Context, projectID string) (*model.BackupRecord, error) {
	ctx = backupActivityCtx(ctx)

	var rec model.BackupRecord
	if err := workflow.ExecuteActivity(ctx, "RunBackup", projectID).Get(ctx, &rec); err != nil {
		return nil, fmt.Errorf("run backup: %w", err)
	}

	workflow.GetLogger(ctx).Info("backup finished",
		"project", projectID, "backup", rec.Name, "status", rec.Status)
	return &rec, nil
}

// BackupAllProjectsWorkflow runs ProjectBackupWorkflow for every configured
// project in turn. A failing project does not stop the others.
func BackupAllProjectsWorkflow(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)

	var ids []string
	err := workflow.ExecuteActivity(queryActivityCtx(ctx), "ListProjectIDs").Get(ctx, &ids)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	var failed []string
	for _, id := range ids {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: "backup-project-" + id,
		})
		var rec model.BackupRecord
		err := workflow.ExecuteChildWorkflow(childCtx, ProjectBackupWorkflow, id).Get(ctx, &rec)
		if err != nil {
			logger.Error("backup workflow failed", "project", id, "error", err)
			failed = append(failed, id)
			continue
		}
		if rec.Status == model.BackupStatusFailed {
			failed = append(failed, id)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("backups failed for %d of %d projects: %v", len(failed), len(ids), failed)
	}
	return nil
}

// RestoreWorkflow runs one restore. A failed attempt is returned as the
// workflow error after its record has been written.
func RestoreWorkflow(ctx workflow.Context, req backup.RestoreRequest) (*model.RestoreRecord, error) {
	ctx = backupActivityCtx(ctx)

	var res activity.RestoreResult
	if err := workflow.ExecuteActivity(ctx, "RunRestore", req).Get(ctx, &res); err != nil {
		return nil, fmt.Errorf("run restore: %w", err)
	}
	if res.Error != "" {
		return &res.Record, temporal.NewNonRetryableApplicationError(res.Error, "RESTORE_FAILED", nil)
	}
	return &res.Record, nil
}

// QuarterlyComplianceWorkflow runs restore tests for every project not yet
// covered in quarter, then alerts on the projects that are still uncovered.
// An empty quarter means the current one. Tests are only run for the
// current quarter; past quarters are reported as they stand.
func QuarterlyComplianceWorkflow(ctx workflow.Context, quarter string) ([]string, error) {
	logger := workflow.GetLogger(ctx)
	qctx := queryActivityCtx(ctx)

	current := compliance.QuarterOf(workflow.Now(ctx).UTC())
	if quarter == "" {
		quarter = current
	}

	var needing []string
	if err := workflow.ExecuteActivity(qctx, "FindProjectsNeedingTest", quarter).Get(ctx, &needing); err != nil {
		return nil, fmt.Errorf("find projects needing test: %w", err)
	}

	if quarter == current {
		tctx := backupActivityCtx(ctx)
		for _, id := range needing {
			var rec model.ComplianceTestRecord
			err := workflow.ExecuteActivity(tctx, "RunRestoreTest", id).Get(ctx, &rec)
			if err != nil {
				logger.Error("restore test failed to run", "project", id, "error", err)
				continue
			}
			logger.Info("restore test recorded", "project", id, "result", rec.Result)
		}
	}

	var uncovered []string
	if err := workflow.ExecuteActivity(qctx, "NotifyUncovered", quarter).Get(ctx, &uncovered); err != nil {
		return uncovered, fmt.Errorf("notify uncovered projects: %w", err)
	}
	logger.Info("compliance check finished", "quarter", quarter, "uncovered", len(uncovered))
	return uncovered, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/hostbackup/internal/model"
)

// Postgres stores logs in PostgreSQL. The schema is created by
// db.RunMigrations.
type Postgres struct {
	db DB
}

// NewPostgres creates a Postgres store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const backupColumns = `id, project_id, project_type, name, created_at, size_bytes, checksum,
	disk_local, disk_offsite, local_path, offsite_path, status, error_message, duration_ms,
	encrypted, retention_years, auto_delete_eligible, deleted_at, notification_sent, notified_at`

func (s *Postgres) InsertBackup(ctx context.Context, rec *model.BackupRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_records (`+backupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		rec.ID, rec.ProjectID, rec.ProjectType, rec.Name, rec.CreatedAt, rec.SizeBytes, rec.Checksum,
		rec.DiskLocal, rec.DiskOffsite, rec.LocalPath, rec.OffsitePath, rec.Status, rec.ErrorMessage,
		rec.Duration.Milliseconds(), rec.Encrypted, rec.RetentionYears, rec.AutoDeleteEligible,
		rec.DeletedAt, rec.NotificationSent, rec.NotifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert backup %s: %w", rec.Name, ErrConflict)
		}
		return fmt.Errorf("insert backup %s: %w", rec.Name, err)
	}
	return nil
}

func (s *Postgres) MarkBackupNotified(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_records SET notification_sent = TRUE, notified_at = COALESCE(notified_at, $2) WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark backup %s notified: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Postgres) MarkBackupAutoDeleted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_records SET auto_delete_eligible = TRUE, deleted_at = COALESCE(deleted_at, $2) WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark backup %s deleted: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListBackups(ctx context.Context, f model.BackupFilter) ([]model.BackupRecord, error) {
	query := `SELECT ` + backupColumns + ` FROM backup_records WHERE TRUE`
	var args []any
	argIdx := 1

	if f.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, f.ProjectID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, *f.Since)
		argIdx++
	}
	if f.Until != nil {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, *f.Until)
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var out []model.BackupRecord
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return out, nil
}

func (s *Postgres) GetBackupByName(ctx context.Context, projectID, name string) (*model.BackupRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+backupColumns+` FROM backup_records WHERE project_id = $1 AND name = $2`,
		projectID, name,
	)
	b, err := scanBackup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup %s/%s: %w", projectID, name, ErrNotFound)
		}
		return nil, fmt.Errorf("get backup %s/%s: %w", projectID, name, err)
	}
	return b, nil
}

func scanBackup(row pgx.Row) (*model.BackupRecord, error) {
	var b model.BackupRecord
	var durationMs int64
	err := row.Scan(&b.ID, &b.ProjectID, &b.ProjectType, &b.Name, &b.CreatedAt, &b.SizeBytes, &b.Checksum,
		&b.DiskLocal, &b.DiskOffsite, &b.LocalPath, &b.OffsitePath, &b.Status, &b.ErrorMessage, &durationMs,
		&b.Encrypted, &b.RetentionYears, &b.AutoDeleteEligible, &b.DeletedAt, &b.NotificationSent, &b.NotifiedAt)
	if err != nil {
		return nil, err
	}
	b.Duration = time.Duration(durationMs) * time.Millisecond
	return &b, nil
}

func (s *Postgres) InsertRestore(ctx context.Context, rec *model.RestoreRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO restore_records (id, project_id, backup_name, restored_at, restore_type, operator, reason, status, error_message, source, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.ProjectID, rec.BackupName, rec.RestoredAt, rec.RestoreType, rec.Operator,
		rec.Reason, rec.Status, rec.ErrorMessage, rec.Source, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert restore for %s: %w", rec.BackupName, err)
	}
	return nil
}

func (s *Postgres) ListRestores(ctx context.Context, f model.RestoreFilter) ([]model.RestoreRecord, error) {
	query := `SELECT id, project_id, backup_name, restored_at, restore_type, operator, reason, status, error_message, source, duration_ms
		FROM restore_records WHERE TRUE`
	var args []any
	argIdx := 1

	if f.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, f.ProjectID)
		argIdx++
	}
	if f.Since != nil {
		query += fmt.Sprintf(` AND restored_at >= $%d`, argIdx)
		args = append(args, *f.Since)
	}
	query += ` ORDER BY restored_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list restores: %w", err)
	}
	defer rows.Close()

	var out []model.RestoreRecord
	for rows.Next() {
		var r model.RestoreRecord
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.BackupName, &r.RestoredAt, &r.RestoreType, &r.Operator,
			&r.Reason, &r.Status, &r.ErrorMessage, &r.Source, &durationMs); err != nil {
			return nil, fmt.Errorf("scan restore: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restores: %w", err)
	}
	return out, nil
}

func (s *Postgres) InsertComplianceTest(ctx context.Context, rec *model.ComplianceTestRecord) error {
	checklist, err := json.Marshal(rec.Checklist)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO compliance_tests (id, project_id, quarter, tested_at, backup_name, result, report, checklist)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.ProjectID, rec.Quarter, rec.TestedAt, rec.BackupName, rec.Result, rec.Report, checklist,
	)
	if err != nil {
		return fmt.Errorf("insert compliance test for %s: %w", rec.ProjectID, err)
	}
	return nil
}

func (s *Postgres) ListComplianceTests(ctx context.Context, f model.ComplianceFilter) ([]model.ComplianceTestRecord, error) {
	query := `SELECT id, project_id, quarter, tested_at, backup_name, result, report, checklist
		FROM compliance_tests WHERE TRUE`
	var args []any
	argIdx := 1

	if f.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, f.ProjectID)
		argIdx++
	}
	if f.Quarter != "" {
		query += fmt.Sprintf(` AND quarter = $%d`, argIdx)
		args = append(args, f.Quarter)
	}
	query += ` ORDER BY tested_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance tests: %w", err)
	}
	defer rows.Close()

	var out []model.ComplianceTestRecord
	for rows.Next() {
		var c model.ComplianceTestRecord
		var checklist []byte
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Quarter, &c.TestedAt, &c.BackupName,
			&c.Result, &c.Report, &checklist); err != nil {
			return nil, fmt.Errorf("scan compliance test: %w", err)
		}
		if len(checklist) > 0 {
			if err := json.Unmarshal(checklist, &c.Checklist); err != nil {
				return nil, fmt.Errorf("unmarshal checklist for %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance tests: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hostbackup/internal/model"
)

func TestPostgres_InsertBackup_Success(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	rec := &model.BackupRecord{
		ID:        "b-1",
		ProjectID: "shop",
		Name:      "shop-20251014T001500Z-abcdef.tar.gz",
		Status:    model.BackupStatusSuccess,
		Duration:  1500 * time.Millisecond,
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 20 && args[0] == "b-1" && args[13] == int64(1500)
	})).Return(pgconn.CommandTag{}, nil)

	require.NoError(t, s.InsertBackup(ctx, rec))
	db.AssertExpectations(t)
}

func TestPostgres_InsertBackup_Duplicate(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := s.InsertBackup(ctx, &model.BackupRecord{ID: "b-1", Name: "dup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgres_MarkBackupNotified_Missing(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := s.MarkBackupNotified(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_MarkBackupAutoDeleted_Success(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()
	at := time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC)

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"b-1", at}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, s.MarkBackupAutoDeleted(ctx, "b-1", at))
	db.AssertExpectations(t)
}

func TestPostgres_GetBackupByName_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	row := stubRow{err: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"shop", "nope"}).Return(row)

	_, err := s.GetBackupByName(ctx, "shop", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_GetBackupByName_Success(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond)

	row := stubRow{cols: columns{
		0:  "b-1",
		1:  "shop",
		2:  model.ProjectTypeWeb,
		3:  "shop-x.tar.gz",
		4:  now,
		5:  int64(2048),
		6:  "sha256:abc",
		7:  true,
		11: model.BackupStatusPartial,
		13: int64(2500),
		14: true,
		15: 2,
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"shop", "shop-x.tar.gz"}).Return(row)

	b, err := s.GetBackupByName(ctx, "shop", "shop-x.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "b-1", b.ID)
	assert.Equal(t, int64(2048), b.SizeBytes)
	assert.Equal(t, model.BackupStatusPartial, b.Status)
	assert.Equal(t, 2500*time.Millisecond, b.Duration)
	assert.Equal(t, 2, b.RetentionYears)
	assert.True(t, b.Restorable())
}

func TestPostgres_ListBackups_BuildsFilter(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "project_id = $1", "status = $2", "created_at >= $3", "ORDER BY created_at")
	}), []any{"shop", model.BackupStatusSuccess, since}).Return(rowsOf(), nil)

	out, err := s.ListBackups(ctx, model.BackupFilter{ProjectID: "shop", Status: model.BackupStatusSuccess, Since: &since})
	require.NoError(t, err)
	assert.Empty(t, out)
	db.AssertExpectations(t)
}

func TestPostgres_ListBackups_QueryError(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("db down"))

	_, err := s.ListBackups(ctx, model.BackupFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list backups")
}

func TestPostgres_ListComplianceTests_DecodesChecklist(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	rows := rowsOf(columns{
		0: "c-1",
		1: "shop",
		2: "2025-Q4",
		5: model.TestResultPass,
		7: []byte(`{"backup_located":true,"checksum_verified":true}`),
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"shop", "2025-Q4"}).Return(rows, nil)

	out, err := s.ListComplianceTests(ctx, model.ComplianceFilter{ProjectID: "shop", Quarter: "2025-Q4"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]bool{"backup_located": true, "checksum_verified": true}, out[0].Checklist)
}

func TestPostgres_InsertRestore_Error(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("db error"))

	err := s.InsertRestore(ctx, &model.RestoreRecord{BackupName: "shop-x.tar.gz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert restore for shop-x.tar.gz")
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

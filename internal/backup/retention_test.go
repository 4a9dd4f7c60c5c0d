package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/hostbackup/internal/model"
)

func TestIsAutoDeleteEligible(t *testing.T) {
	created := time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC)
	now := created.AddDate(2, 0, 1)

	tests := []struct {
		name string
		rec  model.BackupRecord
		now  time.Time
		want bool
	}{
		{
			name: "encrypted past retention",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: 2, CreatedAt: created},
			now:  now,
			want: true,
		},
		{
			name: "encrypted exactly at retention",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: 2, CreatedAt: created},
			now:  created.AddDate(2, 0, 0),
			want: true,
		},
		{
			name: "encrypted one day short",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: 2, CreatedAt: created},
			now:  created.AddDate(1, 0, 364),
			want: false,
		},
		{
			name: "unencrypted never",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: false, RetentionYears: 2, CreatedAt: created},
			now:  created.AddDate(10, 0, 0),
			want: false,
		},
		{
			name: "failed never",
			rec:  model.BackupRecord{Status: model.BackupStatusFailed, Encrypted: true, RetentionYears: 2, CreatedAt: created},
			now:  now,
			want: false,
		},
		{
			name: "partial never",
			rec:  model.BackupRecord{Status: model.BackupStatusPartial, Encrypted: true, RetentionYears: 2, CreatedAt: created},
			now:  now,
			want: false,
		},
		{
			name: "zero retention never",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: 0, CreatedAt: created},
			now:  now,
			want: false,
		},
		{
			name: "negative retention never",
			rec:  model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: -1, CreatedAt: created},
			now:  now,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAutoDeleteEligible(tt.rec, tt.now))
		})
	}
}

func TestIsAutoDeleteEligible_LeapDay(t *testing.T) {
	created := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	rec := model.BackupRecord{Status: model.BackupStatusSuccess, Encrypted: true, RetentionYears: 1, CreatedAt: created}

	// AddDate normalizes 2025-02-29 to 2025-03-01.
	assert.False(t, IsAutoDeleteEligible(rec, time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)))
	assert.True(t, IsAutoDeleteEligible(rec, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

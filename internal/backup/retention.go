package backup

import (
	"time"

	"github.com/edvin/hostbackup/internal/model"
)

// IsAutoDeleteEligible reports whether a backup may be deleted without
// manual review. Only successful, encrypted backups that have reached their
// retention period qualify; unencrypted artifacts may hold unmasked data and
// always need an auditable manual deletion. A non-positive retention period
// never qualifies.
func IsAutoDeleteEligible(rec model.BackupRecord, now time.Time) bool {
	if rec.Status != model.BackupStatusSuccess || !rec.Encrypted {
		return false
	}
	if rec.RetentionYears <= 0 {
		return false
	}
	expiry := rec.CreatedAt.AddDate(rec.RetentionYears, 0, 0)
	return !now.Before(expiry)
}

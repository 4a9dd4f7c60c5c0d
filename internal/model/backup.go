package model

import "time"

// BackupRecord is one completed or failed backup attempt. Records are
// append-only; only the notification and retention fields change after
// the initial write.
type BackupRecord struct {
	ID                 string        `json:"id"`
	ProjectID          string        `json:"project_id"`
	ProjectType        string        `json:"project_type"`
	Name               string        `json:"name"`
	CreatedAt          time.Time     `json:"created_at"`
	SizeBytes          int64         `json:"size_bytes"`
	Checksum           string        `json:"checksum,omitempty"`
	DiskLocal          bool          `json:"disk_local"`
	DiskOffsite        bool          `json:"disk_offsite"`
	LocalPath          string        `json:"local_path,omitempty"`
	OffsitePath        string        `json:"offsite_path,omitempty"`
	Status             string        `json:"status"`
	ErrorMessage       *string       `json:"error_message,omitempty"`
	Duration           time.Duration `json:"duration"`
	Encrypted          bool          `json:"encrypted"`
	RetentionYears     int           `json:"retention_years"`
	AutoDeleteEligible bool          `json:"auto_delete_eligible"`
	DeletedAt          *time.Time    `json:"deleted_at,omitempty"`
	NotificationSent   bool          `json:"notification_sent"`
	NotifiedAt         *time.Time    `json:"notified_at,omitempty"`
}

// Restorable reports whether the record references an artifact that was
// stored somewhere and has not been swept by retention.
func (r BackupRecord) Restorable() bool {
	if r.AutoDeleteEligible || r.DeletedAt != nil {
		return false
	}
	return (r.Status == BackupStatusSuccess || r.Status == BackupStatusPartial) && r.Checksum != ""
}

// RestoreRecord is one restore attempt. It is never mutated after creation.
type RestoreRecord struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"project_id"`
	BackupName   string        `json:"backup_name"`
	RestoredAt   time.Time     `json:"restored_at"`
	RestoreType  string        `json:"restore_type"`
	Operator     string        `json:"operator"`
	Reason       string        `json:"reason,omitempty"`
	Status       string        `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	Source       string        `json:"source,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ComplianceTestRecord is one quarterly restore-test verification.
type ComplianceTestRecord struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	Quarter    string          `json:"quarter"`
	TestedAt   time.Time       `json:"tested_at"`
	BackupName string          `json:"backup_name"`
	Result     string          `json:"result"`
	Report     string          `json:"report"`
	Checklist  map[string]bool `json:"checklist,omitempty"`
}

// AllChecked is true only when a checklist is present and every item is true.
func (r ComplianceTestRecord) AllChecked() bool {
	if len(r.Checklist) == 0 {
		return false
	}
	for _, ok := range r.Checklist {
		if !ok {
			return false
		}
	}
	return true
}

// BackupFilter selects backup records. Zero values match everything.
type BackupFilter struct {
	ProjectID string
	Status    string
	Since     *time.Time
	Until     *time.Time
}

// RestoreFilter selects restore records.
type RestoreFilter struct {
	ProjectID string
	Since     *time.Time
}

// ComplianceFilter selects compliance test records.
type ComplianceFilter struct {
	ProjectID string
	Quarter   string
}

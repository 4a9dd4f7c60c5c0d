package model

// Backup status constants.
const (
	BackupStatusSuccess = "success"
	BackupStatusFailed  = "failed"
	BackupStatusPartial = "partial"
)

// Restore status constants.
const (
	RestoreStatusSuccess = "success"
	RestoreStatusFailed  = "failed"
)

// Restore types.
const (
	RestoreTypeProduction = "production"
	RestoreTypeTest       = "test"
	RestoreTypeArchive    = "archive"
)

// Restore artifact sources.
const (
	SourceLocal   = "local"
	SourceOffsite = "offsite"
)

// Compliance test results.
const (
	TestResultPass = "pass"
	TestResultFail = "fail"
)

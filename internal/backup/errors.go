package backup

import "fmt"

// ConfigurationError reports a project that cannot be processed as configured,
// such as an unknown project type. It is raised before any I/O.
type ConfigurationError struct {
	ProjectID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for project %s: %s", e.ProjectID, e.Reason)
}

// BackupFailure means a strategy could not produce an artifact.
type BackupFailure struct {
	Cause string
	Err   error
}

func (e *BackupFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backup failed: %s: %v", e.Cause, e.Err)
	}
	return "backup failed: " + e.Cause
}

func (e *BackupFailure) Unwrap() error { return e.Err }

// ReplicationFailure means the offsite copy did not complete. It downgrades
// a run to partial and is never fatal.
type ReplicationFailure struct {
	Destination string
	Err         error
}

func (e *ReplicationFailure) Error() string {
	return fmt.Sprintf("replication to %s failed: %v", e.Destination, e.Err)
}

func (e *ReplicationFailure) Unwrap() error { return e.Err }

// IntegrityError means an artifact's digest does not match its record.
type IntegrityError struct {
	BackupName string
	Expected   string
	Location   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s at %s: digest does not match %s", e.BackupName, e.Location, e.Expected)
}

// RestoreFailure means a strategy could not apply an artifact, or the
// artifact could not be obtained. Verified is set when the artifact had
// already passed its checksum verification.
type RestoreFailure struct {
	Cause    string
	Err      error
	Verified bool
}

func (e *RestoreFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("restore failed: %s: %v", e.Cause, e.Err)
	}
	return "restore failed: " + e.Cause
}

func (e *RestoreFailure) Unwrap() error { return e.Err }

// ValidationError rejects a request before any work is done.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

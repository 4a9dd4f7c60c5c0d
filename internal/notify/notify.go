// Package notify delivers backup, restore and compliance alerts to
// operators. The orchestration core only decides when an event fires;
// implementations here decide how it is delivered.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Event kinds.
const (
	KindBackupFailed     = "backup.failed"
	KindBackupPartial    = "backup.partial"
	KindRestoreFailed    = "restore.failed"
	KindComplianceNeeded = "compliance.needed"
)

// Event is a single notification.
type Event struct {
	Kind       string    `json:"kind"`
	ProjectID  string    `json:"project_id"`
	BackupName string    `json:"backup_name,omitempty"`
	Quarter    string    `json:"quarter,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Log writes events to a zerolog.Logger at warn level.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Notify(_ context.Context, ev Event) error {
	l.logger.Warn().
		Str("kind", ev.Kind).
		Str("project", ev.ProjectID).
		Str("backup", ev.BackupName).
		Str("quarter", ev.Quarter).
		Str("status", ev.Status).
		Time("occurred_at", ev.OccurredAt).
		Msg(ev.Message)
	return nil
}

// Multi fans an event out to several notifiers. Every notifier is tried;
// the returned error joins all failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edvin/hostbackup/internal/model"
)

// Memory keeps all logs in process memory. Nothing survives a restart, so it
// only backs tests and callers embedding the services in-process.
type Memory struct {
	mu         sync.RWMutex
	backups    []model.BackupRecord
	restores   []model.RestoreRecord
	compliance []model.ComplianceTestRecord
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InsertBackup(_ context.Context, rec *model.BackupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.backups {
		if b.ID == rec.ID || (b.ProjectID == rec.ProjectID && b.Name == rec.Name) {
			return fmt.Errorf("insert backup %s: %w", rec.Name, ErrConflict)
		}
	}
	m.backups = append(m.backups, *rec)
	sort.SliceStable(m.backups, func(i, j int) bool {
		return m.backups[i].CreatedAt.Before(m.backups[j].CreatedAt)
	})
	return nil
}

func (m *Memory) MarkBackupNotified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.findBackup(id)
	if err != nil {
		return err
	}
	if b.NotificationSent {
		return nil
	}
	b.NotificationSent = true
	b.NotifiedAt = &at
	return nil
}

func (m *Memory) MarkBackupAutoDeleted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.findBackup(id)
	if err != nil {
		return err
	}
	b.AutoDeleteEligible = true
	if b.DeletedAt == nil {
		b.DeletedAt = &at
	}
	return nil
}

func (m *Memory) findBackup(id string) (*model.BackupRecord, error) {
	for i := range m.backups {
		if m.backups[i].ID == id {
			return &m.backups[i], nil
		}
	}
	return nil, fmt.Errorf("backup %s: %w", id, ErrNotFound)
}

func (m *Memory) ListBackups(_ context.Context, f model.BackupFilter) ([]model.BackupRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.BackupRecord
	for _, b := range m.backups {
		if f.ProjectID != "" && b.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Since != nil && b.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && !b.CreatedAt.Before(*f.Until) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *Memory) GetBackupByName(_ context.Context, projectID, name string) (*model.BackupRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.backups {
		if b.ProjectID == projectID && b.Name == name {
			rec := b
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("backup %s/%s: %w", projectID, name, ErrNotFound)
}

func (m *Memory) InsertRestore(_ context.Context, rec *model.RestoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores = append(m.restores, *rec)
	return nil
}

func (m *Memory) ListRestores(_ context.Context, f model.RestoreFilter) ([]model.RestoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RestoreRecord
	for _, r := range m.restores {
		if f.ProjectID != "" && r.ProjectID != f.ProjectID {
			continue
		}
		if f.Since != nil && r.RestoredAt.Before(*f.Since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) InsertComplianceTest(_ context.Context, rec *model.ComplianceTestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if rec.Checklist != nil {
		cp.Checklist = make(map[string]bool, len(rec.Checklist))
		for k, v := range rec.Checklist {
			cp.Checklist[k] = v
		}
	}
	m.compliance = append(m.compliance, cp)
	return nil
}

func (m *Memory) ListComplianceTests(_ context.Context, f model.ComplianceFilter) ([]model.ComplianceTestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ComplianceTestRecord
	for _, c := range m.compliance {
		if f.ProjectID != "" && c.ProjectID != f.ProjectID {
			continue
		}
		if f.Quarter != "" && c.Quarter != f.Quarter {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

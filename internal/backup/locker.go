package backup

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ProjectLocker serializes work per project. Backups, restores and retention
// deletion of the same project share one lock, so none of them can observe
// another's half-written or half-deleted artifacts.
type ProjectLocker struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewProjectLocker creates a ProjectLocker.
func NewProjectLocker() *ProjectLocker {
	return &ProjectLocker{sems: make(map[string]*semaphore.Weighted)}
}

// Lock blocks until the project's lock is held or ctx ends. The returned
// function releases the lock.
func (l *ProjectLocker) Lock(ctx context.Context, projectID string) (func(), error) {
	sem := l.get(projectID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// TryLock acquires the project's lock without blocking.
func (l *ProjectLocker) TryLock(projectID string) (func(), bool) {
	sem := l.get(projectID)
	if !sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, true
}

func (l *ProjectLocker) get(projectID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[projectID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[projectID] = sem
	}
	return sem
}

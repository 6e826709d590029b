package state

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/graphsync/internal/core/model"
)

type windowEntry struct {
	count   int
	resetAt time.Time
}

type jobEntry struct {
	job       model.SyncJob
	expiresAt time.Time
}

// Memory is a single-process Store guarded by one mutex. Expired entries are dropped
// lazily on access or explicitly through Sweep.
type Memory struct {
	mu      sync.Mutex
	windows map[string]windowEntry
	jobs    map[string]jobEntry

	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]windowEntry),
		jobs:    make(map[string]jobEntry),
		Now:     time.Now,
	}
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	entry, ok := m.windows[key]
	if !ok || now.After(entry.resetAt) {
		entry = windowEntry{count: 1, resetAt: now.Add(window)}
	} else {
		entry.count++
	}
	m.windows[key] = entry
	return entry.count, nil
}

func (m *Memory) GetJob(_ context.Context, key string) (model.SyncJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[key]
	if !ok {
		return model.SyncJob{}, false, nil
	}
	if !m.Now().Before(entry.expiresAt) {
		delete(m.jobs, key)
		return model.SyncJob{}, false, nil
	}
	return entry.job, true, nil
}

func (m *Memory) PutJob(_ context.Context, job model.SyncJob, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.SyncKey] = jobEntry{job: job, expiresAt: m.Now().Add(ttl)}
	return nil
}

func (m *Memory) PutJobIfIdle(_ context.Context, job model.SyncJob, window, ttl time.Duration) (model.SyncJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if entry, ok := m.jobs[job.SyncKey]; ok && now.Before(entry.expiresAt) &&
		job.StartedAt.Sub(entry.job.StartedAt) < window {
		return entry.job, false, nil
	}
	m.jobs[job.SyncKey] = jobEntry{job: job, expiresAt: now.Add(ttl)}
	return model.SyncJob{}, true, nil
}

func (m *Memory) DeleteJob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, key)
	return nil
}

func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	removed := 0
	for key, entry := range m.jobs {
		if !now.Before(entry.expiresAt) {
			delete(m.jobs, key)
			removed++
		}
	}
	for key, entry := range m.windows {
		if now.After(entry.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }

// Package state owns the shared tables behind webhook admission and sync tracking.
// Memory keeps them in-process; Redis shares them across instances.
package state

import (
	"context"
	"time"

	"github.com/agenthands/graphsync/internal/core/model"
)

// WindowStore counts arrivals per key in fixed windows.
type WindowStore interface {
	// Hit records one arrival and returns the count inside the current window, including
	// this one. The first arrival after the window expired starts a new window at 1.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
}

// JobStore tracks in-flight sync jobs by sync key.
type JobStore interface {
	GetJob(ctx context.Context, key string) (model.SyncJob, bool, error)
	PutJob(ctx context.Context, job model.SyncJob, ttl time.Duration) error
	// PutJobIfIdle stores job unless the key holds a job that started less than window
	// before it. The check and the write are one atomic step; on conflict the existing job
	// is returned with ok false.
	PutJobIfIdle(ctx context.Context, job model.SyncJob, window, ttl time.Duration) (existing model.SyncJob, ok bool, err error)
	DeleteJob(ctx context.Context, key string) error
	// Sweep drops expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Store is both tables behind one backend.
type Store interface {
	WindowStore
	JobStore
	Close() error
}

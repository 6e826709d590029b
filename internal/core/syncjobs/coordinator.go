// Package syncjobs prevents overlapping provider syncs for the same connection.
//
// A job is active from Trigger until Complete, its TTL, or a newer Trigger after the
// conflict window. Tracking is best-effort: with the memory store it is per instance.
package syncjobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
	"github.com/agenthands/graphsync/internal/state"
)

const (
	DefaultConflictWindow = 5 * time.Minute
	DefaultJobTTL         = 10 * time.Minute
)

type Coordinator struct {
	jobs           state.JobStore
	conflictWindow time.Duration
	ttl            time.Duration
	log            *logger.Logger
	metrics        *metrics.Metrics

	Now   func() time.Time
	NewID func(now time.Time) string
}

func NewCoordinator(jobs state.JobStore, conflictWindow, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if conflictWindow <= 0 {
		conflictWindow = DefaultConflictWindow
	}
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		jobs:           jobs,
		conflictWindow: conflictWindow,
		ttl:            ttl,
		log:            log.With("component", "syncjobs"),
		metrics:        m,
		Now:            time.Now,
		NewID:          newSyncID,
	}
}

func newSyncID(now time.Time) string {
	return fmt.Sprintf("sync_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func SyncKey(provider, connectionID string) string {
	return provider + "_" + connectionID
}

// Check returns a ConflictError when a job for the key started inside the conflict window.
func (c *Coordinator) Check(ctx context.Context, provider, connectionID string) error {
	key := SyncKey(provider, connectionID)
	job, ok, err := c.jobs.GetJob(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup sync job %s: %w", key, err)
	}
	if ok && c.Now().Sub(job.StartedAt) < c.conflictWindow {
		c.metrics.SyncConflicts.Inc()
		return &apperr.ConflictError{Key: key, ExistingID: job.SyncID}
	}
	return nil
}

// Trigger starts a new job unless a recent one is still active. The conflict check and the
// write happen in one store call, so concurrent triggers for a key start at most one job.
func (c *Coordinator) Trigger(ctx context.Context, provider, connectionID string) (model.SyncJob, error) {
	now := c.Now().UTC()
	job := model.SyncJob{
		SyncKey:   SyncKey(provider, connectionID),
		SyncID:    c.NewID(now),
		StartedAt: now,
	}
	existing, ok, err := c.jobs.PutJobIfIdle(ctx, job, c.conflictWindow, c.ttl)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("store sync job %s: %w", job.SyncKey, err)
	}
	if !ok {
		c.metrics.SyncConflicts.Inc()
		return model.SyncJob{}, &apperr.ConflictError{Key: job.SyncKey, ExistingID: existing.SyncID}
	}
	c.log.Info("Sync job started", "syncKey", job.SyncKey, "syncId", job.SyncID)
	return job, nil
}

func (c *Coordinator) Complete(ctx context.Context, provider, connectionID string) error {
	return c.jobs.DeleteJob(ctx, SyncKey(provider, connectionID))
}

func (c *Coordinator) Active(ctx context.Context, provider, connectionID string) (model.SyncJob, bool, error) {
	return c.jobs.GetJob(ctx, SyncKey(provider, connectionID))
}

// Sweep drops expired jobs. Callers run it on their own schedule.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	n, err := c.jobs.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug("Swept expired sync state", "removed", n)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.log.Warn("Sync sweep failed", "error", err)
			}
		}
	}
}

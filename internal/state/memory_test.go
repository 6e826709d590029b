package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphsync/internal/core/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.Now = clock.Now
	return m, clock
}

func TestMemoryHit_WindowResetsLazily(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := m.Hit(ctx, "conn", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	// Exactly at the boundary the window is still open.
	clock.Advance(time.Minute)
	n, _ := m.Hit(ctx, "conn", time.Minute)
	assert.Equal(t, 4, n)

	clock.Advance(time.Millisecond)
	n, _ = m.Hit(ctx, "conn", time.Minute)
	assert.Equal(t, 1, n)

	n, _ = m.Hit(ctx, "other", time.Minute)
	assert.Equal(t, 1, n)
}

func TestMemoryJobs_ExpireAndSweep(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()
	job := model.SyncJob{SyncKey: "github_c1", SyncID: "sync_1", StartedAt: clock.t}

	require.NoError(t, m.PutJob(ctx, job, 10*time.Minute))
	got, ok, err := m.GetJob(ctx, "github_c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sync_1", got.SyncID)

	clock.Advance(10 * time.Minute)
	_, ok, _ = m.GetJob(ctx, "github_c1")
	assert.False(t, ok)

	require.NoError(t, m.PutJob(ctx, job, time.Minute))
	_, _ = m.Hit(ctx, "conn", time.Second)
	clock.Advance(2 * time.Minute)
	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestMemoryDeleteJob(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.PutJob(ctx, model.SyncJob{SyncKey: "k", SyncID: "s"}, time.Hour))
	require.NoError(t, m.DeleteJob(ctx, "k"))
	_, ok, _ := m.GetJob(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryPutJobIfIdle(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()
	first := model.SyncJob{SyncKey: "github_c1", SyncID: "sync_1", StartedAt: clock.t}

	_, ok, err := m.PutJobIfIdle(ctx, first, 5*time.Minute, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(4 * time.Minute)
	existing, ok, err := m.PutJobIfIdle(ctx, model.SyncJob{SyncKey: "github_c1", SyncID: "sync_2", StartedAt: clock.t}, 5*time.Minute, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "sync_1", existing.SyncID)

	clock.Advance(time.Minute)
	_, ok, err = m.PutJobIfIdle(ctx, model.SyncJob{SyncKey: "github_c1", SyncID: "sync_3", StartedAt: clock.t}, 5*time.Minute, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _, _ := m.GetJob(ctx, "github_c1")
	assert.Equal(t, "sync_3", got.SyncID)
}

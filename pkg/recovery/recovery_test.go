package recovery_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/lifecycle/lifecycletest"
	"github.com/marmos91/tabletd/pkg/recovery"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

func TestRecoverAll_ResumesEveryInterruptedTablet(t *testing.T) {
	env := lifecycletest.New(t)
	setup := env.Controller(nil)

	crashes := map[string]struct {
		at     checkpoint.Checkpoint
		target tablet.DataState
	}{
		"started-tomb": {checkpoint.TransitionStarted, tablet.StateTombstoned},
		"blocks-tomb":  {checkpoint.BlocksDeleted, tablet.StateTombstoned},
		"wal-del":      {checkpoint.WALDeleted, tablet.StateDeleted},
		"cmeta-del":    {checkpoint.CmetaDeleted, tablet.StateDeleted},
		"commit-del":   {checkpoint.Committed, tablet.StateDeleted},
	}
	for id, crash := range crashes {
		env.CreateReady(setup, id, 3, 2)
		c := env.Controller(checkpoint.CrashAt(crash.at, checkpoint.ExitGoroutine, checkpoint.ForTablet(id)))
		err := c.DeleteTablet(context.Background(), id, crash.target)
		require.Equal(t, tablet.ErrAborted, tablet.CodeOf(err), "%s: err = %v", id, err)
	}
	env.CreateReady(setup, "healthy", 2, 1)

	env.Restart()
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec)
	stats, err := recovery.New(env.Meta, c, recovery.Options{Parallelism: 2}).RecoverAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(crashes)+1, stats.Scanned)
	assert.Equal(t, 4, stats.Resumed, "the committed tablet has nothing pending")
	assert.Empty(t, stats.Failures)
	assert.Empty(t, stats.Violations)

	for id, crash := range crashes {
		a := env.Inspect(id)
		assert.Equal(t, crash.target, a.State, id)
		assert.Equal(t, tablet.StateUnknown, a.Pending, id)
		assert.Zero(t, a.Blocks, id)
		assert.False(t, a.HasWALDir, id)
		assert.Equal(t, crash.target == tablet.StateTombstoned, a.HasConsensusMeta, id)
	}
	assert.Equal(t, tablet.StateReady, env.Inspect("healthy").State)
	assert.Empty(t, rec.Checkpoints("healthy"))

	// Exactly one pass: a second recovery resumes nothing.
	rec.Reset()
	stats, err = recovery.New(env.Meta, c, recovery.Options{}).RecoverAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Resumed)
	assert.Empty(t, rec.Hits())
}

func TestRecoverAll_ReportsViolations(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	l, err := env.WAL.Open("t1")
	require.NoError(t, err)
	require.NoError(t, l.Append(wal.Entry{OpID: tablet.OpID{Term: 1, Index: 1}}))
	require.NoError(t, l.Close())

	stats, err := recovery.New(env.Meta, c, recovery.Options{}).RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Violations, 1)
	assert.Equal(t, "t1", stats.Violations[0].TabletID)
	assert.True(t, tablet.IsIllegalState(stats.Violations[0].Err))
	assert.False(t, stats.Failed())
}

func TestRecoverAll_PurgesDeleted(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "gone", 1, 1)
	env.CreateReady(c, "tomb", 1, 1)
	require.NoError(t, c.DeleteTablet(ctx, "gone", tablet.StateDeleted))
	require.NoError(t, c.DeleteTablet(ctx, "tomb", tablet.StateTombstoned))

	stats, err := recovery.New(env.Meta, c, recovery.Options{PurgeDeleted: true}).RecoverAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Purged)

	_, err = c.GetTablet(ctx, "gone")
	assert.True(t, tablet.IsNotFound(err))
	sb, err := c.GetTablet(ctx, "tomb")
	require.NoError(t, err)
	assert.Equal(t, tablet.StateTombstoned, sb.DataState)
}

func TestRecoverAll_CollectsFailures(t *testing.T) {
	ctrl := &fakeController{
		superblocks: map[string]*tablet.Superblock{
			"ok":     {TabletID: "ok", DataState: tablet.StateReady},
			"broken": {TabletID: "broken", DataState: tablet.StateReady, PendingTargetState: tablet.StateDeleted},
		},
		resumeErr: fmt.Errorf("disk on fire"),
	}
	metrics := &fakeMetrics{}

	stats, err := recovery.New(ctrl, ctrl, recovery.Options{Metrics: metrics}).RecoverAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.True(t, stats.Failed())
	assert.ErrorContains(t, stats.Failures["broken"], "disk on fire")
	assert.NotContains(t, stats.Failures, "ok")
	assert.Same(t, stats, metrics.stats)
}

func TestRecoverAll_ListError(t *testing.T) {
	ctrl := &fakeController{listErr: fmt.Errorf("unreadable")}
	_, err := recovery.New(ctrl, ctrl, recovery.Options{}).RecoverAll(context.Background())
	assert.ErrorContains(t, err, "unreadable")
}

type fakeController struct {
	superblocks map[string]*tablet.Superblock
	resumeErr   error
	listErr     error
}

func (f *fakeController) ListTabletIDs(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.superblocks))
	for id := range f.superblocks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeController) GetTablet(_ context.Context, id string) (*tablet.Superblock, error) {
	sb, ok := f.superblocks[id]
	if !ok {
		return nil, tablet.NotFound(id)
	}
	return sb.Clone(), nil
}

func (f *fakeController) Resume(context.Context, string) error { return f.resumeErr }

func (f *fakeController) CheckInvariants(context.Context, *tablet.Superblock) error { return nil }

func (f *fakeController) PurgeTablet(context.Context, string) error { return nil }

type fakeMetrics struct {
	stats *recovery.Stats
}

func (m *fakeMetrics) ObserveRecovery(stats *recovery.Stats, _ time.Duration) {
	m.stats = stats
}

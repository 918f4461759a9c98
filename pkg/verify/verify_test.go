package verify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/lifecycle/lifecycletest"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/verify"
)

func TestChecks_Tombstone(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	checker := verify.NewChecker(env.Root, env.Blocks)
	l := checker.Layout

	env.CreateReady(c, "t1", 5, 2)
	env.CreateReady(c, "t2", 1, 1)

	n, err := verify.CountWALSegmentsForTablet(l.WALRoot(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = verify.CountWALSegments(l.WALRoot())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = verify.CountReplicasInMetadataDir(l.TabletMetaDir())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = checker.CheckNoData(ctx, "t1")
	assert.ErrorIs(t, err, verify.ErrMismatch)
	assert.ErrorIs(t, checker.CheckTombstoned(ctx, "t1"), verify.ErrMismatch)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	require.NoError(t, checker.CheckTombstoned(ctx, "t1"))
	assert.ErrorIs(t, checker.CheckDeleted(ctx, "t1"), verify.ErrMismatch)

	n, err = verify.CountWALSegments(l.WALRoot())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, err := verify.ConsensusMetaExists(l.ConsensusMetaDir(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	sb, err := verify.ReadSuperblock(l.TabletMetaDir(), "t1")
	require.NoError(t, err)
	assert.Equal(t, tablet.StateTombstoned, sb.DataState)
}

func TestChecks_Delete(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	checker := verify.NewChecker(env.Root, env.Blocks)

	env.CreateReady(c, "t1", 5, 2)
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))

	require.NoError(t, checker.CheckDeleted(ctx, "t1"))
	ok, err := verify.ConsensusMetaExists(checker.Layout.ConsensusMetaDir(), "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleted replicas still count until purged.
	n, err := verify.CountReplicasInMetadataDir(checker.Layout.TabletMetaDir())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.PurgeTablet(ctx, "t1"))
	n, err = verify.CountReplicasInMetadataDir(checker.Layout.TabletMetaDir())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = verify.ReadSuperblock(checker.Layout.TabletMetaDir(), "t1")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestReadSuperblock_Corrupt(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	env.CreateReady(c, "t1", 1, 1)

	path := filepath.Join(env.Root, "tablet-meta", "t1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = verify.ReadSuperblock(filepath.Join(env.Root, "tablet-meta"), "t1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, metadata.ErrNotFound))
}

func TestCountFilesInDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.tmp"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	n, err := verify.CountFilesInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = verify.CountFilesInDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// hold parks the transition at one checkpoint until released.
type hold struct {
	at      checkpoint.Checkpoint
	release chan struct{}
}

func (h *hold) OnCheckpoint(_ context.Context, _ string, cp checkpoint.Checkpoint) {
	if cp == h.at {
		<-h.release
	}
}

func TestWaitFor_ObservesBackgroundCompletion(t *testing.T) {
	env := lifecycletest.New(t)
	h := &hold{at: checkpoint.WALDeleted, release: make(chan struct{})}
	c := env.Controller(h)
	checker := verify.NewChecker(env.Root, env.Blocks)
	env.CreateReady(c, "t1", 2, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DeleteTablet(ctx, "t1", tablet.StateDeleted)
	require.True(t, tablet.IsTimedOut(err), "err = %v", err)

	check := func() error { return checker.CheckDeleted(context.Background(), "t1") }

	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	err = verify.WaitFor(short, checker.WatchDirs("t1"), check)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, verify.ErrMismatch)

	close(h.release)
	long, cancelLong := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelLong()
	require.NoError(t, verify.WaitFor(long, checker.WatchDirs("t1"), check))
}

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := verify.WaitFor(context.Background(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

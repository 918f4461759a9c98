package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/lifecycle"
	"github.com/marmos91/tabletd/pkg/lifecycle/lifecycletest"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

var fullTombstone = []checkpoint.Checkpoint{
	checkpoint.TransitionStarted,
	checkpoint.BlocksDeleted,
	checkpoint.WALDeleted,
	checkpoint.Committed,
}

var fullDelete = []checkpoint.Checkpoint{
	checkpoint.TransitionStarted,
	checkpoint.BlocksDeleted,
	checkpoint.WALDeleted,
	checkpoint.CmetaDeleted,
	checkpoint.Committed,
}

func TestDeleteTablet_TombstoneReadyReplica(t *testing.T) {
	env := lifecycletest.New(t)
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec)
	ctx := context.Background()

	env.CreateReady(c, "t1", 5, 2)
	before := env.Inspect("t1")
	require.Equal(t, 5, before.Blocks)
	require.Equal(t, 2, before.WALSegments)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	after := env.Inspect("t1")
	assert.Equal(t, tablet.StateTombstoned, after.State)
	assert.Equal(t, tablet.StateUnknown, after.Pending)
	assert.Zero(t, after.Blocks)
	assert.False(t, after.HasWALDir)
	assert.True(t, after.HasConsensusMeta)
	assert.Equal(t, fullTombstone, rec.Checkpoints("t1"))

	sb, err := c.GetTablet(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, sb.BlockRefs)
	require.NotNil(t, sb.TombstoneLastLoggedOpID)
	assert.Equal(t, tablet.OpID{Term: 1, Index: 2}, *sb.TombstoneLastLoggedOpID)
}

func TestDeleteTablet_DeleteReadyReplica(t *testing.T) {
	env := lifecycletest.New(t)
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec)

	env.CreateReady(c, "t1", 5, 2)
	require.NoError(t, c.DeleteTablet(context.Background(), "t1", tablet.StateDeleted))

	after := env.Inspect("t1")
	assert.Equal(t, tablet.StateDeleted, after.State)
	assert.Zero(t, after.Blocks)
	assert.False(t, after.HasWALDir)
	assert.False(t, after.HasConsensusMeta)
	assert.Equal(t, fullDelete, rec.Checkpoints("t1"))
}

func TestDeleteTablet_CrashAfterWALDeletedThenRecover(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(checkpoint.CrashAt(checkpoint.WALDeleted, checkpoint.ExitGoroutine))
	env.CreateReady(c, "t1", 5, 2)

	err := c.DeleteTablet(context.Background(), "t1", tablet.StateDeleted)
	require.Error(t, err)
	assert.Equal(t, tablet.ErrAborted, tablet.CodeOf(err))

	crashed := env.Inspect("t1")
	assert.Equal(t, tablet.StateReady, crashed.State)
	assert.Equal(t, tablet.StateDeleted, crashed.Pending)
	assert.Zero(t, crashed.Blocks)
	assert.False(t, crashed.HasWALDir)
	assert.True(t, crashed.HasConsensusMeta)

	env.Restart()
	rec := checkpoint.NewRecorder()
	restarted := env.Controller(rec)
	require.NoError(t, restarted.Resume(context.Background(), "t1"))

	assert.Equal(t, []checkpoint.Checkpoint{checkpoint.CmetaDeleted, checkpoint.Committed}, rec.Checkpoints("t1"))
	final := env.Inspect("t1")
	assert.Equal(t, tablet.StateDeleted, final.State)
	assert.Equal(t, tablet.StateUnknown, final.Pending)
	assert.False(t, final.HasConsensusMeta)
}

func TestDeleteTablet_CrashAndResume(t *testing.T) {
	tests := []struct {
		crash  checkpoint.Checkpoint
		target tablet.DataState
		// resumed lists the checkpoints the recovery pass must reach.
		resumed []checkpoint.Checkpoint
	}{
		{checkpoint.TransitionStarted, tablet.StateTombstoned,
			[]checkpoint.Checkpoint{checkpoint.BlocksDeleted, checkpoint.WALDeleted, checkpoint.Committed}},
		{checkpoint.BlocksDeleted, tablet.StateTombstoned,
			[]checkpoint.Checkpoint{checkpoint.WALDeleted, checkpoint.Committed}},
		{checkpoint.WALDeleted, tablet.StateTombstoned,
			[]checkpoint.Checkpoint{checkpoint.Committed}},
		{checkpoint.Committed, tablet.StateTombstoned, nil},

		{checkpoint.TransitionStarted, tablet.StateDeleted,
			[]checkpoint.Checkpoint{checkpoint.BlocksDeleted, checkpoint.WALDeleted, checkpoint.CmetaDeleted, checkpoint.Committed}},
		{checkpoint.BlocksDeleted, tablet.StateDeleted,
			[]checkpoint.Checkpoint{checkpoint.WALDeleted, checkpoint.CmetaDeleted, checkpoint.Committed}},
		{checkpoint.WALDeleted, tablet.StateDeleted,
			[]checkpoint.Checkpoint{checkpoint.CmetaDeleted, checkpoint.Committed}},
		{checkpoint.CmetaDeleted, tablet.StateDeleted,
			[]checkpoint.Checkpoint{checkpoint.Committed}},
		{checkpoint.Committed, tablet.StateDeleted, nil},
	}

	for _, tt := range tests {
		t.Run(tt.target.String()+"/"+tt.crash.String(), func(t *testing.T) {
			env := lifecycletest.New(t)
			crash := checkpoint.CrashAt(tt.crash, checkpoint.ExitGoroutine)
			c := env.Controller(crash)
			env.CreateReady(c, "t1", 3, 2)

			err := c.DeleteTablet(context.Background(), "t1", tt.target)
			require.Equal(t, tablet.ErrAborted, tablet.CodeOf(err), "err = %v", err)
			require.Equal(t, 1, crash.Fired())

			env.Restart()
			rec := checkpoint.NewRecorder()
			restarted := env.Controller(rec)
			require.NoError(t, restarted.Resume(context.Background(), "t1"))
			assert.Equal(t, tt.resumed, rec.Checkpoints("t1"))

			final := env.Inspect("t1")
			assert.Equal(t, tt.target, final.State)
			assert.Equal(t, tablet.StateUnknown, final.Pending)
			assert.Zero(t, final.Blocks)
			assert.False(t, final.HasWALDir)
			assert.Equal(t, tt.target == tablet.StateTombstoned, final.HasConsensusMeta)

			// A second pass has nothing left to do.
			rec.Reset()
			require.NoError(t, restarted.Resume(context.Background(), "t1"))
			require.NoError(t, restarted.DeleteTablet(context.Background(), "t1", tt.target))
			assert.Empty(t, rec.Hits())
		})
	}
}

func TestDeleteTablet_Idempotent(t *testing.T) {
	env := lifecycletest.New(t)
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec)
	ctx := context.Background()
	env.CreateReady(c, "t1", 2, 1)

	for _, target := range []tablet.DataState{tablet.StateTombstoned, tablet.StateDeleted} {
		require.NoError(t, c.DeleteTablet(ctx, "t1", target))
		first, err := c.GetTablet(ctx, "t1")
		require.NoError(t, err)

		rec.Reset()
		require.NoError(t, c.DeleteTablet(ctx, "t1", target))
		assert.Empty(t, rec.Hits(), "repeat %s must not run any step", target)

		second, err := c.GetTablet(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, first.Version, second.Version)
	}
}

func TestDeleteTablet_NeverRegresses(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	assert.Equal(t, tablet.StateDeleted, env.Inspect("t1").State)
}

func TestDeleteTablet_TombstonedThenDeleted(t *testing.T) {
	env := lifecycletest.New(t)
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))
	rec.Reset()
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))

	assert.Equal(t, fullDelete, rec.Checkpoints("t1"))
	a := env.Inspect("t1")
	assert.Equal(t, tablet.StateDeleted, a.State)
	assert.False(t, a.HasConsensusMeta)
}

func TestDeleteTablet_PendingTargetWins(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(checkpoint.CrashAt(checkpoint.TransitionStarted, checkpoint.ExitGoroutine))
	env.CreateReady(c, "t1", 2, 1)

	err := c.DeleteTablet(context.Background(), "t1", tablet.StateDeleted)
	require.Equal(t, tablet.ErrAborted, tablet.CodeOf(err))

	env.Restart()
	restarted := env.Controller(nil)
	require.NoError(t, restarted.DeleteTablet(context.Background(), "t1", tablet.StateTombstoned))

	a := env.Inspect("t1")
	assert.Equal(t, tablet.StateDeleted, a.State)
	assert.False(t, a.HasConsensusMeta)
}

func TestDeleteTablet_Errors(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)

	err := c.DeleteTablet(ctx, "missing", tablet.StateTombstoned)
	assert.True(t, tablet.IsNotFound(err), "err = %v", err)

	for _, target := range []tablet.DataState{tablet.StateUnknown, tablet.StateCopying, tablet.StateReady, tablet.DataState(42)} {
		err := c.DeleteTablet(ctx, "t1", target)
		assert.Equal(t, tablet.ErrInvalidArgument, tablet.CodeOf(err), "target %s: err = %v", target, err)
	}

	for _, id := range []string{"", "..", "a/b", "x.tmp"} {
		err := c.DeleteTablet(ctx, id, tablet.StateDeleted)
		assert.Equal(t, tablet.ErrInvalidArgument, tablet.CodeOf(err), "id %q: err = %v", id, err)
	}

	assert.Equal(t, tablet.StateReady, env.Inspect("t1").State)
}

func TestDeleteTablet_DetectsArtifactMismatch(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	// A WAL reappearing under a tombstoned replica contradicts its state.
	l, err := env.WAL.Open("t1")
	require.NoError(t, err)
	require.NoError(t, l.Append(wal.Entry{OpID: tablet.OpID{Term: 9, Index: 1}}))
	require.NoError(t, l.Close())

	err = c.DeleteTablet(ctx, "t1", tablet.StateTombstoned)
	assert.True(t, tablet.IsIllegalState(err), "err = %v", err)
}

func TestDeleteTablet_BusyWhileOperationHeld(t *testing.T) {
	env := lifecycletest.New(t)
	metrics := &fakeMetrics{}
	c := env.Controller(nil, func(o *lifecycle.Options) { o.Metrics = metrics })
	env.CreateReady(c, "t1", 1, 1)

	release, err := c.BeginOperation("t1", "bootstrap")
	require.NoError(t, err)

	err = c.DeleteTablet(context.Background(), "t1", tablet.StateTombstoned)
	require.True(t, tablet.IsBusy(err), "err = %v", err)
	assert.True(t, tablet.IsRetryable(err))
	assert.Contains(t, err.Error(), "bootstrap")
	assert.Equal(t, int64(1), metrics.busy.Load())

	release()
	release()
	require.NoError(t, c.DeleteTablet(context.Background(), "t1", tablet.StateTombstoned))
}

func TestDeleteTabletWithRetries_SucceedsOnceReleased(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	env.CreateReady(c, "t1", 1, 1)

	release, err := c.BeginOperation("t1", "bootstrap")
	require.NoError(t, err)
	time.AfterFunc(50*time.Millisecond, release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lifecycle.DeleteTabletWithRetries(ctx, c, "t1", tablet.StateTombstoned))
	assert.Equal(t, tablet.StateTombstoned, env.Inspect("t1").State)
}

func TestDeleteTabletWithRetries_TimesOutWhileBusy(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	env.CreateReady(c, "t1", 1, 1)

	release, err := c.BeginOperation("t1", "bootstrap")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = lifecycle.DeleteTabletWithRetries(ctx, c, "t1", tablet.StateTombstoned)
	assert.True(t, tablet.IsTimedOut(err), "err = %v", err)
	assert.Equal(t, tablet.StateReady, env.Inspect("t1").State)
}

func TestDeleteTabletWithRetries_PermanentError(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)

	err := lifecycle.DeleteTabletWithRetries(context.Background(), c, "missing", tablet.StateDeleted)
	assert.True(t, tablet.IsNotFound(err), "err = %v", err)
}

func TestDeleteTablet_WaitForLockTimesOut(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil, func(o *lifecycle.Options) { o.WaitForLock = true })
	env.CreateReady(c, "t1", 1, 1)

	release, err := c.BeginOperation("t1", "bootstrap")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.DeleteTablet(ctx, "t1", tablet.StateTombstoned)
	assert.True(t, tablet.IsTimedOut(err), "err = %v", err)
}

// gate blocks the transition at one checkpoint until opened.
type gate struct {
	at      checkpoint.Checkpoint
	reached chan struct{}
	open    chan struct{}
}

func newGate(at checkpoint.Checkpoint) *gate {
	return &gate{at: at, reached: make(chan struct{}, 1), open: make(chan struct{})}
}

func (g *gate) OnCheckpoint(_ context.Context, _ string, cp checkpoint.Checkpoint) {
	if cp != g.at {
		return
	}
	select {
	case g.reached <- struct{}{}:
	default:
	}
	<-g.open
}

func TestDeleteTablet_CallerTimeoutDoesNotStopTransition(t *testing.T) {
	env := lifecycletest.New(t)
	g := newGate(checkpoint.BlocksDeleted)
	c := env.Controller(g)
	env.CreateReady(c, "t1", 2, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DeleteTablet(ctx, "t1", tablet.StateDeleted)
	require.True(t, tablet.IsTimedOut(err), "err = %v", err)

	<-g.reached
	assert.Equal(t, 1, c.InFlight())

	// The lock is still held by the running transition.
	_, err = c.BeginOperation("t1", "bootstrap")
	assert.True(t, tablet.IsBusy(err), "err = %v", err)

	close(g.open)
	require.NoError(t, c.WaitForTransition(context.Background(), "t1"))
	require.NoError(t, c.Drain(context.Background()))

	a := env.Inspect("t1")
	assert.Equal(t, tablet.StateDeleted, a.State)
	assert.False(t, a.HasConsensusMeta)
	assert.Zero(t, c.InFlight())
	assert.NoError(t, c.WaitForTransition(context.Background(), "t1"))
}

func TestDeleteTablet_ExpiredContext(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	env.CreateReady(c, "t1", 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.DeleteTablet(ctx, "t1", tablet.StateTombstoned)
	assert.True(t, tablet.IsTimedOut(err), "err = %v", err)
	assert.Equal(t, tablet.StateReady, env.Inspect("t1").State)
}

// countingStore tracks how many block deletions run at once per tablet.
type countingStore struct {
	blocks.Store

	mu      sync.Mutex
	active  map[string]int
	maxSeen int
	calls   int
}

func (s *countingStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]int)
	}
	s.active[prefix]++
	s.calls++
	if s.active[prefix] > s.maxSeen {
		s.maxSeen = s.active[prefix]
	}
	s.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	n, err := s.Store.DeleteByPrefix(ctx, prefix)

	s.mu.Lock()
	s.active[prefix]--
	s.mu.Unlock()
	return n, err
}

func TestDeleteTablet_MutualExclusion(t *testing.T) {
	env := lifecycletest.New(t)
	counting := &countingStore{Store: env.Blocks}
	env.WithBlocks(counting)
	rec := checkpoint.NewRecorder()
	c := env.Controller(rec, func(o *lifecycle.Options) { o.WaitForLock = true })

	ids := []string{"t1", "t2"}
	for _, id := range ids {
		env.CreateReady(c, id, 3, 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		for _, id := range ids {
			wg.Add(1)
			target := tablet.StateTombstoned
			if i%2 == 1 {
				target = tablet.StateDeleted
			}
			go func(id string, target tablet.DataState) {
				defer wg.Done()
				errs <- c.DeleteTablet(ctx, id, target)
			}(id, target)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counting.mu.Lock()
	assert.Equal(t, 1, counting.maxSeen)
	// Each tablet is created once and deleted by at most two transitions:
	// one to TOMBSTONED, one escalating to DELETED.
	assert.LessOrEqual(t, counting.calls, 3*len(ids))
	counting.mu.Unlock()

	for _, id := range ids {
		assert.Equal(t, tablet.StateDeleted, env.Inspect(id).State)
		cps := rec.Checkpoints(id)
		assert.Equal(t, checkpoint.Committed, cps[len(cps)-1])
	}
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
	s.maxSeen = 0
}

func (s *countingStore) deletions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func countHits(cps []checkpoint.Checkpoint, want checkpoint.Checkpoint) int {
	n := 0
	for _, cp := range cps {
		if cp == want {
			n++
		}
	}
	return n
}

func TestDeleteTablet_ConcurrentSameTargetRunsOnce(t *testing.T) {
	for _, waitForLock := range []bool{false, true} {
		name := "fail_fast"
		if waitForLock {
			name = "wait_for_lock"
		}
		t.Run(name, func(t *testing.T) {
			env := lifecycletest.New(t)
			counting := &countingStore{Store: env.Blocks}
			env.WithBlocks(counting)
			rec := checkpoint.NewRecorder()
			c := env.Controller(rec, func(o *lifecycle.Options) { o.WaitForLock = waitForLock })

			env.CreateReady(c, "t1", 4, 2)
			counting.reset()
			rec.Reset()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			const callers = 16
			start := make(chan struct{})
			errs := make(chan error, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					errs <- c.DeleteTablet(ctx, "t1", tablet.StateDeleted)
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			ok, busy := 0, 0
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case tablet.IsBusy(err) && !waitForLock:
					busy++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, callers, ok+busy)
			assert.GreaterOrEqual(t, ok, 1)
			if waitForLock {
				assert.Equal(t, callers, ok)
			}

			assert.Equal(t, 1, counting.deletions(), "blocks must be deleted by exactly one transition")
			cps := rec.Checkpoints("t1")
			assert.Equal(t, 1, countHits(cps, checkpoint.Committed))
			assert.Equal(t, 1, countHits(cps, checkpoint.TransitionStarted))
			assert.Equal(t, tablet.StateDeleted, env.Inspect("t1").State)
		})
	}
}

func TestCreateTablet(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()

	sb := env.CreateReady(c, "t1", 4, 3)
	assert.Equal(t, tablet.StateReady, sb.DataState)
	assert.Len(t, sb.BlockRefs, 4)
	for _, key := range sb.BlockRefs {
		id, _, err := blocks.ParseKey(key)
		require.NoError(t, err)
		assert.Equal(t, "t1", id)
	}

	a := env.Inspect("t1")
	assert.Equal(t, 4, a.Blocks)
	assert.Equal(t, 3, a.WALSegments)
	assert.True(t, a.HasConsensusMeta)
	require.NoError(t, c.CheckInvariants(ctx, sb))

	_, err := c.CreateTablet(ctx, lifecycle.CreateSpec{TabletID: "t1"})
	assert.Equal(t, tablet.ErrAlreadyPresent, tablet.CodeOf(err), "err = %v", err)

	st, err := c.Describe(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blocks)
	assert.Equal(t, 3, st.WALSegments)
	assert.True(t, st.HasConsensusMeta)
	assert.Empty(t, st.Violations)
	assert.False(t, st.InFlight)
}

func TestListTablets_IncludesTombstones(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "a", 1, 1)
	env.CreateReady(c, "b", 1, 1)
	env.CreateReady(c, "c", 1, 1)
	require.NoError(t, c.DeleteTablet(ctx, "b", tablet.StateTombstoned))
	require.NoError(t, c.DeleteTablet(ctx, "c", tablet.StateDeleted))

	list, err := c.ListTablets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, tablet.StateReady, list[0].DataState)
	assert.Equal(t, tablet.StateTombstoned, list[1].DataState)
	assert.Equal(t, tablet.StateDeleted, list[2].DataState)
}

func TestCheckLeaderClaim(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()

	_, err := c.CreateTablet(ctx, lifecycle.CreateSpec{TabletID: "t1", Term: 5})
	require.NoError(t, err)
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))

	err = c.CheckLeaderClaim(ctx, "t1", 4)
	assert.Equal(t, tablet.ErrStaleTerm, tablet.CodeOf(err), "err = %v", err)
	assert.NoError(t, c.CheckLeaderClaim(ctx, "t1", 5))
	assert.NoError(t, c.CheckLeaderClaim(ctx, "t1", 6))

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))
	assert.True(t, tablet.IsNotFound(c.CheckLeaderClaim(ctx, "t1", 6)))
	assert.True(t, tablet.IsNotFound(c.CheckLeaderClaim(ctx, "missing", 1)))
}

func TestPurgeTablet(t *testing.T) {
	env := lifecycletest.New(t)
	c := env.Controller(nil)
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)

	err := c.PurgeTablet(ctx, "t1")
	assert.True(t, tablet.IsIllegalState(err), "err = %v", err)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateTombstoned))
	assert.True(t, tablet.IsIllegalState(c.PurgeTablet(ctx, "t1")))

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))
	require.NoError(t, c.PurgeTablet(ctx, "t1"))

	_, err = c.GetTablet(ctx, "t1")
	assert.True(t, tablet.IsNotFound(err))
	assert.True(t, tablet.IsNotFound(c.DeleteTablet(ctx, "t1", tablet.StateDeleted)))
	assert.True(t, tablet.IsNotFound(c.PurgeTablet(ctx, "t1")))

	// The id can be reused.
	env.CreateReady(c, "t1", 2, 1)
	assert.Equal(t, 2, env.Inspect("t1").Blocks)
}

func TestDeleteTablet_Metrics(t *testing.T) {
	env := lifecycletest.New(t)
	metrics := &fakeMetrics{}
	c := env.Controller(nil, func(o *lifecycle.Options) { o.Metrics = metrics })
	ctx := context.Background()
	env.CreateReady(c, "t1", 1, 1)

	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))
	require.NoError(t, c.DeleteTablet(ctx, "t1", tablet.StateDeleted))
	require.Error(t, c.DeleteTablet(ctx, "missing", tablet.StateDeleted))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"ok", "noop", "not_found"}, metrics.outcomes)
	assert.Len(t, metrics.steps, len(fullDelete))
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
	steps    []checkpoint.Checkpoint
	busy     atomic.Int64
}

func (m *fakeMetrics) ObserveTransition(_ tablet.DataState, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) ObserveStep(cp checkpoint.Checkpoint, _ bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, cp)
}

func (m *fakeMetrics) RecordBusy(string) {
	m.busy.Add(1)
}

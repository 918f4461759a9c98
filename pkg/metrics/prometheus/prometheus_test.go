package prometheus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/blocks/gc"
	badgerstore "github.com/marmos91/tabletd/pkg/blocks/store/badger"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/metrics"
	"github.com/marmos91/tabletd/pkg/recovery"
	"github.com/marmos91/tabletd/pkg/tablet"
)

func enable(t *testing.T) {
	t.Helper()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
}

func TestConstructorsDisabled(t *testing.T) {
	metrics.Reset()

	assert.Nil(t, NewLifecycleMetrics())
	assert.Nil(t, NewRecoveryMetrics())
	assert.Nil(t, NewBlockMetrics("memory"))
	assert.Nil(t, metrics.NewLifecycleMetrics())
	assert.Nil(t, metrics.NewBlockMetrics("memory"))
	require.NoError(t, RegisterBadgerCollector(func() badgerstore.CacheStats { return badgerstore.CacheStats{} }))

	// Nil receivers are no-ops.
	var m *lifecycleMetrics
	m.ObserveTransition(tablet.StateDeleted, "ok", time.Millisecond)
	m.ObserveStep(checkpoint.Committed, true, time.Millisecond)
	m.RecordBusy("delete_tablet")
}

func TestLifecycleMetrics(t *testing.T) {
	enable(t)
	m := metrics.NewLifecycleMetrics()
	require.NotNil(t, m)
	lm := m.(*lifecycleMetrics)

	m.ObserveTransition(tablet.StateDeleted, "ok", 5*time.Millisecond)
	m.ObserveTransition(tablet.StateDeleted, "ok", 7*time.Millisecond)
	m.ObserveTransition(tablet.StateTombstoned, "noop", time.Millisecond)
	m.ObserveStep(checkpoint.BlocksDeleted, true, time.Millisecond)
	m.ObserveStep(checkpoint.WALDeleted, false, time.Millisecond)
	m.RecordBusy("delete_tablet")

	assert.Equal(t, 2.0, testutil.ToFloat64(lm.transitionsTotal.WithLabelValues("DELETED", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lm.transitionsTotal.WithLabelValues("TOMBSTONED", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lm.stepsTotal.WithLabelValues(checkpoint.BlocksDeleted.String(), "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lm.stepsTotal.WithLabelValues(checkpoint.WALDeleted.String(), "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lm.busyTotal.WithLabelValues("delete_tablet")))
}

func TestRecoveryMetrics(t *testing.T) {
	enable(t)
	m := metrics.NewRecoveryMetrics()
	require.NotNil(t, m)
	rm := m.(*recoveryMetrics)

	m.ObserveRecovery(&recovery.Stats{
		Scanned:    6,
		Resumed:    4,
		Purged:     1,
		Violations: []recovery.Alarm{{TabletID: "t1", Err: errors.New("x")}},
		Failures:   map[string]error{},
	}, 2*time.Second)

	assert.Equal(t, 6.0, testutil.ToFloat64(rm.tablets.WithLabelValues("scanned")))
	assert.Equal(t, 4.0, testutil.ToFloat64(rm.tablets.WithLabelValues("resumed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.tablets.WithLabelValues("violation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rm.tablets.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rm.duration))
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.runs))
}

func TestBlockMetrics(t *testing.T) {
	enable(t)
	m := metrics.NewBlockMetrics("fs")
	require.NotNil(t, m)
	bm := m.(*blockMetrics)

	m.ObserveOperation("write", time.Millisecond, nil)
	m.ObserveOperation("write", time.Millisecond, errors.New("disk full"))
	m.RecordBytes("write", 100)
	m.RecordBytes("read", 40)
	m.RecordDeleted(3)
	metrics.ObserveGC(m, &gc.Stats{OrphanBlocks: 2}, true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(bm.operationsTotal.WithLabelValues("write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.operationsTotal.WithLabelValues("write", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(bm.bytesTransferred.WithLabelValues("write")))
	assert.Equal(t, 40.0, testutil.ToFloat64(bm.bytesTransferred.WithLabelValues("read")))
	assert.Equal(t, 3.0, testutil.ToFloat64(bm.blocksDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.gcRuns.WithLabelValues("dry_run")))
	assert.Equal(t, 2.0, testutil.ToFloat64(bm.gcOrphans))
}

func TestBadgerCollector(t *testing.T) {
	enable(t)
	stats := badgerstore.CacheStats{BlockHits: 3, BlockMisses: 1}
	require.NoError(t, RegisterBadgerCollector(func() badgerstore.CacheStats { return stats }))

	expected := `
# HELP tabletd_badger_cache_hit_ratio BadgerDB cache hit ratio (0.0 to 1.0) by cache type
# TYPE tabletd_badger_cache_hit_ratio gauge
tabletd_badger_cache_hit_ratio{cache_type="block"} 0.75
tabletd_badger_cache_hit_ratio{cache_type="index"} 0
`
	err := testutil.GatherAndCompare(metrics.GetRegistry(), strings.NewReader(expected), "tabletd_badger_cache_hit_ratio")
	require.NoError(t, err)
}

// Package recovery drives every tablet to a consistent state at startup.
//
// RecoverAll runs once before the server accepts requests. Each tablet with a
// pending transition is resumed through the lifecycle controller, which
// continues at the first step whose artifacts are still on disk. Tablets
// without one are checked against their recorded state and any mismatch is
// reported as an alarm.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// DefaultParallelism bounds concurrent tablet recoveries.
const DefaultParallelism = 8

// Controller is the part of the lifecycle controller recovery drives.
type Controller interface {
	GetTablet(ctx context.Context, tabletID string) (*tablet.Superblock, error)
	Resume(ctx context.Context, tabletID string) error
	CheckInvariants(ctx context.Context, sb *tablet.Superblock) error
	PurgeTablet(ctx context.Context, tabletID string) error
}

// TabletLister enumerates recorded tablets.
type TabletLister interface {
	ListTabletIDs(ctx context.Context) ([]string, error)
}

// Metrics receives recovery observations. May be nil.
type Metrics interface {
	ObserveRecovery(stats *Stats, duration time.Duration)
}

// Options configures a Manager.
type Options struct {
	// Parallelism bounds concurrent tablet recoveries. Defaults to
	// DefaultParallelism.
	Parallelism int

	// PurgeDeleted removes the superblocks of fully DELETED tablets.
	PurgeDeleted bool

	Metrics Metrics
}

// Alarm is an invariant violation found on a tablet with no pending
// transition.
type Alarm struct {
	TabletID string
	Err      error
}

// Stats summarizes a recovery pass.
type Stats struct {
	Scanned    int
	Resumed    int
	Purged     int
	Violations []Alarm
	Failures   map[string]error
}

// Failed reports whether any tablet could not be recovered.
func (s *Stats) Failed() bool {
	return len(s.Failures) > 0
}

// Manager runs startup recovery.
type Manager struct {
	tablets    TabletLister
	controller Controller
	opts       Options
}

// New creates a recovery manager.
func New(tablets TabletLister, controller Controller, opts Options) *Manager {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Manager{tablets: tablets, controller: controller, opts: opts}
}

// RecoverAll recovers every tablet. Per-tablet failures are collected in
// Stats; the returned error is non-nil only when the tablets cannot be
// listed or ctx ends.
func (m *Manager) RecoverAll(ctx context.Context) (*Stats, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRecoverAll)
	defer span.End()

	ids, err := m.tablets.ListTabletIDs(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("list tablets: %w", err)
	}

	stats := &Stats{Failures: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := m.recoverOne(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			stats.Scanned++
			switch {
			case out.err != nil:
				stats.Failures[id] = out.err
			case out.alarm != nil:
				stats.Violations = append(stats.Violations, Alarm{TabletID: id, Err: out.alarm})
			}
			if out.resumed {
				stats.Resumed++
			}
			if out.purged {
				stats.Purged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveRecovery(stats, time.Since(start))
	}
	logger.InfoCtx(ctx, "Recovery complete",
		logger.KeyCount, stats.Scanned,
		"resumed", stats.Resumed,
		"purged", stats.Purged,
		"violations", len(stats.Violations),
		"failures", len(stats.Failures),
		logger.DurationMs(logger.Duration(start)))
	return stats, nil
}

type outcome struct {
	resumed bool
	purged  bool
	alarm   error
	err     error
}

func (m *Manager) recoverOne(ctx context.Context, tabletID string) (out outcome) {
	ctx = logger.WithContext(ctx, logger.NewLogContext(tabletID, "recover"))
	ctx, span := telemetry.StartTabletSpan(ctx, telemetry.SpanRecoverOne, tabletID)
	defer func() {
		if out.err != nil {
			telemetry.RecordError(ctx, out.err)
		}
		span.End()
	}()

	sb, err := m.controller.GetTablet(ctx, tabletID)
	if err != nil {
		if tablet.IsNotFound(err) {
			return out
		}
		logger.ErrorCtx(ctx, "Cannot read superblock", logger.Err(err))
		out.err = err
		return out
	}

	if sb.HasPending() {
		logger.InfoCtx(ctx, "Resuming interrupted transition",
			logger.DataState(sb.DataState.String()),
			logger.KeyPending, sb.PendingTargetState.String())
		if err := m.controller.Resume(ctx, tabletID); err != nil {
			logger.ErrorCtx(ctx, "Resume failed", logger.Err(err))
			out.err = err
			return out
		}
		out.resumed = true
		if sb, err = m.controller.GetTablet(ctx, tabletID); err != nil {
			out.err = err
			return out
		}
	} else if err := m.controller.CheckInvariants(ctx, sb); err != nil {
		var te *tablet.Error
		if errors.As(err, &te) && te.Code == tablet.ErrIllegalState {
			logger.ErrorCtx(ctx, "Tablet invariant violated", logger.Err(err))
			out.alarm = err
			return out
		}
		out.err = err
		return out
	}

	if m.opts.PurgeDeleted && sb.DataState == tablet.StateDeleted && !sb.HasPending() {
		if err := m.controller.PurgeTablet(ctx, tabletID); err != nil {
			logger.WarnCtx(ctx, "Purge failed", logger.Err(err))
			out.err = err
			return out
		}
		out.purged = true
	}
	return out
}

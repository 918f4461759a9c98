// Package tserver assembles a tablet server from configuration: it takes the
// data-root lock, opens the stores, wires the lifecycle controller and runs
// startup recovery before accepting lifecycle requests.
//
// Until recovery has finished every lifecycle request is answered with Busy.
// Readiness is also exported on the admin API (/readyz).
package tserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/api"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/blocks/gc"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/config"
	"github.com/marmos91/tabletd/pkg/consensus"
	"github.com/marmos91/tabletd/pkg/fsmanager"
	"github.com/marmos91/tabletd/pkg/lifecycle"
	"github.com/marmos91/tabletd/pkg/metadata"
	metafs "github.com/marmos91/tabletd/pkg/metadata/fs"
	"github.com/marmos91/tabletd/pkg/metrics"
	"github.com/marmos91/tabletd/pkg/recovery"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/verify"
	"github.com/marmos91/tabletd/pkg/wal"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	hook   checkpoint.Strategy
	exit   checkpoint.Terminator
	blocks blocks.Store
	clock  func() time.Time
}

// WithCheckpointStrategy replaces the strategy built from faults.crash_after.
func WithCheckpointStrategy(s checkpoint.Strategy) Option {
	return func(o *options) { o.hook = s }
}

// WithTerminator sets how configured crash points stop the server.
// Default: checkpoint.ExitProcess.
func WithTerminator(exit checkpoint.Terminator) Option {
	return func(o *options) { o.exit = exit }
}

// WithBlockStore uses bs instead of the backend named in the config. The
// server takes ownership and closes it.
func WithBlockStore(bs blocks.Store) Option {
	return func(o *options) { o.blocks = bs }
}

// WithClock overrides the time source used for superblock timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Server is one tablet server process bound to a data root.
type Server struct {
	cfg    *config.Config
	layout fsmanager.Layout
	lock   *fsmanager.InstanceLock

	meta         metadata.Store
	wal          *wal.Manager
	cmeta        *consensus.Store
	blocks       blocks.Store
	blockMetrics metrics.BlockMetrics

	controller *lifecycle.Controller
	recovery   *recovery.Manager

	ready     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open locks the data root and opens every store. It does not run recovery;
// call Recover or Serve.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Server, err error) {
	o := options{exit: checkpoint.ExitProcess}
	for _, opt := range opts {
		opt(&o)
	}

	layout := fsmanager.NewLayout(cfg.Storage.Root)
	if err := layout.Create(); err != nil {
		return nil, err
	}
	lock, err := layout.Lock()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, layout: layout, lock: lock}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	meta, err := metafs.New(metafs.Config{Dir: layout.TabletMetaDir()})
	if err != nil {
		return nil, fmt.Errorf("open superblock store: %w", err)
	}
	s.meta = meta
	if s.wal, err = wal.NewManager(layout.WALRoot(), wal.Options{SegmentSize: cfg.Storage.WALSegmentSize.Uint64()}); err != nil {
		return nil, fmt.Errorf("open WAL manager: %w", err)
	}
	if s.cmeta, err = consensus.NewStore(layout.ConsensusMetaDir()); err != nil {
		return nil, fmt.Errorf("open consensus metadata store: %w", err)
	}

	if o.blocks != nil {
		s.blocks = o.blocks
	} else if s.blocks, s.blockMetrics, err = OpenBlockStore(ctx, cfg.Blocks, layout); err != nil {
		return nil, err
	}

	hook := o.hook
	if hook == nil {
		if hook, err = checkpoint.FromConfig(cfg.Faults.CrashAfter, o.exit); err != nil {
			return nil, err
		}
		if len(cfg.Faults.CrashAfter) > 0 {
			logger.Warn("Fault injection enabled", "crash_after", cfg.Faults.CrashAfter)
		}
	}

	s.controller, err = lifecycle.New(lifecycle.Options{
		Metadata:    s.meta,
		WAL:         s.wal,
		Consensus:   s.cmeta,
		Blocks:      s.blocks,
		Checkpoints: hook,
		Metrics:     metrics.NewLifecycleMetrics(),
		WaitForLock: cfg.Lifecycle.WaitForLock,
		Now:         o.clock,
	})
	if err != nil {
		return nil, err
	}

	s.recovery = recovery.New(s.meta, s.controller, recovery.Options{
		Parallelism:  cfg.Lifecycle.RecoveryParallelism,
		PurgeDeleted: cfg.Lifecycle.PurgeDeletedOnStartup,
		Metrics:      metrics.NewRecoveryMetrics(),
	})

	logger.Info("Tablet server opened", logger.KeyPath, layout.Root, logger.KeyStoreType, cfg.Blocks.Type)
	return s, nil
}

// Recover runs startup recovery and marks the server ready. Recovery
// failures of individual tablets are reported in the stats and logged; they
// do not keep the server from becoming ready.
func (s *Server) Recover(ctx context.Context) (*recovery.Stats, error) {
	stats, err := s.recovery.RecoverAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("startup recovery: %w", err)
	}
	for id, ferr := range stats.Failures {
		logger.Error("Tablet failed to recover", logger.KeyTabletID, id, logger.Err(ferr))
	}
	s.ready.Store(true)
	return stats, nil
}

// Ready returns nil once startup recovery has finished, Busy before.
func (s *Server) Ready() error {
	if !s.ready.Load() {
		return tablet.NewError(tablet.ErrBusy, "", "startup recovery in progress")
	}
	return nil
}

// DeleteTablet serves a DeleteTabletRequest.
func (s *Server) DeleteTablet(ctx context.Context, req DeleteTabletRequest) DeleteTabletResponse {
	if !s.ready.Load() {
		return responseFor(tablet.NewError(tablet.ErrBusy, req.TabletID, "startup recovery in progress"))
	}

	ctx, cancel := s.requestContext(ctx, req.Deadline)
	defer cancel()

	return responseFor(s.controller.DeleteTablet(ctx, req.TabletID, req.DeleteType))
}

// CreateTablet creates a READY replica. Busy until recovery has finished.
func (s *Server) CreateTablet(ctx context.Context, spec lifecycle.CreateSpec) (*tablet.Superblock, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	return s.controller.CreateTablet(ctx, spec)
}

// PurgeTablet removes the superblock of a DELETED replica.
func (s *Server) PurgeTablet(ctx context.Context, tabletID string) error {
	if err := s.Ready(); err != nil {
		return err
	}
	return s.controller.PurgeTablet(ctx, tabletID)
}

// CheckLeaderClaim validates a consensus claim against the replica.
func (s *Server) CheckLeaderClaim(ctx context.Context, tabletID string, term uint64) error {
	if err := s.Ready(); err != nil {
		return err
	}
	return s.controller.CheckLeaderClaim(ctx, tabletID, term)
}

// ListTablets returns every recorded replica.
func (s *Server) ListTablets(ctx context.Context) ([]*tablet.Superblock, error) {
	return s.controller.ListTablets(ctx)
}

// Describe returns one replica with an artifact census.
func (s *Server) Describe(ctx context.Context, tabletID string) (*lifecycle.Status, error) {
	return s.controller.Describe(ctx, tabletID)
}

// Controller returns the lifecycle controller.
func (s *Server) Controller() *lifecycle.Controller { return s.controller }

// Layout returns the data-root layout.
func (s *Server) Layout() fsmanager.Layout { return s.layout }

// Blocks returns the block store in use.
func (s *Server) Blocks() blocks.Store { return s.blocks }

// Checker returns a verifier over this server's data root and block store.
func (s *Server) Checker() *verify.Checker {
	return verify.NewChecker(s.layout.Root, s.blocks)
}

// CollectGarbage removes block-store entries no superblock references.
func (s *Server) CollectGarbage(ctx context.Context, dryRun bool) *gc.Stats {
	start := time.Now()
	stats := gc.CollectGarbage(ctx, s.blocks, s.meta, s.controller, &gc.Options{
		DryRun:           dryRun,
		MaxOrphanTablets: s.cfg.GC.MaxOrphanTablets,
	})
	metrics.ObserveGC(s.blockMetrics, stats, dryRun, time.Since(start))
	return stats
}

// Serve starts the admin and metrics servers, runs startup recovery and the
// periodic garbage collector, and blocks until ctx is cancelled or a server
// fails. In-flight transitions are drained (bounded by shutdown_timeout)
// before it returns. Serve does not close the stores; call Close.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	run := func(name string, start func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx); err != nil {
				logger.Error("Server component failed", "component", name, logger.Err(err))
				errCh <- err
			}
		}()
	}

	if s.cfg.Admin.IsEnabled() {
		run("admin", api.NewServer(s.cfg.Admin, s).Start)
	}
	if s.cfg.Metrics.Enabled && metrics.IsEnabled() {
		run("metrics", metrics.NewServer(s.cfg.Metrics.Port).Start)
	}

	var serveErr error
	if !s.ready.Load() {
		if _, err := s.Recover(ctx); err != nil {
			serveErr = err
			cancel()
		}
	}

	if serveErr == nil {
		if s.cfg.GC.Enabled {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runGC(ctx)
			}()
		}

		logger.Info("Tablet server ready")
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received", "reason", ctx.Err())
		case err := <-errCh:
			serveErr = err
		}
		cancel()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer drainCancel()
	if err := s.controller.Drain(drainCtx); err != nil {
		logger.Warn("Transitions still running at shutdown; recovery will finish them",
			logger.KeyCount, s.controller.InFlight(), logger.Err(err))
	}

	wg.Wait()
	return serveErr
}

func (s *Server) runGC(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GC.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CollectGarbage(ctx, s.cfg.GC.DryRun)
		}
	}
}

// requestContext applies the request deadline, or the configured default
// when neither the request nor ctx carries one.
func (s *Server) requestContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if !deadline.IsZero() {
		return context.WithDeadline(ctx, deadline)
	}
	if _, ok := ctx.Deadline(); !ok && s.cfg.Lifecycle.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Lifecycle.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// Close closes the stores and releases the data-root lock. Transitions still
// running are abandoned to the next startup recovery.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.blocks != nil {
			errs = append(errs, s.blocks.Close())
		}
		if s.wal != nil {
			errs = append(errs, s.wal.Close())
		}
		if s.meta != nil {
			errs = append(errs, s.meta.Close())
		}
		errs = append(errs, s.lock.Release())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

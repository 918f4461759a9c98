// Package lifecycle implements the tablet lifecycle controller: the ordered,
// crash-safe transitions that take a replica from READY to TOMBSTONED or
// DELETED.
//
// A transition is five durable steps:
//
//  1. record pending_target_state in the superblock
//  2. delete the tablet's data blocks
//  3. delete the tablet's WAL directory
//  4. delete consensus metadata (DELETED only)
//  5. write the final superblock (the commit)
//
// Steps 2-5 are "delete if exists", so a transition interrupted at any point
// is finished by running it again. The superblock's data state only changes
// at step 5, after every artifact it describes is gone.
//
// Steps 2-5 run on a goroutine owned by the controller with a context that
// ignores cancellation. A caller whose deadline expires gets TimedOut while
// the transition keeps going; WaitForTransition observes its end.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/consensus"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

// Options wires the controller to its stores.
type Options struct {
	Metadata  metadata.Store
	WAL       *wal.Manager
	Consensus *consensus.Store
	Blocks    blocks.Store

	// Checkpoints is invoked after every transition step. Defaults to Noop.
	Checkpoints checkpoint.Strategy

	// Metrics may be nil.
	Metrics Metrics

	// WaitForLock makes DeleteTablet wait for a held tablet lock until its
	// deadline instead of failing with Busy.
	WaitForLock bool

	// Now overrides the clock used for superblock timestamps.
	Now func() time.Time
}

// Controller runs tablet lifecycle transitions.
//
// Thread Safety: safe for concurrent use. Operations on one tablet are
// serialized by a per-tablet lock; different tablets proceed in parallel.
type Controller struct {
	meta    metadata.Store
	wal     *wal.Manager
	cmeta   *consensus.Store
	blocks  blocks.Store
	hook    checkpoint.Strategy
	metrics Metrics
	wait    bool
	now     func() time.Time

	locks *lockTable

	mu       sync.Mutex
	inflight map[string]*transition
	running  sync.WaitGroup
}

// transition is one in-flight run of steps 2-5.
type transition struct {
	tabletID string
	target   tablet.DataState
	done     chan struct{}
	err      error
}

// New creates a controller.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Metadata == nil:
		return nil, errors.New("lifecycle: metadata store is required")
	case opts.WAL == nil:
		return nil, errors.New("lifecycle: WAL manager is required")
	case opts.Consensus == nil:
		return nil, errors.New("lifecycle: consensus store is required")
	case opts.Blocks == nil:
		return nil, errors.New("lifecycle: block store is required")
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = checkpoint.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Controller{
		meta:     opts.Metadata,
		wal:      opts.WAL,
		cmeta:    opts.Consensus,
		blocks:   opts.Blocks,
		hook:     opts.Checkpoints,
		metrics:  opts.Metrics,
		wait:     opts.WaitForLock,
		now:      opts.Now,
		locks:    newLockTable(),
		inflight: make(map[string]*transition),
	}, nil
}

// BeginOperation takes the tablet's lifecycle lock for a non-transition
// operation (bootstrap, creation, GC). It fails fast with Busy when the lock
// is held. The returned release function is idempotent.
func (c *Controller) BeginOperation(tabletID, operation string) (func(), error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return nil, err
	}
	release, holder, ok := c.locks.tryLock(tabletID, operation)
	if !ok {
		c.recordBusy(operation)
		return nil, tablet.Busy(tabletID, holder)
	}
	return release, nil
}

// DeleteTablet moves tabletID to target, which must be TOMBSTONED or DELETED.
// The context deadline bounds how long the caller waits, not how long the
// transition runs.
func (c *Controller) DeleteTablet(ctx context.Context, tabletID string, target tablet.DataState) (err error) {
	if err := validateTarget(tabletID, target); err != nil {
		return err
	}

	start := time.Now()
	ctx = logger.WithContext(ctx, logger.NewLogContext(tabletID, "delete_tablet").WithTarget(target.String()))
	ctx, span := telemetry.StartTabletSpan(ctx, telemetry.SpanDeleteTablet, tabletID,
		telemetry.TargetState(target.String()))
	ctx = telemetry.WithLogContext(ctx)

	handedOff, noop := false, false
	defer func() {
		if !handedOff {
			c.finishObservation(ctx, span, target, observed(err, noop), start)
		}
	}()

	if ctx.Err() != nil {
		return timedOut(tabletID, ctx.Err(), "deadline expired before the request started")
	}

	release, err := c.acquire(ctx, tabletID, "delete_tablet")
	if err != nil {
		return err
	}
	held := true
	defer func() {
		if held {
			release()
		}
	}()

	sb, err := c.readSuperblock(ctx, tabletID)
	if err != nil {
		return err
	}

	if !sb.HasPending() && sb.DataState >= target {
		if err := c.CheckInvariants(ctx, sb); err != nil {
			return err
		}
		logger.InfoCtx(ctx, "Tablet already in requested state",
			logger.DataState(sb.DataState.String()))
		noop = true
		return nil
	}

	effective := tablet.Max(target, sb.PendingTargetState)
	from := stepDeleteBlocks
	fresh := sb.PendingTargetState != effective
	if fresh {
		if sb, err = c.recordPending(ctx, sb, effective); err != nil {
			return err
		}
	} else {
		if from, err = c.resumePoint(ctx, sb); err != nil {
			return err
		}
		logger.InfoCtx(ctx, "Resuming pending transition",
			logger.KeyPending, effective.String(),
			logger.KeyStep, int(from))
	}

	t := c.launch(ctx, sb, from, fresh, release, span, start)
	held, handedOff = false, true
	return c.await(ctx, t)
}

// errNoop marks a successful request that changed nothing. It never escapes
// the controller.
var errNoop = errors.New("noop")

func observed(err error, noop bool) error {
	if err == nil && noop {
		return errNoop
	}
	return err
}

// Resume synchronously completes tabletID's pending transition, if any. It
// waits for the tablet lock.
func (c *Controller) Resume(ctx context.Context, tabletID string) (err error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return err
	}

	start := time.Now()
	ctx = logger.WithContext(ctx, logger.NewLogContext(tabletID, "resume"))
	ctx, span := telemetry.StartTabletSpan(ctx, telemetry.SpanResume, tabletID)
	ctx = telemetry.WithLogContext(ctx)

	target := tablet.StateUnknown
	handedOff, noop := false, false
	defer func() {
		if !handedOff {
			c.finishObservation(ctx, span, target, observed(err, noop), start)
		}
	}()

	release, err := c.locks.lock(ctx, tabletID, "resume")
	if err != nil {
		return timedOut(tabletID, err, "waiting for tablet lock")
	}
	held := true
	defer func() {
		if held {
			release()
		}
	}()

	sb, err := c.readSuperblock(ctx, tabletID)
	if err != nil {
		return err
	}
	if !sb.HasPending() {
		noop = true
		return nil
	}
	target = sb.PendingTargetState

	from, err := c.resumePoint(ctx, sb)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "Resuming pending transition",
		logger.KeyPending, target.String(),
		logger.KeyStep, int(from))

	t := c.launch(ctx, sb, from, false, release, span, start)
	held, handedOff = false, true
	return c.await(ctx, t)
}

// WaitForTransition blocks until tabletID's in-flight transition ends and
// returns its result. It returns nil at once when nothing is running.
func (c *Controller) WaitForTransition(ctx context.Context, tabletID string) error {
	c.mu.Lock()
	t, ok := c.inflight[tabletID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.await(ctx, t)
}

// Drain waits for every in-flight transition to end.
func (c *Controller) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of running transitions.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Controller) acquire(ctx context.Context, tabletID, operation string) (func(), error) {
	if c.wait {
		release, err := c.locks.lock(ctx, tabletID, operation)
		if err != nil {
			return nil, timedOut(tabletID, err, "waiting for tablet lock held by "+c.locks.holder(tabletID))
		}
		return release, nil
	}
	release, holder, ok := c.locks.tryLock(tabletID, operation)
	if !ok {
		c.recordBusy(operation)
		logger.InfoCtx(ctx, "Tablet busy", "holder", holder)
		return nil, tablet.Busy(tabletID, holder)
	}
	return release, nil
}

// launch starts steps 2-5 on a controller goroutine that owns the lock from
// here on.
func (c *Controller) launch(
	ctx context.Context,
	sb *tablet.Superblock,
	from step,
	announce bool,
	release func(),
	span trace.Span,
	start time.Time,
) *transition {
	t := &transition{
		tabletID: sb.TabletID,
		target:   sb.PendingTargetState,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.inflight[t.tabletID] = t
	c.mu.Unlock()
	c.running.Add(1)

	bg := context.WithoutCancel(ctx)
	go func() {
		finished := false
		defer func() {
			if !finished {
				t.err = tablet.NewError(tablet.ErrAborted, t.tabletID,
					"transition to %s stopped before commit", t.target)
				logger.WarnCtx(bg, "Transition aborted; pending state left for recovery")
			}
			release()
			c.finishObservation(bg, span, t.target, t.err, start)

			c.mu.Lock()
			if c.inflight[t.tabletID] == t {
				delete(c.inflight, t.tabletID)
			}
			c.mu.Unlock()
			close(t.done)
			c.running.Done()
		}()

		t.err = c.runSteps(bg, sb, from, announce)
		finished = true
	}()
	return t
}

func (c *Controller) await(ctx context.Context, t *transition) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Caller deadline expired; transition continues in background")
		return timedOut(t.tabletID, ctx.Err(), "transition to "+t.target.String()+" still running")
	}
}

func (c *Controller) finishObservation(ctx context.Context, span trace.Span, target tablet.DataState, err error, start time.Time) {
	outcome := outcomeOf(err)
	if errors.Is(err, errNoop) {
		outcome, err = "noop", nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if tablet.IsIllegalState(err) {
			logger.ErrorCtx(ctx, "Tablet invariant violated", logger.Err(err))
		}
	}
	span.End()

	if c.metrics != nil && target != tablet.StateUnknown {
		c.metrics.ObserveTransition(target, outcome, time.Since(start))
	}
}

func (c *Controller) recordBusy(operation string) {
	if c.metrics != nil {
		c.metrics.RecordBusy(operation)
	}
}

func (c *Controller) readSuperblock(ctx context.Context, tabletID string) (*tablet.Superblock, error) {
	sb, err := c.meta.ReadSuperblock(ctx, tabletID)
	switch {
	case err == nil:
		return sb, nil
	case errors.Is(err, metadata.ErrNotFound):
		return nil, tablet.NotFound(tabletID)
	case errors.Is(err, diskfmt.ErrCorrupted), errors.Is(err, diskfmt.ErrVersionMismatch), errors.Is(err, diskfmt.ErrWrongKind):
		return nil, tablet.WrapError(tablet.ErrIllegalState, tabletID, err, "unreadable superblock")
	default:
		return nil, fmt.Errorf("read superblock %s: %w", tabletID, err)
	}
}

func validateTarget(tabletID string, target tablet.DataState) error {
	if err := tablet.ValidateID(tabletID); err != nil {
		return err
	}
	if !target.IsTerminal() {
		return tablet.NewError(tablet.ErrInvalidArgument, tabletID,
			"target state must be TOMBSTONED or DELETED, got %s", target)
	}
	return nil
}

func timedOut(tabletID string, cause error, message string) error {
	return tablet.WrapError(tablet.ErrTimedOut, tabletID, cause, message)
}

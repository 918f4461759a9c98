package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// step numbers a transition step.
type step int

const (
	stepRecordPending step = iota + 1
	stepDeleteBlocks
	stepDeleteWAL
	stepDeleteConsensusMeta
	stepCommit
)

// recordPending is step 1: durably mark the transition before touching any
// artifact.
func (c *Controller) recordPending(ctx context.Context, sb *tablet.Superblock, target tablet.DataState) (*tablet.Superblock, error) {
	next := sb.Clone()
	next.PendingTargetState = target

	if next.TombstoneLastLoggedOpID == nil {
		last, ok, err := c.wal.LastOpID(sb.TabletID)
		switch {
		case err != nil:
			logger.WarnCtx(ctx, "Cannot read last logged op id", logger.Err(err))
		case ok:
			next.TombstoneLastLoggedOpID = &last
		}
	}

	if err := c.writeSuperblock(ctx, next); err != nil {
		return nil, fmt.Errorf("record pending state: %w", err)
	}
	logger.InfoCtx(ctx, "Transition started",
		logger.DataState(sb.DataState.String()),
		logger.KeyPending, target.String())
	return next, nil
}

// resumePoint returns the first step whose artifacts are still on disk.
func (c *Controller) resumePoint(ctx context.Context, sb *tablet.Superblock) (step, error) {
	remaining, err := c.blocksRemaining(ctx, sb)
	if err != nil {
		return 0, err
	}
	if remaining {
		return stepDeleteBlocks, nil
	}

	hasWAL, err := c.wal.HasSegments(sb.TabletID)
	if err != nil {
		return 0, fmt.Errorf("stat WAL of %s: %w", sb.TabletID, err)
	}
	if hasWAL {
		return stepDeleteWAL, nil
	}

	if sb.PendingTargetState == tablet.StateDeleted {
		hasMeta, err := c.cmeta.Exists(ctx, sb.TabletID)
		if err != nil {
			return 0, fmt.Errorf("stat consensus metadata of %s: %w", sb.TabletID, err)
		}
		if hasMeta {
			return stepDeleteConsensusMeta, nil
		}
	}
	return stepCommit, nil
}

func (c *Controller) blocksRemaining(ctx context.Context, sb *tablet.Superblock) (bool, error) {
	n, err := blocks.CountTabletBlocks(ctx, c.blocks, sb.TabletID)
	if err != nil {
		return false, fmt.Errorf("list blocks of %s: %w", sb.TabletID, err)
	}
	if n > 0 {
		return true, nil
	}
	for _, key := range sb.BlockRefs {
		ok, err := c.blocks.HasBlock(ctx, key)
		if err != nil {
			return false, fmt.Errorf("stat block %s: %w", key, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// runSteps executes steps from..5. announce emits the transition_started
// checkpoint for a run whose step 1 was just written.
func (c *Controller) runSteps(ctx context.Context, sb *tablet.Superblock, from step, announce bool) error {
	id := sb.TabletID
	target := sb.PendingTargetState

	if announce {
		c.reached(ctx, id, checkpoint.TransitionStarted, true, 0)
	}

	if from <= stepDeleteBlocks {
		start := time.Now()
		n, err := blocks.DeleteTabletBlocks(ctx, c.blocks, id, sb.BlockRefs)
		if err != nil {
			return err
		}
		logger.DebugCtx(ctx, "Deleted tablet blocks", logger.KeyBlocks, n)
		c.reached(ctx, id, checkpoint.BlocksDeleted, n > 0, time.Since(start))
	}

	if from <= stepDeleteWAL {
		start := time.Now()
		removed, err := c.wal.DeleteIfPresent(id)
		if err != nil {
			return err
		}
		c.reached(ctx, id, checkpoint.WALDeleted, removed, time.Since(start))
	}

	if target == tablet.StateDeleted && from <= stepDeleteConsensusMeta {
		start := time.Now()
		removed, err := c.cmeta.DeleteIfPresent(ctx, id)
		if err != nil {
			return fmt.Errorf("delete consensus metadata of %s: %w", id, err)
		}
		c.reached(ctx, id, checkpoint.CmetaDeleted, removed, time.Since(start))
	}

	start := time.Now()
	final := sb.Clone()
	final.DataState = target
	final.PendingTargetState = tablet.StateUnknown
	final.BlockRefs = nil
	if err := c.writeSuperblock(ctx, final); err != nil {
		return fmt.Errorf("commit %s: %w", target, err)
	}
	c.reached(ctx, id, checkpoint.Committed, true, time.Since(start))

	logger.InfoCtx(ctx, "Transition committed",
		logger.DataState(target.String()),
		logger.KeyOpID, opIDString(final.TombstoneLastLoggedOpID))
	return nil
}

// reached records a completed step and hands control to the checkpoint
// strategy, which may stop the goroutine.
func (c *Controller) reached(ctx context.Context, tabletID string, cp checkpoint.Checkpoint, removed bool, d time.Duration) {
	telemetry.AddEvent(ctx, cp.String(), telemetry.Checkpoint(cp.String()), telemetry.Removed(removed))
	logger.DebugCtx(ctx, "Checkpoint reached",
		logger.Checkpoint(cp.String()),
		logger.KeyRemoved, removed)
	if c.metrics != nil {
		c.metrics.ObserveStep(cp, removed, d)
	}
	c.hook.OnCheckpoint(ctx, tabletID, cp)
}

func (c *Controller) writeSuperblock(ctx context.Context, sb *tablet.Superblock) error {
	sb.Version++
	sb.UpdatedAt = c.now().UTC()
	if err := sb.Validate(); err != nil {
		return err
	}
	return c.meta.WriteSuperblock(ctx, sb)
}

func opIDString(op *tablet.OpID) string {
	if op == nil {
		return "none"
	}
	return op.String()
}

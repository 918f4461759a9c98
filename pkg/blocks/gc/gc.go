// Package gc reconciles the block store against tablet superblocks and removes
// blocks that no live tablet owns.
//
// A block is an orphan when:
//   - its tablet has no superblock (purged), or
//   - its tablet is TOMBSTONED or DELETED (or heading there), or
//   - its tablet is READY but the block is not listed in the superblock's
//     block refs.
//
// COPYING tablets are skipped: their blocks are written before the refs are
// committed. Each tablet is examined under its operation lock, so a tablet in
// the middle of a transition is skipped rather than raced.
package gc

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Stats holds statistics about a garbage collection run.
type Stats struct {
	TabletsScanned int // Distinct tablets found in the block store
	BlocksScanned  int // Total blocks examined
	OrphanTablets  int // Tablets with at least one orphan block
	OrphanBlocks   int // Orphan blocks found (deleted unless DryRun)
	Skipped        int // Tablets skipped because an operation held them
	Errors         int // Non-fatal errors encountered
}

// Options configures the garbage collection behavior.
type Options struct {
	// DryRun only reports orphans without deleting.
	DryRun bool

	// MaxOrphanTablets stops after this many orphan tablets. 0 is unlimited.
	MaxOrphanTablets int
}

// OperationGuard serializes GC with lifecycle operations on the same tablet.
// BeginOperation returns a Busy error when the tablet is held.
type OperationGuard interface {
	BeginOperation(tabletID, operation string) (release func(), err error)
}

// CollectGarbage scans the block store and removes orphan blocks.
func CollectGarbage(
	ctx context.Context,
	blockStore blocks.Store,
	metaStore metadata.Store,
	guard OperationGuard,
	options *Options,
) *Stats {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBlockGC)
	defer span.End()

	start := time.Now()
	stats := &Stats{}
	if options == nil {
		options = &Options{}
	}

	keys, err := blockStore.ListByPrefix(ctx, "")
	if err != nil {
		logger.ErrorCtx(ctx, "GC: failed to list blocks", logger.Err(err))
		telemetry.RecordError(ctx, err)
		stats.Errors++
		return stats
	}
	if len(keys) == 0 {
		logger.DebugCtx(ctx, "GC: no blocks found")
		return stats
	}

	byTablet := make(map[string][]string)
	var order []string
	for _, key := range keys {
		stats.BlocksScanned++
		tabletID, _, err := blocks.ParseKey(key)
		if err != nil {
			logger.WarnCtx(ctx, "GC: invalid block key", logger.KeyKey, key)
			stats.Errors++
			continue
		}
		if _, seen := byTablet[tabletID]; !seen {
			order = append(order, tabletID)
		}
		byTablet[tabletID] = append(byTablet[tabletID], key)
	}
	stats.TabletsScanned = len(order)

	logger.InfoCtx(ctx, "GC: scanning tablets", logger.KeyCount, len(order), logger.KeyBlocks, len(keys))

	for _, tabletID := range order {
		if ctx.Err() != nil {
			logger.InfoCtx(ctx, "GC: cancelled", "orphan_tablets", stats.OrphanTablets)
			return stats
		}

		orphans, skipped, err := collectTablet(ctx, blockStore, metaStore, guard, tabletID, byTablet[tabletID], options.DryRun)
		switch {
		case skipped:
			stats.Skipped++
		case err != nil:
			logger.ErrorCtx(ctx, "GC: failed to reconcile tablet", logger.TabletID(tabletID), logger.Err(err))
			stats.Errors++
		}
		if orphans > 0 {
			stats.OrphanTablets++
			stats.OrphanBlocks += orphans
		}

		if options.MaxOrphanTablets > 0 && stats.OrphanTablets >= options.MaxOrphanTablets {
			logger.InfoCtx(ctx, "GC: reached max orphan tablets", "limit", options.MaxOrphanTablets)
			break
		}
	}

	logger.InfoCtx(ctx, "GC: complete",
		"tablets_scanned", stats.TabletsScanned,
		"blocks_scanned", stats.BlocksScanned,
		"orphan_tablets", stats.OrphanTablets,
		"orphan_blocks", stats.OrphanBlocks,
		"skipped", stats.Skipped,
		"dry_run", options.DryRun,
		"errors", stats.Errors,
		logger.DurationMs(logger.Duration(start)))

	return stats
}

func collectTablet(
	ctx context.Context,
	blockStore blocks.Store,
	metaStore metadata.Store,
	guard OperationGuard,
	tabletID string,
	keys []string,
	dryRun bool,
) (orphans int, skipped bool, err error) {
	if guard != nil {
		release, err := guard.BeginOperation(tabletID, "gc")
		if err != nil {
			if tablet.IsBusy(err) {
				logger.DebugCtx(ctx, "GC: tablet busy, skipping", logger.TabletID(tabletID))
				return 0, true, nil
			}
			return 0, false, err
		}
		defer release()
	}

	sb, err := metaStore.ReadSuperblock(ctx, tabletID)
	if err != nil && !errors.Is(err, metadata.ErrNotFound) {
		return 0, false, err
	}

	var doomed []string
	wholeTablet := false
	switch {
	case sb == nil:
		doomed, wholeTablet = keys, true
	case sb.EffectiveState() >= tablet.StateTombstoned:
		doomed, wholeTablet = keys, true
	case sb.DataState == tablet.StateReady:
		refs := make(map[string]struct{}, len(sb.BlockRefs))
		for _, r := range sb.BlockRefs {
			refs[r] = struct{}{}
		}
		for _, k := range keys {
			if _, ok := refs[k]; !ok {
				doomed = append(doomed, k)
			}
		}
	default:
		return 0, false, nil
	}

	if len(doomed) == 0 {
		return 0, false, nil
	}

	logger.InfoCtx(ctx, "GC: found orphan blocks",
		logger.TabletID(tabletID),
		logger.KeyBlocks, len(doomed),
		"dry_run", dryRun)

	if dryRun {
		return len(doomed), false, nil
	}

	if wholeTablet {
		if _, err := blockStore.DeleteByPrefix(ctx, blocks.TabletPrefix(tabletID)); err != nil {
			return len(doomed), false, err
		}
		return len(doomed), false, nil
	}
	for _, k := range doomed {
		if err := blockStore.DeleteBlock(ctx, k); err != nil {
			return len(doomed), false, err
		}
	}
	return len(doomed), false, nil
}

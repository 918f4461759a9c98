package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// CheckInvariants verifies that the artifacts on disk match sb's recorded
// data state. A mismatch is an IllegalState error. Superblocks with a pending
// transition are not checked: their artifacts are legitimately half-removed.
func (c *Controller) CheckInvariants(ctx context.Context, sb *tablet.Superblock) error {
	violations, err := c.Violations(ctx, sb)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return tablet.NewError(tablet.ErrIllegalState, sb.TabletID,
			"%s replica: %s", sb.DataState, strings.Join(violations, "; "))
	}
	return nil
}

// Violations lists every way the artifacts of sb's tablet contradict its
// recorded state.
func (c *Controller) Violations(ctx context.Context, sb *tablet.Superblock) ([]string, error) {
	if sb.HasPending() {
		return nil, nil
	}

	id := sb.TabletID
	state := sb.DataState
	if state == tablet.StateCopying || state == tablet.StateUnknown {
		return nil, nil
	}

	var violations []string

	nBlocks, err := blocks.CountTabletBlocks(ctx, c.blocks, id)
	if err != nil {
		return nil, fmt.Errorf("list blocks of %s: %w", id, err)
	}
	hasWAL, err := c.wal.HasSegments(id)
	if err != nil {
		return nil, fmt.Errorf("stat WAL of %s: %w", id, err)
	}
	hasMeta, err := c.cmeta.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stat consensus metadata of %s: %w", id, err)
	}

	if state.IsTerminal() {
		if nBlocks > 0 {
			violations = append(violations, fmt.Sprintf("%d data blocks remain", nBlocks))
		}
		if hasWAL {
			violations = append(violations, "WAL directory remains")
		}
	}

	switch {
	case state.HasConsensusMeta() && !hasMeta:
		violations = append(violations, "consensus metadata missing")
	case !state.HasConsensusMeta() && hasMeta:
		violations = append(violations, "consensus metadata remains")
	}

	if state == tablet.StateReady {
		if !hasWAL {
			violations = append(violations, "WAL directory missing")
		}
		for _, key := range sb.BlockRefs {
			ok, err := c.blocks.HasBlock(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("stat block %s: %w", key, err)
			}
			if !ok {
				violations = append(violations, "referenced block "+key+" missing")
			}
		}
	}

	return violations, nil
}

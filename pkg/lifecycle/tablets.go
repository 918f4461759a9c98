package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/consensus"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

// CreateSpec describes a new READY replica.
type CreateSpec struct {
	TabletID  string
	TableName string

	// Blocks holds the payload of each data block.
	Blocks [][]byte

	// WALSegments is the number of WAL segments to write, one entry each.
	// Defaults to 1.
	WALSegments int

	// Term is the initial consensus term. Defaults to 1.
	Term  uint64
	Peers []string
}

// CreateTablet creates a READY replica with data blocks, WAL segments and
// consensus metadata. The superblock is written first as COPYING so an
// interrupted creation is visible and can be deleted.
func (c *Controller) CreateTablet(ctx context.Context, spec CreateSpec) (_ *tablet.Superblock, err error) {
	id := spec.TabletID
	if err := tablet.ValidateID(id); err != nil {
		return nil, err
	}
	if spec.WALSegments <= 0 {
		spec.WALSegments = 1
	}
	if spec.Term == 0 {
		spec.Term = 1
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext(id, "create_tablet"))
	ctx, span := telemetry.StartTabletSpan(ctx, telemetry.SpanCreateTablet, id)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	release, err := c.BeginOperation(id, "create_tablet")
	if err != nil {
		return nil, err
	}
	defer release()

	exists, err := c.meta.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stat superblock %s: %w", id, err)
	}
	if exists {
		return nil, tablet.NewError(tablet.ErrAlreadyPresent, id, "tablet already exists")
	}

	sb := &tablet.Superblock{
		TabletID:  id,
		TableName: spec.TableName,
		DataState: tablet.StateCopying,
	}
	if err := c.writeSuperblock(ctx, sb); err != nil {
		return nil, fmt.Errorf("write initial superblock: %w", err)
	}

	// Leftovers of an earlier, purged incarnation.
	if _, err := c.wal.DeleteIfPresent(id); err != nil {
		return nil, err
	}
	if _, err := c.blocks.DeleteByPrefix(ctx, blocks.TabletPrefix(id)); err != nil {
		return nil, fmt.Errorf("clear blocks of %s: %w", id, err)
	}

	refs, err := blocks.WriteTabletBlocks(ctx, c.blocks, id, spec.Blocks)
	if err != nil {
		return nil, err
	}

	if err := c.writeWAL(id, spec); err != nil {
		return nil, err
	}

	meta := &consensus.Meta{TabletID: id, CurrentTerm: spec.Term, Peers: spec.Peers}
	if err := c.cmeta.Flush(ctx, meta); err != nil {
		return nil, fmt.Errorf("write consensus metadata: %w", err)
	}

	sb.DataState = tablet.StateReady
	sb.BlockRefs = refs
	if err := c.writeSuperblock(ctx, sb); err != nil {
		return nil, fmt.Errorf("write ready superblock: %w", err)
	}

	logger.InfoCtx(ctx, "Tablet created",
		logger.KeyBlocks, len(refs),
		logger.KeySegments, spec.WALSegments,
		logger.KeyTerm, spec.Term)
	return sb.Clone(), nil
}

func (c *Controller) writeWAL(id string, spec CreateSpec) error {
	l, err := c.wal.Open(id)
	if err != nil {
		return err
	}
	for i := 0; i < spec.WALSegments; i++ {
		if i > 0 {
			if err := l.Roll(); err != nil {
				_ = l.Close()
				return fmt.Errorf("roll WAL of %s: %w", id, err)
			}
		}
		entry := wal.Entry{
			OpID:    tablet.OpID{Term: spec.Term, Index: uint64(i + 1)},
			Payload: []byte(fmt.Sprintf("%s:%d", id, i+1)),
		}
		if err := l.Append(entry); err != nil {
			_ = l.Close()
			return fmt.Errorf("append to WAL of %s: %w", id, err)
		}
	}
	if err := l.Sync(); err != nil {
		_ = l.Close()
		return fmt.Errorf("sync WAL of %s: %w", id, err)
	}
	return l.Close()
}

// PurgeTablet removes the superblock of a DELETED replica. The tablet id is
// unknown afterwards.
func (c *Controller) PurgeTablet(ctx context.Context, tabletID string) (err error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return err
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext(tabletID, "purge_tablet"))
	ctx, span := telemetry.StartTabletSpan(ctx, telemetry.SpanPurgeTablet, tabletID)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	release, err := c.BeginOperation(tabletID, "purge_tablet")
	if err != nil {
		return err
	}
	defer release()

	return c.purgeLocked(ctx, tabletID)
}

func (c *Controller) purgeLocked(ctx context.Context, tabletID string) error {
	sb, err := c.readSuperblock(ctx, tabletID)
	if err != nil {
		return err
	}
	if sb.DataState != tablet.StateDeleted || sb.HasPending() {
		return tablet.NewError(tablet.ErrIllegalState, tabletID,
			"only a DELETED replica can be purged (state %s, pending %s)", sb.DataState, sb.PendingTargetState)
	}
	if err := c.CheckInvariants(ctx, sb); err != nil {
		return err
	}
	if _, err := c.meta.DeleteSuperblock(ctx, tabletID); err != nil {
		return fmt.Errorf("delete superblock %s: %w", tabletID, err)
	}
	logger.InfoCtx(ctx, "Tablet purged")
	return nil
}

// GetTablet returns the superblock of tabletID.
func (c *Controller) GetTablet(ctx context.Context, tabletID string) (*tablet.Superblock, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return nil, err
	}
	return c.readSuperblock(ctx, tabletID)
}

// ListTablets returns every replica's superblock, tombstoned and deleted ones
// included. Unreadable superblocks are logged and skipped.
func (c *Controller) ListTablets(ctx context.Context) ([]*tablet.Superblock, error) {
	ids, err := c.meta.ListTabletIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tablets: %w", err)
	}

	out := make([]*tablet.Superblock, 0, len(ids))
	for _, id := range ids {
		sb, err := c.meta.ReadSuperblock(ctx, id)
		if err != nil {
			if errors.Is(err, diskfmt.ErrCorrupted) || errors.Is(err, diskfmt.ErrVersionMismatch) {
				logger.WarnCtx(ctx, "Skipping unreadable superblock", logger.TabletID(id), logger.Err(err))
				continue
			}
			if errors.Is(err, metadata.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("read superblock %s: %w", id, err)
		}
		out = append(out, sb)
	}
	return out, nil
}

// Status summarizes a replica and its artifacts.
type Status struct {
	Superblock       *tablet.Superblock
	Blocks           int
	WALSegments      int
	HasConsensusMeta bool
	InFlight         bool
	Violations       []string
}

// Describe returns the superblock of tabletID together with a census of its
// artifacts.
func (c *Controller) Describe(ctx context.Context, tabletID string) (*Status, error) {
	sb, err := c.GetTablet(ctx, tabletID)
	if err != nil {
		return nil, err
	}

	st := &Status{Superblock: sb}
	if st.Blocks, err = blocks.CountTabletBlocks(ctx, c.blocks, tabletID); err != nil {
		return nil, err
	}
	if st.WALSegments, err = c.wal.SegmentCount(tabletID); err != nil {
		return nil, err
	}
	if st.HasConsensusMeta, err = c.cmeta.Exists(ctx, tabletID); err != nil {
		return nil, err
	}
	if st.Violations, err = c.Violations(ctx, sb); err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, st.InFlight = c.inflight[tabletID]
	c.mu.Unlock()
	return st, nil
}

// CheckLeaderClaim validates a leadership claim made at term against the
// replica's consensus metadata. Tombstoned replicas keep their metadata and
// still refuse stale terms; deleted or unknown replicas return NotFound.
func (c *Controller) CheckLeaderClaim(ctx context.Context, tabletID string, term uint64) error {
	sb, err := c.GetTablet(ctx, tabletID)
	if err != nil {
		return err
	}
	if sb.EffectiveState() == tablet.StateDeleted {
		return tablet.NotFound(tabletID)
	}

	meta, err := c.cmeta.Load(ctx, tabletID)
	if errors.Is(err, consensus.ErrNotFound) {
		return tablet.NotFound(tabletID)
	}
	if err != nil {
		return fmt.Errorf("load consensus metadata of %s: %w", tabletID, err)
	}

	if !meta.AcceptsTerm(term) {
		return tablet.NewError(tablet.ErrStaleTerm, tabletID,
			"term %d is older than current term %d", term, meta.CurrentTerm)
	}
	return nil
}

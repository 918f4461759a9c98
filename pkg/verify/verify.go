// Package verify inspects a data root from the outside, the way an operator
// or an integration test would. Nothing here writes to disk.
//
// The checks read files directly rather than going through the stores, so
// they observe exactly what survived a crash.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/fsmanager"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

// ErrMismatch is wrapped by every failed check.
var ErrMismatch = errors.New("verification failed")

// CountFilesInDir counts regular files directly under dir, ignoring
// in-progress temp files. A missing directory holds zero files.
func CountFilesInDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), diskfmt.TempSuffix) {
			n++
		}
	}
	return n, nil
}

// CountWALSegments counts segment files across every tablet under walRoot.
func CountWALSegments(walRoot string) (int, error) {
	entries, err := os.ReadDir(walRoot)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := countSegments(filepath.Join(walRoot, e.Name()))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CountWALSegmentsForTablet counts the segment files of one tablet.
func CountWALSegmentsForTablet(walRoot, tabletID string) (int, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return 0, err
	}
	return countSegments(filepath.Join(walRoot, tabletID))
}

func countSegments(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), wal.SegmentPrefix) {
			n++
		}
	}
	return n, nil
}

// ConsensusMetaExists reports whether tabletID has a consensus metadata file.
func ConsensusMetaExists(cmetaDir, tabletID string) (bool, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(cmetaDir, tabletID))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// CountReplicasInMetadataDir counts superblock files, deleted replicas
// included until they are purged.
func CountReplicasInMetadataDir(metaDir string) (int, error) {
	return CountFilesInDir(metaDir)
}

// ReadSuperblock decodes tabletID's superblock file. A corrupt record is an
// error.
func ReadSuperblock(metaDir, tabletID string) (*tablet.Superblock, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return nil, err
	}
	payload, err := diskfmt.ReadRecordFile(filepath.Join(metaDir, tabletID), metadata.Magic())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("superblock %s: %w", tabletID, metadata.ErrNotFound)
		}
		return nil, fmt.Errorf("superblock %s: %w", tabletID, err)
	}
	return metadata.Unmarshal(payload)
}

// Checker runs state checks against one data root. Blocks is the block store
// in use; when nil, blocks are counted in the filesystem data directory.
type Checker struct {
	Layout fsmanager.Layout
	Blocks blocks.Store
}

// NewChecker returns a checker for the data root at root.
func NewChecker(root string, bs blocks.Store) *Checker {
	return &Checker{Layout: fsmanager.NewLayout(root), Blocks: bs}
}

func (c *Checker) countBlocks(ctx context.Context, tabletID string) (int, error) {
	if c.Blocks != nil {
		return blocks.CountTabletBlocks(ctx, c.Blocks, tabletID)
	}
	return CountFilesInDir(filepath.Join(c.Layout.DataDir(), tabletID))
}

// CheckNoData verifies tabletID has no data blocks and no WAL segments.
func (c *Checker) CheckNoData(ctx context.Context, tabletID string) error {
	nBlocks, err := c.countBlocks(ctx, tabletID)
	if err != nil {
		return err
	}
	nSegments, err := CountWALSegmentsForTablet(c.Layout.WALRoot(), tabletID)
	if err != nil {
		return err
	}
	if nBlocks > 0 || nSegments > 0 {
		return fmt.Errorf("%w: tablet %s has %d blocks and %d WAL segments", ErrMismatch, tabletID, nBlocks, nSegments)
	}
	if _, err := os.Stat(c.Layout.WALDir(tabletID)); err == nil {
		return fmt.Errorf("%w: tablet %s still has a WAL directory", ErrMismatch, tabletID)
	}
	return nil
}

// CheckTombstoned verifies tabletID is durably TOMBSTONED: superblock state,
// no data, consensus metadata kept.
func (c *Checker) CheckTombstoned(ctx context.Context, tabletID string) error {
	return c.checkTerminal(ctx, tabletID, tablet.StateTombstoned, true)
}

// CheckDeleted verifies tabletID is durably DELETED: superblock state, no
// data, no consensus metadata.
func (c *Checker) CheckDeleted(ctx context.Context, tabletID string) error {
	return c.checkTerminal(ctx, tabletID, tablet.StateDeleted, false)
}

func (c *Checker) checkTerminal(ctx context.Context, tabletID string, want tablet.DataState, wantMeta bool) error {
	sb, err := ReadSuperblock(c.Layout.TabletMetaDir(), tabletID)
	if err != nil {
		return err
	}
	if sb.DataState != want {
		return fmt.Errorf("%w: tablet %s is %s, want %s", ErrMismatch, tabletID, sb.DataState, want)
	}
	if sb.HasPending() {
		return fmt.Errorf("%w: tablet %s has pending state %s", ErrMismatch, tabletID, sb.PendingTargetState)
	}
	if len(sb.BlockRefs) > 0 {
		return fmt.Errorf("%w: tablet %s superblock references %d blocks", ErrMismatch, tabletID, len(sb.BlockRefs))
	}
	if err := c.CheckNoData(ctx, tabletID); err != nil {
		return err
	}

	hasMeta, err := ConsensusMetaExists(c.Layout.ConsensusMetaDir(), tabletID)
	if err != nil {
		return err
	}
	if hasMeta != wantMeta {
		return fmt.Errorf("%w: tablet %s consensus metadata present=%t, want %t", ErrMismatch, tabletID, hasMeta, wantMeta)
	}
	return nil
}

// WatchDirs returns the directories whose changes can affect tabletID's
// checks.
func (c *Checker) WatchDirs(tabletID string) []string {
	return []string{
		c.Layout.TabletMetaDir(),
		c.Layout.WALRoot(),
		c.Layout.WALDir(tabletID),
		c.Layout.ConsensusMetaDir(),
		filepath.Join(c.Layout.DataDir(), tabletID),
	}
}

// Package lifecycletest builds lifecycle controllers over real on-disk stores
// for tests in this and dependent packages.
package lifecycletest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/blocks/store/memory"
	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/consensus"
	"github.com/marmos91/tabletd/pkg/lifecycle"
	"github.com/marmos91/tabletd/pkg/metadata"
	metafs "github.com/marmos91/tabletd/pkg/metadata/fs"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/wal"
)

// Env is one data root: superblocks, WALs and consensus metadata on disk,
// blocks in memory. The block store survives Restart like a remote store
// would.
type Env struct {
	t    *testing.T
	Root string

	Meta      metadata.Store
	WAL       *wal.Manager
	Consensus *consensus.Store
	Blocks    blocks.Store
}

// New creates an empty environment under t.TempDir().
func New(t *testing.T) *Env {
	t.Helper()
	e := &Env{t: t, Root: t.TempDir(), Blocks: memory.New()}
	e.open()
	return e
}

// WithBlocks replaces the block store, typically with a wrapper.
func (e *Env) WithBlocks(s blocks.Store) *Env {
	e.Blocks = s
	return e
}

func (e *Env) open() {
	e.t.Helper()

	meta, err := metafs.New(metafs.Config{Dir: filepath.Join(e.Root, "tablet-meta")})
	if err != nil {
		e.t.Fatalf("open metadata store: %v", err)
	}
	w, err := wal.NewManager(filepath.Join(e.Root, "wals"), wal.Options{})
	if err != nil {
		e.t.Fatalf("open WAL manager: %v", err)
	}
	cm, err := consensus.NewStore(filepath.Join(e.Root, "consensus-meta"))
	if err != nil {
		e.t.Fatalf("open consensus store: %v", err)
	}
	e.Meta, e.WAL, e.Consensus = meta, w, cm
	e.t.Cleanup(func() {
		_ = w.Close()
		_ = meta.Close()
	})
}

// Restart reopens the on-disk stores, as a process restart would.
func (e *Env) Restart() {
	e.t.Helper()
	_ = e.WAL.Close()
	_ = e.Meta.Close()
	e.open()
}

// Controller builds a controller over the environment's stores. A nil
// strategy means Noop.
func (e *Env) Controller(hook checkpoint.Strategy, opts ...func(*lifecycle.Options)) *lifecycle.Controller {
	e.t.Helper()
	o := lifecycle.Options{
		Metadata:    e.Meta,
		WAL:         e.WAL,
		Consensus:   e.Consensus,
		Blocks:      e.Blocks,
		Checkpoints: hook,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := lifecycle.New(o)
	if err != nil {
		e.t.Fatalf("lifecycle.New() error = %v", err)
	}
	return c
}

// CreateReady creates a READY tablet with nBlocks blocks and nSegments WAL
// segments.
func (e *Env) CreateReady(c *lifecycle.Controller, tabletID string, nBlocks, nSegments int) *tablet.Superblock {
	e.t.Helper()
	payloads := make([][]byte, nBlocks)
	for i := range payloads {
		payloads[i] = []byte(tabletID + "-block")
	}
	sb, err := c.CreateTablet(context.Background(), lifecycle.CreateSpec{
		TabletID:    tabletID,
		TableName:   "test_table",
		Blocks:      payloads,
		WALSegments: nSegments,
		Term:        1,
		Peers:       []string{"ts-1", "ts-2", "ts-3"},
	})
	if err != nil {
		e.t.Fatalf("CreateTablet(%s) error = %v", tabletID, err)
	}
	return sb
}

// Artifacts is a census of one tablet's on-disk state.
type Artifacts struct {
	State            tablet.DataState
	Pending          tablet.DataState
	Blocks           int
	WALSegments      int
	HasWALDir        bool
	HasConsensusMeta bool
}

// Inspect reads the artifacts of tabletID directly from the stores.
func (e *Env) Inspect(tabletID string) Artifacts {
	e.t.Helper()
	ctx := context.Background()

	var a Artifacts
	sb, err := e.Meta.ReadSuperblock(ctx, tabletID)
	if err != nil {
		e.t.Fatalf("ReadSuperblock(%s) error = %v", tabletID, err)
	}
	a.State, a.Pending = sb.DataState, sb.PendingTargetState

	if a.Blocks, err = blocks.CountTabletBlocks(ctx, e.Blocks, tabletID); err != nil {
		e.t.Fatalf("CountTabletBlocks(%s) error = %v", tabletID, err)
	}
	if a.WALSegments, err = e.WAL.SegmentCount(tabletID); err != nil {
		e.t.Fatalf("SegmentCount(%s) error = %v", tabletID, err)
	}
	if a.HasWALDir, err = e.WAL.HasSegments(tabletID); err != nil {
		e.t.Fatalf("HasSegments(%s) error = %v", tabletID, err)
	}
	if a.HasConsensusMeta, err = e.Consensus.Exists(ctx, tabletID); err != nil {
		e.t.Fatalf("Exists(%s) error = %v", tabletID, err)
	}
	return a
}

// Package storetest is a conformance suite every metadata.Store
// implementation must pass.
package storetest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// StoreFactory creates a fresh store for each test. It receives *testing.T so
// it can use t.TempDir() and t.Cleanup().
type StoreFactory func(t *testing.T) metadata.Store

// RunConformanceSuite runs every conformance test against factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("WriteAndRead", func(t *testing.T) { testWriteAndRead(t, factory(t)) })
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, factory(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory(t)) })
	t.Run("List", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("RejectsInvalid", func(t *testing.T) { testRejectsInvalid(t, factory(t)) })
	t.Run("ConcurrentTablets", func(t *testing.T) { testConcurrentTablets(t, factory(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory(t)) })
}

func readySuperblock(id string) *tablet.Superblock {
	return &tablet.Superblock{
		TabletID:  id,
		TableName: "orders",
		DataState: tablet.StateReady,
		BlockRefs: []string{id + "/b1", id + "/b2"},
		Version:   1,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func testWriteAndRead(t *testing.T, s metadata.Store) {
	ctx := t.Context()
	sb := readySuperblock("t1")

	if err := s.WriteSuperblock(ctx, sb); err != nil {
		t.Fatalf("WriteSuperblock() failed: %v", err)
	}

	ok, err := s.Exists(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}

	got, err := s.ReadSuperblock(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadSuperblock() failed: %v", err)
	}
	if got.DataState != tablet.StateReady || got.TableName != "orders" || len(got.BlockRefs) != 2 {
		t.Errorf("ReadSuperblock() = %+v, want %+v", got, sb)
	}
	if !got.UpdatedAt.Equal(sb.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, sb.UpdatedAt)
	}

	// Returned superblocks are copies.
	got.BlockRefs[0] = "mutated"
	again, err := s.ReadSuperblock(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadSuperblock() failed: %v", err)
	}
	if again.BlockRefs[0] != "t1/b1" {
		t.Errorf("store shares memory with caller: %v", again.BlockRefs)
	}
}

func testReadMissing(t *testing.T, s metadata.Store) {
	ctx := t.Context()

	if _, err := s.ReadSuperblock(ctx, "ghost"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("ReadSuperblock(missing) error = %v, want ErrNotFound", err)
	}
	ok, err := s.Exists(ctx, "ghost")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}

func testOverwrite(t *testing.T, s metadata.Store) {
	ctx := t.Context()
	sb := readySuperblock("t1")
	if err := s.WriteSuperblock(ctx, sb); err != nil {
		t.Fatalf("WriteSuperblock() failed: %v", err)
	}

	pending := sb.Clone()
	pending.PendingTargetState = tablet.StateTombstoned
	pending.TombstoneLastLoggedOpID = &tablet.OpID{Term: 3, Index: 17}
	pending.Version = 2
	if err := s.WriteSuperblock(ctx, pending); err != nil {
		t.Fatalf("WriteSuperblock(pending) failed: %v", err)
	}

	got, err := s.ReadSuperblock(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadSuperblock() failed: %v", err)
	}
	if got.PendingTargetState != tablet.StateTombstoned || got.Version != 2 {
		t.Errorf("pending not persisted: %+v", got)
	}
	if got.TombstoneLastLoggedOpID == nil || *got.TombstoneLastLoggedOpID != (tablet.OpID{Term: 3, Index: 17}) {
		t.Errorf("opid not persisted: %+v", got.TombstoneLastLoggedOpID)
	}

	final := &tablet.Superblock{TabletID: "t1", DataState: tablet.StateTombstoned, Version: 3}
	if err := s.WriteSuperblock(ctx, final); err != nil {
		t.Fatalf("WriteSuperblock(final) failed: %v", err)
	}
	got, err = s.ReadSuperblock(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadSuperblock() failed: %v", err)
	}
	if got.HasPending() || len(got.BlockRefs) != 0 || got.DataState != tablet.StateTombstoned {
		t.Errorf("final superblock = %+v", got)
	}
}

func testDeleteIdempotent(t *testing.T, s metadata.Store) {
	ctx := t.Context()
	if err := s.WriteSuperblock(ctx, readySuperblock("t1")); err != nil {
		t.Fatalf("WriteSuperblock() failed: %v", err)
	}

	removed, err := s.DeleteSuperblock(ctx, "t1")
	if err != nil || !removed {
		t.Fatalf("DeleteSuperblock() = %v, %v; want true, nil", removed, err)
	}
	removed, err = s.DeleteSuperblock(ctx, "t1")
	if err != nil || removed {
		t.Fatalf("second DeleteSuperblock() = %v, %v; want false, nil", removed, err)
	}
	if _, err := s.ReadSuperblock(ctx, "t1"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("ReadSuperblock(deleted) error = %v, want ErrNotFound", err)
	}
}

func testList(t *testing.T, s metadata.Store) {
	ctx := t.Context()

	ids, err := s.ListTabletIDs(ctx)
	if err != nil {
		t.Fatalf("ListTabletIDs() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("empty store lists %v", ids)
	}

	for _, id := range []string{"c", "a", "b"} {
		if err := s.WriteSuperblock(ctx, readySuperblock(id)); err != nil {
			t.Fatalf("WriteSuperblock(%s) failed: %v", id, err)
		}
	}
	if _, err := s.DeleteSuperblock(ctx, "b"); err != nil {
		t.Fatalf("DeleteSuperblock() failed: %v", err)
	}

	ids, err = s.ListTabletIDs(ctx)
	if err != nil {
		t.Fatalf("ListTabletIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("ListTabletIDs() = %v, want [a c]", ids)
	}
}

func testRejectsInvalid(t *testing.T, s metadata.Store) {
	ctx := t.Context()

	bad := &tablet.Superblock{TabletID: "t1", DataState: tablet.StateTombstoned, BlockRefs: []string{"t1/x"}}
	if err := s.WriteSuperblock(ctx, bad); err == nil {
		t.Error("WriteSuperblock() accepted a tombstoned superblock with block refs")
	}
	if err := s.WriteSuperblock(ctx, &tablet.Superblock{DataState: tablet.StateReady}); err == nil {
		t.Error("WriteSuperblock() accepted an empty tablet id")
	}
}

func testConcurrentTablets(t *testing.T, s metadata.Store) {
	ctx := t.Context()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a'+n%26)) + string(rune('0'+n/26))
			errs <- s.WriteSuperblock(ctx, readySuperblock(id))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent WriteSuperblock() failed: %v", err)
		}
	}

	ids, err := s.ListTabletIDs(ctx)
	if err != nil {
		t.Fatalf("ListTabletIDs() failed: %v", err)
	}
	if len(ids) != 32 {
		t.Errorf("ListTabletIDs() returned %d ids, want 32", len(ids))
	}
}

func testClosed(t *testing.T, s metadata.Store) {
	ctx := t.Context()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := s.ReadSuperblock(ctx, "t1"); !errors.Is(err, metadata.ErrStoreClosed) {
		t.Errorf("ReadSuperblock() after Close error = %v, want ErrStoreClosed", err)
	}
	if err := s.WriteSuperblock(ctx, readySuperblock("t1")); !errors.Is(err, metadata.ErrStoreClosed) {
		t.Errorf("WriteSuperblock() after Close error = %v, want ErrStoreClosed", err)
	}
}

// Package storetest provides a conformance suite run against every
// blocks.Store implementation.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/tabletd/pkg/blocks"
)

// StoreFactory creates a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) blocks.Store

// RunConformanceSuite runs every conformance test against the factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Run("WriteAndRead", func(t *testing.T) { testWriteAndRead(t, factory) })
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, factory) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("PrefixIsolation", func(t *testing.T) { testPrefixIsolation(t, factory) })
	t.Run("DeleteByPrefixRepeat", func(t *testing.T) { testDeleteByPrefixRepeat(t, factory) })
	t.Run("TabletHelpers", func(t *testing.T) { testTabletHelpers(t, factory) })
	t.Run("RejectsInvalidKey", func(t *testing.T) { testRejectsInvalidKey(t, factory) })
	t.Run("ConcurrentTablets", func(t *testing.T) { testConcurrentTablets(t, factory) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory) })
}

func testWriteAndRead(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	data := []byte("block payload")
	if err := s.WriteBlock(ctx, "t1/b1", data); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}

	got, err := s.ReadBlock(ctx, "t1/b1")
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBlock() = %q, want %q", got, data)
	}

	has, err := s.HasBlock(ctx, "t1/b1")
	if err != nil || !has {
		t.Errorf("HasBlock() = %v, %v; want true", has, err)
	}

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func testReadMissing(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	if _, err := s.ReadBlock(ctx, "t1/missing"); !errors.Is(err, blocks.ErrBlockNotFound) {
		t.Errorf("ReadBlock() error = %v, want ErrBlockNotFound", err)
	}
	has, err := s.HasBlock(ctx, "t1/missing")
	if err != nil || has {
		t.Errorf("HasBlock() = %v, %v; want false", has, err)
	}
}

func testDeleteIdempotent(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	if err := s.WriteBlock(ctx, "t1/b1", []byte("x")); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.DeleteBlock(ctx, "t1/b1"); err != nil {
			t.Fatalf("DeleteBlock() #%d error = %v", i+1, err)
		}
	}
	if has, _ := s.HasBlock(ctx, "t1/b1"); has {
		t.Error("block still present after delete")
	}
}

func testPrefixIsolation(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	for _, key := range []string{"t1/a", "t1/b", "t10/a", "t2/a"} {
		if err := s.WriteBlock(ctx, key, []byte(key)); err != nil {
			t.Fatalf("WriteBlock(%s) error = %v", key, err)
		}
	}

	keys, err := s.ListByPrefix(ctx, blocks.TabletPrefix("t1"))
	if err != nil {
		t.Fatalf("ListByPrefix() error = %v", err)
	}
	if fmt.Sprint(keys) != "[t1/a t1/b]" {
		t.Errorf("ListByPrefix(t1/) = %v, want [t1/a t1/b]", keys)
	}

	removed, err := s.DeleteByPrefix(ctx, blocks.TabletPrefix("t1"))
	if err != nil {
		t.Fatalf("DeleteByPrefix() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteByPrefix() removed %d, want 2", removed)
	}

	all, err := s.ListByPrefix(ctx, "")
	if err != nil {
		t.Fatalf("ListByPrefix(\"\") error = %v", err)
	}
	if fmt.Sprint(all) != "[t10/a t2/a]" {
		t.Errorf("remaining keys = %v, want [t10/a t2/a]", all)
	}
}

func testDeleteByPrefixRepeat(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	if err := s.WriteBlock(ctx, "t1/a", []byte("a")); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	if _, err := s.DeleteByPrefix(ctx, "t1/"); err != nil {
		t.Fatalf("DeleteByPrefix() error = %v", err)
	}
	removed, err := s.DeleteByPrefix(ctx, "t1/")
	if err != nil {
		t.Fatalf("second DeleteByPrefix() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("second DeleteByPrefix() removed %d, want 0", removed)
	}

	keys, err := s.ListByPrefix(ctx, "t1/")
	if err != nil {
		t.Fatalf("ListByPrefix() error = %v", err)
	}
	if keys == nil || len(keys) != 0 {
		t.Errorf("ListByPrefix() = %#v, want empty non-nil slice", keys)
	}
}

func testTabletHelpers(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	keys, err := blocks.WriteTabletBlocks(ctx, s, "t1", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	if err != nil {
		t.Fatalf("WriteTabletBlocks() error = %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("WriteTabletBlocks() returned %d keys, want 3", len(keys))
	}

	n, err := blocks.CountTabletBlocks(ctx, s, "t1")
	if err != nil || n != 3 {
		t.Fatalf("CountTabletBlocks() = %d, %v; want 3", n, err)
	}

	removed, err := blocks.DeleteTabletBlocks(ctx, s, "t1", keys)
	if err != nil {
		t.Fatalf("DeleteTabletBlocks() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("DeleteTabletBlocks() removed %d, want 3", removed)
	}

	removed, err = blocks.DeleteTabletBlocks(ctx, s, "t1", keys)
	if err != nil || removed != 0 {
		t.Errorf("repeat DeleteTabletBlocks() = %d, %v; want 0, nil", removed, err)
	}
}

func testRejectsInvalidKey(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	for _, key := range []string{"", "noslash", "t1/", "../t1/x", "t1/a/b"} {
		if err := s.WriteBlock(ctx, key, []byte("x")); err == nil {
			t.Errorf("WriteBlock(%q) succeeded", key)
		}
	}
}

func testConcurrentTablets(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("tablet-%d", i)
			if _, err := blocks.WriteTabletBlocks(ctx, s, id, [][]byte{[]byte("a"), []byte("b")}); err != nil {
				errs <- err
				return
			}
			if i%2 == 0 {
				if _, err := blocks.DeleteTabletBlocks(ctx, s, id, nil); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation error = %v", err)
	}

	all, err := s.ListByPrefix(ctx, "")
	if err != nil {
		t.Fatalf("ListByPrefix() error = %v", err)
	}
	if len(all) != 8 {
		t.Errorf("remaining blocks = %d, want 8", len(all))
	}
}

func testClosed(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	s := factory(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.WriteBlock(ctx, "t1/a", []byte("a")); !errors.Is(err, blocks.ErrStoreClosed) {
		t.Errorf("WriteBlock() error = %v, want ErrStoreClosed", err)
	}
	if _, err := s.ListByPrefix(ctx, ""); !errors.Is(err, blocks.ErrStoreClosed) {
		t.Errorf("ListByPrefix() error = %v, want ErrStoreClosed", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, blocks.ErrStoreClosed) {
		t.Errorf("HealthCheck() error = %v, want ErrStoreClosed", err)
	}
}

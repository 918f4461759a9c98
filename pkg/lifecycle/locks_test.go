package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestLockTable_TryLock(t *testing.T) {
	lt := newLockTable()

	release, _, ok := lt.tryLock("t1", "delete_tablet")
	if !ok {
		t.Fatal("tryLock() on a free tablet failed")
	}
	if got := lt.holder("t1"); got != "delete_tablet" {
		t.Errorf("holder() = %q, want delete_tablet", got)
	}

	if _, holder, ok := lt.tryLock("t1", "bootstrap"); ok || holder != "delete_tablet" {
		t.Errorf("tryLock() on a held tablet = %q, %v", holder, ok)
	}
	if _, _, ok := lt.tryLock("t2", "bootstrap"); !ok {
		t.Error("tryLock() on another tablet failed")
	}

	release()
	release()
	if _, _, ok := lt.tryLock("t1", "bootstrap"); !ok {
		t.Error("tryLock() after release failed")
	}
}

func TestLockTable_EntriesFreedWhenUnused(t *testing.T) {
	lt := newLockTable()

	r1, _, _ := lt.tryLock("t1", "a")
	r2, _, _ := lt.tryLock("t2", "b")
	if got := lt.size(); got != 2 {
		t.Fatalf("size() = %d, want 2", got)
	}
	r1()
	r2()
	if got := lt.size(); got != 0 {
		t.Errorf("size() = %d after release, want 0", got)
	}
}

func TestLockTable_LockWaits(t *testing.T) {
	lt := newLockTable()
	release, _, _ := lt.tryLock("t1", "a")

	acquired := make(chan func())
	go func() {
		r, err := lt.lock(context.Background(), "t1", "b")
		if err != nil {
			t.Errorf("lock() error = %v", err)
		}
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("lock() returned while the tablet was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	r := <-acquired
	if got := lt.holder("t1"); got != "b" {
		t.Errorf("holder() = %q, want b", got)
	}
	r()
}

func TestLockTable_LockHonorsDeadline(t *testing.T) {
	lt := newLockTable()
	release, _, _ := lt.tryLock("t1", "a")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := lt.lock(ctx, "t1", "b"); err == nil {
		t.Fatal("lock() succeeded on a held tablet")
	}
	if got := lt.size(); got != 1 {
		t.Errorf("size() = %d, want 1", got)
	}
}

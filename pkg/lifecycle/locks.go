package lifecycle

import (
	"context"
	"sync"
)

// lockTable hands out one exclusive lock per tablet id. Entries exist only
// while someone holds or waits for them.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem    chan struct{}
	refs   int
	holder string
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

func (lt *lockTable) ref(tabletID string) *lockEntry {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e, ok := lt.entries[tabletID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		lt.entries[tabletID] = e
	}
	e.refs++
	return e
}

func (lt *lockTable) unref(tabletID string, e *lockEntry) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(lt.entries, tabletID)
	}
}

func (lt *lockTable) granted(tabletID string, e *lockEntry, operation string) func() {
	lt.mu.Lock()
	e.holder = operation
	lt.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lt.mu.Lock()
			e.holder = ""
			lt.mu.Unlock()
			<-e.sem
			lt.unref(tabletID, e)
		})
	}
}

// tryLock acquires the lock without waiting. On contention it returns the
// name of the operation holding it.
func (lt *lockTable) tryLock(tabletID, operation string) (release func(), holder string, ok bool) {
	e := lt.ref(tabletID)
	select {
	case e.sem <- struct{}{}:
		return lt.granted(tabletID, e, operation), "", true
	default:
		lt.mu.Lock()
		holder = e.holder
		lt.mu.Unlock()
		lt.unref(tabletID, e)
		return nil, holder, false
	}
}

// lock waits for the lock until ctx is done.
func (lt *lockTable) lock(ctx context.Context, tabletID, operation string) (func(), error) {
	e := lt.ref(tabletID)
	select {
	case e.sem <- struct{}{}:
		return lt.granted(tabletID, e, operation), nil
	case <-ctx.Done():
		lt.unref(tabletID, e)
		return nil, ctx.Err()
	}
}

// holder returns the operation holding tabletID's lock, or "".
func (lt *lockTable) holder(tabletID string) string {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if e, ok := lt.entries[tabletID]; ok {
		return e.holder
	}
	return ""
}

// size returns the number of live entries.
func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.entries)
}

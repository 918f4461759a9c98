// Package memory provides an in-memory superblock store for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Store is an in-memory implementation of metadata.Store.
type Store struct {
	mu          sync.RWMutex
	superblocks map[string]*tablet.Superblock
	closed      bool
}

// New creates an empty store.
func New() *Store {
	return &Store{superblocks: make(map[string]*tablet.Superblock)}
}

// Exists reports whether a superblock is stored for tabletID.
func (s *Store) Exists(ctx context.Context, tabletID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, metadata.ErrStoreClosed
	}
	_, ok := s.superblocks[tabletID]
	return ok, nil
}

// ReadSuperblock returns a copy of the stored superblock.
func (s *Store) ReadSuperblock(ctx context.Context, tabletID string) (*tablet.Superblock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, metadata.ErrStoreClosed
	}
	sb, ok := s.superblocks[tabletID]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return sb.Clone(), nil
}

// WriteSuperblock stores a copy of sb.
func (s *Store) WriteSuperblock(ctx context.Context, sb *tablet.Superblock) error {
	if err := sb.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return metadata.ErrStoreClosed
	}
	s.superblocks[sb.TabletID] = sb.Clone()
	return nil
}

// DeleteSuperblock removes the superblock if present.
func (s *Store) DeleteSuperblock(ctx context.Context, tabletID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, metadata.ErrStoreClosed
	}
	_, ok := s.superblocks[tabletID]
	delete(s.superblocks, tabletID)
	return ok, nil
}

// ListTabletIDs returns stored tablet ids, sorted.
func (s *Store) ListTabletIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, metadata.ErrStoreClosed
	}
	ids := make([]string, 0, len(s.superblocks))
	for id := range s.superblocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ metadata.Store = (*Store)(nil)

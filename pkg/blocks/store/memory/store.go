// Package memory provides an in-memory block store implementation for testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/tabletd/pkg/blocks"
)

// Store is an in-memory implementation of blocks.Store.
type Store struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	closed bool
}

// New creates a new in-memory block store.
func New() *Store {
	return &Store{
		blocks: make(map[string][]byte),
	}
}

// WriteBlock stores a copy of data.
func (s *Store) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	if _, _, err := blocks.ParseKey(blockKey); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.blocks[blockKey] = copied
	return nil
}

// ReadBlock returns a copy of the stored block.
func (s *Store) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blocks.ErrStoreClosed
	}

	data, ok := s.blocks[blockKey]
	if !ok {
		return nil, blocks.ErrBlockNotFound
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// HasBlock reports whether the block is stored.
func (s *Store) HasBlock(ctx context.Context, blockKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, blocks.ErrStoreClosed
	}
	_, ok := s.blocks[blockKey]
	return ok, nil
}

// DeleteBlock removes a single block.
func (s *Store) DeleteBlock(ctx context.Context, blockKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}

	delete(s.blocks, blockKey)
	return nil
}

// DeleteByPrefix removes all blocks with a given prefix.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, blocks.ErrStoreClosed
	}

	removed := 0
	for key := range s.blocks {
		if strings.HasPrefix(key, prefix) {
			delete(s.blocks, key)
			removed++
		}
	}
	return removed, nil
}

// ListByPrefix lists all block keys with a given prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blocks.ErrStoreClosed
	}

	keys := []string{}
	for key := range s.blocks {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.blocks = nil
	return nil
}

// HealthCheck reports whether the store is open.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}
	return nil
}

var _ blocks.Store = (*Store)(nil)

// Package badger provides a BadgerDB-backed block store implementation.
//
// Key Namespace:
//
//	b:<tabletID>/<blockID>  ->  raw block bytes
//
// Prefix scans map directly onto Badger's sorted iteration, so listing or
// deleting a tablet's blocks touches only that tablet's keys.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/blocks"
)

const keyPrefix = "b:"

// deleteBatchSize bounds the keys removed per transaction.
const deleteBatchSize = 1000

// Config holds configuration for the Badger block store.
type Config struct {
	// Dir is the Badger database directory.
	Dir string

	// InMemory runs Badger without touching disk. Dir is ignored.
	InMemory bool

	// SyncWrites makes every write durable before returning.
	SyncWrites bool
}

// Store is a BadgerDB implementation of blocks.Store.
type Store struct {
	db *badgerdb.DB

	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the Badger database.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger dir is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	logger.Debug("Opened badger block store", logger.KeyPath, cfg.Dir, "in_memory", cfg.InMemory)
	return &Store{db: db}, nil
}

func dbKey(blockKey string) []byte {
	return []byte(keyPrefix + blockKey)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return blocks.ErrStoreClosed
	}
	return nil
}

// WriteBlock stores the block.
func (s *Store) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, _, err := blocks.ParseKey(blockKey); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(dbKey(blockKey), append([]byte(nil), data...))
	})
}

// ReadBlock reads a complete block.
func (s *Store) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(dbKey(blockKey))
		if err == badgerdb.ErrKeyNotFound {
			return blocks.ErrBlockNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// HasBlock reports whether the block exists.
func (s *Store) HasBlock(ctx context.Context, blockKey string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(dbKey(blockKey))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// DeleteBlock removes a single block.
func (s *Store) DeleteBlock(ctx context.Context, blockKey string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(dbKey(blockKey))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// DeleteByPrefix removes all blocks with a given prefix in bounded batches.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	keys, err := s.scan(prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		end := min(start+deleteBatchSize, len(keys))
		batch := keys[start:end]
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(dbKey(key)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("delete blocks: %w", err)
		}
		removed += len(batch)
	}
	return removed, nil
}

// ListByPrefix lists all block keys with a given prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.scan(prefix)
}

func (s *Store) scan(prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = dbKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// HealthCheck verifies the database can serve a read transaction.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.View(func(txn *badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

var _ blocks.Store = (*Store)(nil)

// CacheStats is a snapshot of Badger's block and index cache counters.
type CacheStats struct {
	BlockHits, BlockMisses uint64
	IndexHits, IndexMisses uint64
}

// CacheStats returns the current cache counters. Caches that Badger runs
// without report zero.
func (s *Store) CacheStats() CacheStats {
	var st CacheStats
	if m := s.db.BlockCacheMetrics(); m != nil {
		st.BlockHits, st.BlockMisses = m.Hits(), m.Misses()
	}
	if m := s.db.IndexCacheMetrics(); m != nil {
		st.IndexHits, st.IndexMisses = m.Hits(), m.Misses()
	}
	return st
}

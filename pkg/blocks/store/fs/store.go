// Package fs provides a filesystem-backed block store implementation.
package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/pkg/blocks"
)

// Store is a filesystem-backed implementation of blocks.Store.
// Each block is a file at <BasePath>/<tabletID>/<blockID>.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// Config holds configuration for the filesystem block store.
type Config struct {
	// BasePath is the root directory for block storage.
	BasePath string

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// New creates a new filesystem block store, creating the base directory.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}

	if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{basePath: cfg.BasePath, dirMode: cfg.DirMode, fileMode: cfg.FileMode}, nil
}

// BasePath returns the base path of the store.
func (s *Store) BasePath() string {
	return s.basePath
}

func (s *Store) blockPath(blockKey string) (string, error) {
	tabletID, blockID, err := blocks.ParseKey(blockKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, tabletID, blockID), nil
}

// WriteBlock writes the block through a temp file and rename.
func (s *Store) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	p, err := s.blockPath(blockKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(p), s.dirMode); err != nil {
		return err
	}

	tmpPath := p + diskfmt.TempSuffix
	if err := os.WriteFile(tmpPath, data, s.fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ReadBlock reads a complete block.
func (s *Store) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	p, err := s.blockPath(blockKey)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blocks.ErrStoreClosed
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, blocks.ErrBlockNotFound
	}
	return data, err
}

// HasBlock reports whether the block file exists.
func (s *Store) HasBlock(ctx context.Context, blockKey string) (bool, error) {
	p, err := s.blockPath(blockKey)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, blocks.ErrStoreClosed
	}

	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// DeleteBlock removes a single block file.
func (s *Store) DeleteBlock(ctx context.Context, blockKey string) error {
	p, err := s.blockPath(blockKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}

	if _, err := diskfmt.RemoveFileIfExists(p); err != nil {
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(p))
	return nil
}

// cleanEmptyDirs removes empty directories up to the base path.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// DeleteByPrefix removes all blocks with a given prefix, along with temp
// files left by writes that crashed before their rename. Only blocks are
// counted.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, blocks.ErrStoreClosed
	}

	keys, err := s.listLocked(prefix, true)
	if err != nil {
		return 0, err
	}

	removed := 0
	dirs := make(map[string]struct{})
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		p := filepath.Join(s.basePath, filepath.FromSlash(key))
		ok, err := diskfmt.RemoveFileIfExists(p)
		if err != nil {
			return removed, err
		}
		if ok && !strings.HasSuffix(key, diskfmt.TempSuffix) {
			removed++
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		s.cleanEmptyDirs(dir)
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
	return s.listLocked(prefix, false)
}

// listLocked walks the deepest directory named by prefix and filters keys.
// Temp files are returned only with withTemp set.
func (s *Store) listLocked(prefix string, withTemp bool) ([]string, error) {
	keys := []string{}

	root := s.basePath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir := path.Clean(prefix[:i])
		if dir == ".." || strings.HasPrefix(dir, "../") || path.IsAbs(dir) {
			return nil, blocks.ErrInvalidKey
		}
		root = filepath.Join(s.basePath, filepath.FromSlash(dir))
	}

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (!withTemp && strings.HasSuffix(p, diskfmt.TempSuffix)) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// HealthCheck verifies the base path is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blocks.ErrStoreClosed
	}
	_, err := os.Stat(s.basePath)
	return err
}

var _ blocks.Store = (*Store)(nil)

// Package fs stores superblocks as one file per tablet.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Config holds configuration for the filesystem superblock store.
type Config struct {
	// Dir is the tablet-metadata directory.
	Dir string

	// FileMode is the permission for superblock files.
	FileMode os.FileMode
}

// Store is a filesystem implementation of metadata.Store.
type Store struct {
	dir      string
	fileMode os.FileMode

	mu     sync.RWMutex
	closed bool
}

// New opens the store rooted at cfg.Dir, creating the directory if needed
// and removing temp files left by writes interrupted by a crash.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("metadata dir is required")
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}

	cleaned, err := diskfmt.CleanTempFiles(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("clean temp superblocks: %w", err)
	}
	if cleaned > 0 {
		logger.Warn("Removed interrupted superblock writes", logger.KeyPath, cfg.Dir, logger.KeyCount, cleaned)
	}

	return &Store{dir: cfg.Dir, fileMode: cfg.FileMode}, nil
}

// Dir returns the tablet-metadata directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(tabletID string) (string, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, tabletID), nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return metadata.ErrStoreClosed
	}
	return nil
}

// Exists reports whether a superblock file is present.
func (s *Store) Exists(ctx context.Context, tabletID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	p, err := s.path(tabletID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// ReadSuperblock loads and validates the superblock for tabletID.
func (s *Store) ReadSuperblock(ctx context.Context, tabletID string) (*tablet.Superblock, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	p, err := s.path(tabletID)
	if err != nil {
		return nil, err
	}

	payload, err := diskfmt.ReadRecordFile(p, metadata.Magic())
	if errors.Is(err, os.ErrNotExist) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read superblock %s: %w", tabletID, err)
	}

	sb, err := metadata.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("superblock %s: %w", tabletID, err)
	}
	if sb.TabletID != tabletID {
		return nil, fmt.Errorf("superblock %s: %w: records tablet %s", tabletID, diskfmt.ErrCorrupted, sb.TabletID)
	}
	return sb, nil
}

// WriteSuperblock atomically replaces the superblock file.
func (s *Store) WriteSuperblock(ctx context.Context, sb *tablet.Superblock) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	p, err := s.path(sb.TabletID)
	if err != nil {
		return err
	}

	payload, err := metadata.Marshal(sb)
	if err != nil {
		return err
	}
	if err := diskfmt.WriteRecordFile(p, metadata.Magic(), payload, s.fileMode); err != nil {
		return fmt.Errorf("write superblock %s: %w", sb.TabletID, err)
	}
	return nil
}

// DeleteSuperblock removes the superblock file if present.
func (s *Store) DeleteSuperblock(ctx context.Context, tabletID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	p, err := s.path(tabletID)
	if err != nil {
		return false, err
	}
	removed, err := diskfmt.RemoveFileIfExists(p)
	if err != nil {
		return false, fmt.Errorf("delete superblock %s: %w", tabletID, err)
	}
	return removed, nil
}

// ListTabletIDs returns the tablet ids found in the metadata directory.
func (s *Store) ListTabletIDs(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list metadata dir: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, diskfmt.TempSuffix) {
			continue
		}
		if err := tablet.ValidateID(name); err != nil {
			logger.WarnCtx(ctx, "Skipping stray file in metadata dir", logger.KeyPath, filepath.Join(s.dir, name), logger.KeyError, err)
			continue
		}
		ids = append(ids, name)
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

package consensus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Store keeps one consensus metadata file per tablet in the consensus-meta
// directory.
type Store struct {
	dir string
}

// NewStore opens the store at dir, creating it and removing temp files left
// behind by interrupted writes.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("consensus metadata dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create consensus metadata dir: %w", err)
	}
	cleaned, err := diskfmt.CleanTempFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("clean temp consensus metadata: %w", err)
	}
	if cleaned > 0 {
		logger.Warn("Removed interrupted consensus metadata writes", logger.KeyPath, dir, logger.KeyCount, cleaned)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the consensus-meta directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file holding tabletID's consensus metadata.
func (s *Store) Path(tabletID string) string {
	return filepath.Join(s.dir, tabletID)
}

func (s *Store) path(tabletID string) (string, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return "", err
	}
	return s.Path(tabletID), nil
}

// Create writes the initial record and fails with ErrAlreadyExists when one
// is present.
func (s *Store) Create(ctx context.Context, m *Meta) error {
	exists, err := s.Exists(ctx, m.TabletID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", m.TabletID, ErrAlreadyExists)
	}
	return s.Flush(ctx, m)
}

// Load reads the record of tabletID.
func (s *Store) Load(ctx context.Context, tabletID string) (*Meta, error) {
	p, err := s.path(tabletID)
	if err != nil {
		return nil, err
	}
	payload, err := diskfmt.ReadRecordFile(p, metaMagic)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read consensus metadata %s: %w", tabletID, err)
	}
	m, err := unmarshalMeta(payload)
	if err != nil {
		return nil, fmt.Errorf("consensus metadata %s: %w", tabletID, err)
	}
	if m.TabletID != tabletID {
		return nil, fmt.Errorf("consensus metadata %s: %w: records tablet %s", tabletID, diskfmt.ErrCorrupted, m.TabletID)
	}
	return m, nil
}

// Flush atomically replaces the record of m.TabletID.
func (s *Store) Flush(ctx context.Context, m *Meta) error {
	payload, err := marshalMeta(m)
	if err != nil {
		return err
	}
	path, err := s.path(m.TabletID)
	if err != nil {
		return err
	}
	if err := diskfmt.WriteRecordFile(path, metaMagic, payload, 0o644); err != nil {
		return fmt.Errorf("write consensus metadata %s: %w", m.TabletID, err)
	}
	return nil
}

// Exists reports whether tabletID has a record.
func (s *Store) Exists(ctx context.Context, tabletID string) (bool, error) {
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

// DeleteIfPresent removes the record of tabletID and reports whether one
// existed.
func (s *Store) DeleteIfPresent(ctx context.Context, tabletID string) (bool, error) {
	p, err := s.path(tabletID)
	if err != nil {
		return false, err
	}
	removed, err := diskfmt.RemoveFileIfExists(p)
	if err != nil {
		return false, fmt.Errorf("delete consensus metadata %s: %w", tabletID, err)
	}
	return removed, nil
}

// List returns every tablet with a record, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list consensus metadata: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), diskfmt.TempSuffix) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Package wal manages per-tablet write-ahead logs under a shared WAL root.
// Each tablet owns one directory of ordered, mmap-backed segment files.
package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Manager owns the WAL root directory.
//
// Thread Safety: safe for concurrent use. Operations on the same tablet are
// serialized by the lifecycle controller.
type Manager struct {
	root string
	opts Options

	mu   sync.Mutex
	open map[string]*Log
}

// NewManager creates a manager rooted at root, creating the directory.
func NewManager(root string, opts Options) (*Manager, error) {
	if root == "" {
		return nil, errors.New("WAL root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create WAL root: %w", err)
	}
	return &Manager{root: root, opts: opts.withDefaults(), open: make(map[string]*Log)}, nil
}

// Root returns the WAL root directory.
func (m *Manager) Root() string { return m.root }

// Dir returns the WAL directory of tabletID.
func (m *Manager) Dir(tabletID string) string {
	return filepath.Join(m.root, tabletID)
}

// Open returns the log of tabletID, creating its directory and first segment
// if needed. Repeated calls return the same open log until it is closed.
func (m *Manager) Open(tabletID string) (*Log, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.open[tabletID]; ok {
		return l, nil
	}

	l, err := openLog(tabletID, m.Dir(tabletID), m.opts)
	if err != nil {
		return nil, fmt.Errorf("open WAL for %s: %w", tabletID, err)
	}
	l.onClose = func() {
		m.mu.Lock()
		if m.open[tabletID] == l {
			delete(m.open, tabletID)
		}
		m.mu.Unlock()
	}
	m.open[tabletID] = l
	return l, nil
}

// SegmentCount returns the number of segment files of tabletID.
func (m *Manager) SegmentCount(tabletID string) (int, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return 0, err
	}
	seqs, err := listSegments(m.Dir(tabletID))
	if err != nil {
		return 0, fmt.Errorf("list segments of %s: %w", tabletID, err)
	}
	return len(seqs), nil
}

// HasSegments reports whether tabletID has any WAL segments or directory.
func (m *Manager) HasSegments(tabletID string) (bool, error) {
	n, err := m.SegmentCount(tabletID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	_, err = os.Stat(m.Dir(tabletID))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// LastOpID returns the last op id logged by tabletID. ok is false when the
// log is empty or absent.
func (m *Manager) LastOpID(tabletID string) (op tablet.OpID, ok bool, err error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return op, false, err
	}

	m.mu.Lock()
	l, isOpen := m.open[tabletID]
	m.mu.Unlock()
	if isOpen {
		op, ok = l.LastOpID()
		return op, ok, nil
	}

	seqs, err := listSegments(m.Dir(tabletID))
	if err != nil {
		return op, false, err
	}
	for i := len(seqs) - 1; i >= 0; i-- {
		entries, _, err := readSegmentFile(filepath.Join(m.Dir(tabletID), SegmentName(seqs[i])))
		if err != nil {
			return op, false, err
		}
		if len(entries) > 0 {
			return entries[len(entries)-1].OpID, true, nil
		}
	}
	return op, false, nil
}

// DeleteIfPresent closes any open log of tabletID and removes its whole WAL
// directory. It reports whether anything was removed.
func (m *Manager) DeleteIfPresent(tabletID string) (bool, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return false, err
	}

	m.mu.Lock()
	l, isOpen := m.open[tabletID]
	delete(m.open, tabletID)
	m.mu.Unlock()

	if isOpen {
		if err := l.Close(); err != nil {
			return false, fmt.Errorf("close WAL of %s: %w", tabletID, err)
		}
	}

	removed, err := diskfmt.RemoveDirIfExists(m.Dir(tabletID))
	if err != nil {
		return false, fmt.Errorf("delete WAL of %s: %w", tabletID, err)
	}
	return removed, nil
}

// ListTablets returns every tablet with a WAL directory, sorted.
func (m *Manager) ListTablets() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("list WAL root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes every open log.
func (m *Manager) Close() error {
	m.mu.Lock()
	logs := make([]*Log, 0, len(m.open))
	for _, l := range m.open {
		logs = append(logs, l)
	}
	m.mu.Unlock()

	var errs []error
	for _, l := range logs {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

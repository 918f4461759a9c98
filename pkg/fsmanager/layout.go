// Package fsmanager owns the on-disk layout of a tablet server data root.
//
// Layout:
//
//	<root>/
//	  instance.lock           process-exclusive flock
//	  tablet-meta/<tablet>    superblocks
//	  wals/<tablet>/wal-N     WAL segments, one directory per tablet
//	  consensus-meta/<tablet> consensus metadata
//	  data/                   filesystem block store
package fsmanager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Directory and file names under the data root.
const (
	TabletMetaDir    = "tablet-meta"
	WALDir           = "wals"
	ConsensusMetaDir = "consensus-meta"
	DataDir          = "data"
	LockFile         = "instance.lock"
)

// ErrLocked is returned when another process holds the data root.
var ErrLocked = errors.New("data root is locked by another process")

// Layout resolves paths under a data root.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// TabletMetaDir returns the superblock directory.
func (l Layout) TabletMetaDir() string { return filepath.Join(l.Root, TabletMetaDir) }

// WALRoot returns the directory holding per-tablet WAL directories.
func (l Layout) WALRoot() string { return filepath.Join(l.Root, WALDir) }

// ConsensusMetaDir returns the consensus metadata directory.
func (l Layout) ConsensusMetaDir() string { return filepath.Join(l.Root, ConsensusMetaDir) }

// DataDir returns the filesystem block store root.
func (l Layout) DataDir() string { return filepath.Join(l.Root, DataDir) }

// SuperblockPath returns the superblock file for tabletID.
func (l Layout) SuperblockPath(tabletID string) string {
	return filepath.Join(l.TabletMetaDir(), tabletID)
}

// WALDir returns the WAL directory for tabletID.
func (l Layout) WALDir(tabletID string) string {
	return filepath.Join(l.WALRoot(), tabletID)
}

// ConsensusMetaPath returns the consensus metadata file for tabletID.
func (l Layout) ConsensusMetaPath(tabletID string) string {
	return filepath.Join(l.ConsensusMetaDir(), tabletID)
}

// Dirs returns every directory Create makes.
func (l Layout) Dirs() []string {
	return []string{l.Root, l.TabletMetaDir(), l.WALRoot(), l.ConsensusMetaDir(), l.DataDir()}
}

// Create makes the directory tree. Existing directories are left alone.
func (l Layout) Create() error {
	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the data root has been initialized.
func (l Layout) Exists() bool {
	for _, dir := range l.Dirs()[1:4] {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return false
		}
	}
	return true
}

// InstanceLock is an exclusive advisory lock on the data root.
type InstanceLock struct {
	f *os.File
}

// Lock takes the data-root lock without blocking. It returns ErrLocked if
// another process holds it.
func (l Layout) Lock() (*InstanceLock, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(l.Root, LockFile), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, l.Root)
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &InstanceLock{f: f}, nil
}

// Release drops the lock.
func (il *InstanceLock) Release() error {
	if il == nil || il.f == nil {
		return nil
	}
	defer func() { il.f = nil }()
	if err := unix.Flock(int(il.f.Fd()), unix.LOCK_UN); err != nil {
		il.f.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return il.f.Close()
}

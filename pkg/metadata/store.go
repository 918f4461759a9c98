// Package metadata defines the superblock store: the durable per-tablet
// record whose data state is the source of truth for the whole lifecycle.
//
// Implementations:
//   - fs: one checksummed file per tablet in the tablet-metadata directory
//   - memory: map-backed, for tests
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marmos91/tabletd/pkg/tablet"
)

var (
	// ErrNotFound is returned when no superblock exists for a tablet.
	ErrNotFound = errors.New("superblock not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("metadata store is closed")
)

// Store persists superblocks.
//
// Thread Safety: implementations must be safe for concurrent use. Callers
// serialize writes to the same tablet; the store only guarantees that each
// write is atomic.
type Store interface {
	// Exists reports whether a superblock is recorded for tabletID.
	Exists(ctx context.Context, tabletID string) (bool, error)

	// ReadSuperblock returns the superblock for tabletID or ErrNotFound.
	ReadSuperblock(ctx context.Context, tabletID string) (*tablet.Superblock, error)

	// WriteSuperblock atomically replaces the superblock. A crash during the
	// write leaves either the old or the new record, never a torn one.
	WriteSuperblock(ctx context.Context, sb *tablet.Superblock) error

	// DeleteSuperblock removes the superblock. It reports whether anything
	// was removed; deleting a missing superblock is not an error.
	DeleteSuperblock(ctx context.Context, tabletID string) (bool, error)

	// ListTabletIDs returns every tablet with a superblock, sorted.
	ListTabletIDs(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// superblockMagic tags superblock records on disk.
const superblockMagic = "TSBK"

// Magic returns the record kind used for superblock files.
func Magic() string { return superblockMagic }

// Marshal encodes a superblock payload.
func Marshal(sb *tablet.Superblock) ([]byte, error) {
	if err := sb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}
	return json.Marshal(sb)
}

// Unmarshal decodes a superblock payload.
func Unmarshal(data []byte) (*tablet.Superblock, error) {
	var sb tablet.Superblock
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("decode superblock: %w", err)
	}
	if err := sb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}
	return &sb, nil
}

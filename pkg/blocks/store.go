// Package blocks defines the block store holding tablet data and the helpers
// the lifecycle uses to address and remove a tablet's blocks.
//
// Block keys have the form "<tabletID>/<blockID>", so every block of a tablet
// shares the prefix returned by TabletPrefix.
//
// Implementations live under blocks/store:
//   - memory: map-backed, for tests
//   - fs: one file per block under the data directory
//   - badger: BadgerDB key-value store
//   - s3: S3 or any S3-compatible object store
package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/marmos91/tabletd/pkg/tablet"
)

// MaxBlockSize bounds a single block (4MB).
const MaxBlockSize = 4 * 1024 * 1024

var (
	// ErrBlockNotFound is returned when a requested block doesn't exist.
	ErrBlockNotFound = errors.New("block not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("block store is closed")

	// ErrInvalidKey is returned for keys that are not "<tabletID>/<blockID>".
	ErrInvalidKey = errors.New("invalid block key")
)

// Store defines the interface for block storage backends.
// Blocks are immutable byte slices stored under a string key.
type Store interface {
	// WriteBlock writes a single block. Overwriting is allowed.
	WriteBlock(ctx context.Context, blockKey string, data []byte) error

	// ReadBlock reads a complete block.
	// Returns ErrBlockNotFound if the block doesn't exist.
	ReadBlock(ctx context.Context, blockKey string) ([]byte, error)

	// HasBlock reports whether a block exists.
	HasBlock(ctx context.Context, blockKey string) (bool, error)

	// DeleteBlock removes a single block.
	// Returns nil if the block doesn't exist.
	DeleteBlock(ctx context.Context, blockKey string) error

	// DeleteByPrefix removes all blocks with a given prefix and returns how
	// many were removed. Removing nothing is not an error.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// ListByPrefix lists all block keys with a given prefix, sorted.
	// Returns an empty slice if no blocks match.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}

// TabletPrefix returns the key prefix shared by every block of tabletID.
func TabletPrefix(tabletID string) string {
	return tabletID + "/"
}

// NewBlockKey returns a fresh key for a block owned by tabletID.
func NewBlockKey(tabletID string) string {
	return TabletPrefix(tabletID) + uuid.NewString()
}

// ParseKey splits a block key into its tablet and block ids.
func ParseKey(blockKey string) (tabletID, blockID string, err error) {
	tabletID, blockID, ok := strings.Cut(blockKey, "/")
	if !ok || blockID == "" || strings.Contains(blockID, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, blockKey)
	}
	if err := tablet.ValidateID(tabletID); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, blockKey)
	}
	if blockID == "." || blockID == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, blockKey)
	}
	return tabletID, blockID, nil
}

// WriteTabletBlocks stores each payload as a new block of tabletID and
// returns the keys in order.
func WriteTabletBlocks(ctx context.Context, s Store, tabletID string, payloads [][]byte) ([]string, error) {
	keys := make([]string, 0, len(payloads))
	for _, data := range payloads {
		if len(data) > MaxBlockSize {
			return keys, fmt.Errorf("block of %d bytes exceeds %d", len(data), MaxBlockSize)
		}
		key := NewBlockKey(tabletID)
		if err := s.WriteBlock(ctx, key, data); err != nil {
			return keys, fmt.Errorf("write block %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// DeleteTabletBlocks removes every block of tabletID plus any explicitly
// referenced keys outside the tablet prefix. Safe to repeat.
func DeleteTabletBlocks(ctx context.Context, s Store, tabletID string, refs []string) (int, error) {
	if err := tablet.ValidateID(tabletID); err != nil {
		return 0, err
	}

	removed, err := s.DeleteByPrefix(ctx, TabletPrefix(tabletID))
	if err != nil {
		return removed, fmt.Errorf("delete blocks of %s: %w", tabletID, err)
	}

	prefix := TabletPrefix(tabletID)
	for _, key := range refs {
		if strings.HasPrefix(key, prefix) {
			continue
		}
		exists, err := s.HasBlock(ctx, key)
		if err != nil {
			return removed, fmt.Errorf("stat block %s: %w", key, err)
		}
		if !exists {
			continue
		}
		if err := s.DeleteBlock(ctx, key); err != nil {
			return removed, fmt.Errorf("delete block %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// CountTabletBlocks returns how many blocks tabletID owns.
func CountTabletBlocks(ctx context.Context, s Store, tabletID string) (int, error) {
	keys, err := s.ListByPrefix(ctx, TabletPrefix(tabletID))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

package fsmanager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/srv/tabletd/")

	assert.Equal(t, "/srv/tabletd/tablet-meta/abc", l.SuperblockPath("abc"))
	assert.Equal(t, "/srv/tabletd/wals/abc", l.WALDir("abc"))
	assert.Equal(t, "/srv/tabletd/consensus-meta/abc", l.ConsensusMetaPath("abc"))
	assert.Equal(t, "/srv/tabletd/data", l.DataDir())
}

func TestLayoutCreate(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "root"))
	assert.False(t, l.Exists())

	require.NoError(t, l.Create())
	assert.True(t, l.Exists())
	for _, dir := range l.Dirs() {
		assert.DirExists(t, dir)
	}

	// Idempotent.
	require.NoError(t, l.Create())
}

func TestInstanceLock(t *testing.T) {
	l := NewLayout(t.TempDir())

	lock, err := l.Lock()
	require.NoError(t, err)

	// flock is per open file description, so a second open in the same
	// process conflicts just like another process would.
	_, err = l.Lock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	again, err := l.Lock()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

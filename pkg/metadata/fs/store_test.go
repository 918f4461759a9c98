package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/internal/diskfmt"
	"github.com/marmos91/tabletd/pkg/metadata"
	"github.com/marmos91/tabletd/pkg/metadata/fs"
	"github.com/marmos91/tabletd/pkg/metadata/storetest"
	"github.com/marmos91/tabletd/pkg/tablet"
)

func newStore(t *testing.T, dir string) *fs.Store {
	t.Helper()
	s, err := fs.New(fs.Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		return newStore(t, filepath.Join(t.TempDir(), "tablet-meta"))
	})
}

func TestOneFilePerTablet(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	ctx := t.Context()

	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, s.WriteSuperblock(ctx, &tablet.Superblock{TabletID: id, DataState: tablet.StateReady}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(dir, "t1"))
}

func TestCorruptSuperblockIsAnError(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	ctx := t.Context()

	require.NoError(t, s.WriteSuperblock(ctx, &tablet.Superblock{TabletID: "t1", DataState: tablet.StateReady}))

	path := filepath.Join(dir, "t1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-2] ^= 0x5a
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = s.ReadSuperblock(ctx, "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, diskfmt.ErrCorrupted)
	assert.NotErrorIs(t, err, metadata.ErrNotFound)
}

func TestMismatchedTabletID(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	ctx := t.Context()

	require.NoError(t, s.WriteSuperblock(ctx, &tablet.Superblock{TabletID: "t1", DataState: tablet.StateReady}))
	require.NoError(t, os.Rename(filepath.Join(dir, "t1"), filepath.Join(dir, "t9")))

	_, err := s.ReadSuperblock(ctx, "t9")
	assert.ErrorIs(t, err, diskfmt.ErrCorrupted)
}

func TestOpenCleansInterruptedWrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t1"+diskfmt.TempSuffix), []byte("partial"), 0o644))

	s := newStore(t, dir)
	ids, err := s.ListTabletIDs(t.Context())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoFileExists(t, filepath.Join(dir, "t1"+diskfmt.TempSuffix))
}

func TestRejectsPathTraversal(t *testing.T) {
	s := newStore(t, t.TempDir())
	_, err := s.ReadSuperblock(t.Context(), "../etc")
	assert.Equal(t, tablet.ErrInvalidArgument, tablet.CodeOf(err))
}

func TestListSkipsStrayFiles(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	ctx := t.Context()

	require.NoError(t, s.WriteSuperblock(ctx, &tablet.Superblock{TabletID: "t1", DataState: tablet.StateReady}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("junk"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lost+found"), 0o755))

	ids, err := s.ListTabletIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)

	for _, id := range ids {
		_, err := s.ReadSuperblock(ctx, id)
		assert.NoError(t, err, id)
	}
}

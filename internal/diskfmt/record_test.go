package diskfmt

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tablet-1")

	require.NoError(t, WriteRecordFile(path, "TSBK", []byte(`{"a":1}`), 0o644))
	payload, err := ReadRecordFile(path, "TSBK")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(payload))

	// Replace keeps exactly one file and no temp leftovers.
	require.NoError(t, WriteRecordFile(path, "TSBK", []byte(`{"a":2}`), 0o644))
	payload, err = ReadRecordFile(path, "TSBK")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(payload))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadRecordMissing(t *testing.T) {
	_, err := ReadRecordFile(filepath.Join(t.TempDir(), "nope"), "TSBK")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDecodeDetectsCorruption(t *testing.T) {
	good, err := Encode("TSBK", []byte("payload"))
	require.NoError(t, err)

	flipped := append([]byte(nil), good...)
	flipped[len(flipped)-1] ^= 0xff
	_, err = Decode("TSBK", flipped)
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = Decode("TSBK", good[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = Decode("TSBK", good[:len(good)-2])
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = Decode("TCMT", good)
	assert.ErrorIs(t, err, ErrWrongKind)

	wrongVersion := append([]byte(nil), good...)
	wrongVersion[4] = 9
	_, err = Decode("TSBK", wrongVersion)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestEncodeRejectsBadMagic(t *testing.T) {
	_, err := Encode("TOOLONG", nil)
	assert.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	removed, err := RemoveFileIfExists(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = RemoveFileIfExists(path)
	require.NoError(t, err)
	assert.False(t, removed)

	sub := filepath.Join(dir, "wal", "t1")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "wal-000000001"), nil, 0o644))

	removed, err = RemoveDirIfExists(sub)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, sub)

	removed, err = RemoveDirIfExists(sub)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCleanTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t1"+TempSuffix), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t2"), nil, 0o644))

	n, err := CleanTempFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, "t2"))
}

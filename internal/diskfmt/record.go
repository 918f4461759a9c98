// Package diskfmt implements the on-disk container used for every small
// durable record (superblocks, consensus metadata) and the atomic replace and
// idempotent delete primitives built on top of it.
//
// File Format:
//
//	Header (16 bytes):
//	  - Magic: 4 bytes, identifies the record kind ("TSBK", "TCMT", ...)
//	  - Version: uint16
//	  - Reserved: uint16
//	  - Payload length: uint32
//	  - Payload CRC-32C: uint32
//	Payload: JSON document
//
// All integers are little-endian. A record is only ever replaced through
// WriteRecordFile, so a reader sees either the previous or the new record.
package diskfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

const (
	// Version is the current record format version.
	Version = uint16(1)

	// HeaderSize is the fixed size of the record header.
	HeaderSize = 16

	// MaxPayloadSize bounds a single record.
	MaxPayloadSize = 16 * 1024 * 1024

	// TempSuffix is appended to the target path while a write is in flight.
	TempSuffix = ".tmp"
)

var (
	// ErrCorrupted is returned when a record fails header or checksum validation.
	ErrCorrupted = errors.New("record corrupted")

	// ErrVersionMismatch is returned when the record version is unknown.
	ErrVersionMismatch = errors.New("record version mismatch")

	// ErrWrongKind is returned when the magic does not match the expected kind.
	ErrWrongKind = errors.New("record kind mismatch")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Encode frames payload into a record of the given kind.
func Encode(magic string, payload []byte) ([]byte, error) {
	if len(magic) != 4 {
		return nil, fmt.Errorf("magic must be 4 bytes, got %q", magic)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:16], crc32.Checksum(payload, castagnoli))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode validates a framed record and returns its payload.
func Decode(magic string, buf []byte) ([]byte, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupted, len(buf))
	}
	if string(buf[0:4]) != magic {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongKind, buf[0:4], magic)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersionMismatch, v)
	}

	length := binary.LittleEndian.Uint32(buf[8:12])
	if int(length) != len(buf)-HeaderSize {
		return nil, fmt.Errorf("%w: length %d, have %d payload bytes", ErrCorrupted, length, len(buf)-HeaderSize)
	}

	payload := buf[HeaderSize:]
	if sum := crc32.Checksum(payload, castagnoli); sum != binary.LittleEndian.Uint32(buf[12:16]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}
	return payload, nil
}

// ReadRecordFile reads and validates the record at path. A missing file
// returns an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadRecordFile(path, magic string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	payload, err := Decode(magic, buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return payload, nil
}

// WriteRecordFile atomically replaces path with a new record: write a temp
// file, fsync it, rename over the target, then fsync the parent directory.
func WriteRecordFile(path, magic string, payload []byte, perm os.FileMode) error {
	buf, err := Encode(magic, payload)
	if err != nil {
		return err
	}

	tmp := path + TempSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}

	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp record: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename record: %w", err)
	}
	return SyncDir(filepath.Dir(path))
}

// RemoveFileIfExists deletes path and syncs its directory. It reports whether
// a file was removed; a missing file is not an error.
func RemoveFileIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, SyncDir(filepath.Dir(path))
}

// RemoveDirIfExists deletes dir and everything below it, then syncs the
// parent. It reports whether the directory existed.
func RemoveDirIfExists(dir string) (bool, error) {
	if _, err := os.Lstat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, SyncDir(filepath.Dir(dir))
}

// SyncDir fsyncs a directory so renames and unlinks inside it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// CleanTempFiles removes leftover temp files from interrupted writes in dir
// and returns how many were removed.
func CleanTempFiles(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+TempSuffix))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return len(matches), nil
}

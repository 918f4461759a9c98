// segment.go provides the memory-mapped segment file backing a tablet's WAL.
//
// File Format:
// Each segment is an append-only log:
//
//	Header (64 bytes):
//	  - Magic: "TWAL" (4 bytes)
//	  - Version: uint16 (2 bytes)
//	  - Entry count: uint32 (4 bytes)
//	  - Next write offset: uint64 (8 bytes)
//	  - Sequence number: uint64 (8 bytes)
//	  - Reserved: 38 bytes
//
//	Entries (variable):
//	  - Entry type: uint8 (1 byte) - 1=replicate, 2=commit
//	  - Term: uint64 (8 bytes)
//	  - Index: uint64 (8 bytes)
//	  - Payload length: uint32 (4 bytes)
//	  - Payload CRC-32C: uint32 (4 bytes)
//	  - Payload: variable
//
// The header's next-offset field is updated after the entry bytes are in
// place, so a reader never sees a partially copied entry.

package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/tabletd/pkg/tablet"
)

const (
	segmentMagic        = "TWAL"
	segmentVersion      = uint16(1)
	segmentHeaderSize   = 64
	segmentInitialSize  = 64 * 1024
	segmentGrowthFactor = 2
	entryHeaderSize     = 1 + 8 + 8 + 4 + 4
)

// EntryType distinguishes log records.
type EntryType uint8

const (
	EntryReplicate EntryType = 1
	EntryCommit    EntryType = 2
)

var (
	// ErrLogClosed is returned when operations are attempted on a closed log.
	ErrLogClosed = errors.New("WAL is closed")

	// ErrCorrupted is returned when a segment fails validation.
	ErrCorrupted = errors.New("WAL segment corrupted")

	// ErrVersionMismatch is returned when the segment version is unknown.
	ErrVersionMismatch = errors.New("WAL segment version mismatch")

	// ErrOutOfOrder is returned when an appended op id does not advance the log.
	ErrOutOfOrder = errors.New("WAL op id out of order")

	// ErrSegmentUnmapped is returned by a segment that lost its memory
	// mapping when growing it failed. Only close remains valid.
	ErrSegmentUnmapped = errors.New("WAL segment unmapped")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Entry is one WAL record.
type Entry struct {
	Type    EntryType
	OpID    tablet.OpID
	Payload []byte
}

func (e *Entry) encodedSize() uint64 {
	return entryHeaderSize + uint64(len(e.Payload))
}

type segmentHeader struct {
	Magic      [4]byte
	Version    uint16
	EntryCount uint32
	NextOffset uint64
	Sequence   uint64
}

// segment is one mmap'd WAL file.
type segment struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	data   []byte
	size   uint64
	header segmentHeader
	dirty  bool
	closed bool

	// unmapped is set when a failed growth left no mapping behind.
	unmapped error
}

// createSegment creates a new, empty segment file.
func createSegment(path string, seq uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment: %w", err)
	}

	if err := f.Truncate(segmentInitialSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate segment: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, segmentInitialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	s := &segment{path: path, file: f, data: data, size: segmentInitialSize}
	copy(s.header.Magic[:], segmentMagic)
	s.header.Version = segmentVersion
	s.header.NextOffset = segmentHeaderSize
	s.header.Sequence = seq
	s.writeHeader()

	// The header must be durable before the segment is considered present.
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		s.close()
		return nil, fmt.Errorf("msync: %w", err)
	}
	return s, nil
}

// openSegment maps an existing segment for appending.
func openSegment(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment: %w", err)
	}
	size := uint64(info.Size())
	if size < segmentHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%s: %w: short file", path, ErrCorrupted)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	s := &segment{path: path, file: f, data: data, size: size}
	hdr, err := parseHeader(data)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.header = hdr
	return s, nil
}

func parseHeader(data []byte) (segmentHeader, error) {
	var h segmentHeader
	if len(data) < segmentHeaderSize {
		return h, ErrCorrupted
	}
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint16(data[4:6])
	h.EntryCount = binary.LittleEndian.Uint32(data[6:10])
	h.NextOffset = binary.LittleEndian.Uint64(data[10:18])
	h.Sequence = binary.LittleEndian.Uint64(data[18:26])

	if string(h.Magic[:]) != segmentMagic {
		return h, ErrCorrupted
	}
	if h.Version != segmentVersion {
		return h, ErrVersionMismatch
	}
	if h.NextOffset < segmentHeaderSize || h.NextOffset > uint64(len(data)) {
		return h, ErrCorrupted
	}
	return h, nil
}

func (s *segment) writeHeader() {
	copy(s.data[0:4], s.header.Magic[:])
	binary.LittleEndian.PutUint16(s.data[4:6], s.header.Version)
	binary.LittleEndian.PutUint32(s.data[6:10], s.header.EntryCount)
	binary.LittleEndian.PutUint64(s.data[10:18], s.header.NextOffset)
	binary.LittleEndian.PutUint64(s.data[18:26], s.header.Sequence)
}

// append writes one entry.
func (s *segment) append(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrLogClosed
	}
	if s.unmapped != nil {
		return s.unmapped
	}
	if err := s.ensureSpace(e.encodedSize()); err != nil {
		return err
	}

	off := s.header.NextOffset
	s.data[off] = uint8(e.Type)
	binary.LittleEndian.PutUint64(s.data[off+1:], e.OpID.Term)
	binary.LittleEndian.PutUint64(s.data[off+9:], e.OpID.Index)
	binary.LittleEndian.PutUint32(s.data[off+17:], uint32(len(e.Payload)))
	binary.LittleEndian.PutUint32(s.data[off+21:], crc32.Checksum(e.Payload, crcTable))
	copy(s.data[off+entryHeaderSize:], e.Payload)

	s.header.NextOffset = off + e.encodedSize()
	s.header.EntryCount++
	s.writeHeader()
	s.dirty = true
	return nil
}

// usedBytes returns the number of bytes holding header and entries.
func (s *segment) usedBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.NextOffset
}

func (s *segment) entryCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.EntryCount
}

// sync flushes dirty pages to disk.
func (s *segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrLogClosed
	}
	if s.unmapped != nil {
		return s.unmapped
	}
	if !s.dirty {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	s.dirty = false
	return nil
}

// entries decodes every entry in the segment.
func (s *segment) entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrLogClosed
	}
	if s.unmapped != nil {
		return nil, s.unmapped
	}
	return decodeEntries(s.data, s.header)
}

func decodeEntries(data []byte, h segmentHeader) ([]Entry, error) {
	entries := make([]Entry, 0, h.EntryCount)
	off := uint64(segmentHeaderSize)

	for off < h.NextOffset {
		if off+entryHeaderSize > h.NextOffset {
			return nil, fmt.Errorf("%w: truncated entry header at %d", ErrCorrupted, off)
		}

		e := Entry{
			Type: EntryType(data[off]),
			OpID: tablet.OpID{
				Term:  binary.LittleEndian.Uint64(data[off+1:]),
				Index: binary.LittleEndian.Uint64(data[off+9:]),
			},
		}
		length := uint64(binary.LittleEndian.Uint32(data[off+17:]))
		sum := binary.LittleEndian.Uint32(data[off+21:])
		off += entryHeaderSize

		if off+length > h.NextOffset {
			return nil, fmt.Errorf("%w: truncated payload at %d", ErrCorrupted, off)
		}
		e.Payload = make([]byte, length)
		copy(e.Payload, data[off:off+length])
		off += length

		if crc32.Checksum(e.Payload, crcTable) != sum {
			return nil, fmt.Errorf("%w: checksum mismatch for op %s", ErrCorrupted, e.OpID)
		}
		if e.Type != EntryReplicate && e.Type != EntryCommit {
			return nil, fmt.Errorf("%w: unknown entry type %d", ErrCorrupted, e.Type)
		}
		entries = append(entries, e)
	}

	if uint32(len(entries)) != h.EntryCount {
		return nil, fmt.Errorf("%w: header counts %d entries, found %d", ErrCorrupted, h.EntryCount, len(entries))
	}
	return entries, nil
}

// readSegmentFile decodes a segment without opening it for writing.
func readSegmentFile(path string) ([]Entry, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if info.Size() < segmentHeaderSize {
		return nil, 0, fmt.Errorf("%s: %w: short file", path, ErrCorrupted)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, fmt.Errorf("mmap: %w", err)
	}
	defer unix.Munmap(data)

	h, err := parseHeader(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	entries, err := decodeEntries(data, h)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return entries, h.Sequence, nil
}

// ensureSpace grows the mapping so needed more bytes fit.
func (s *segment) ensureSpace(needed uint64) error {
	if s.header.NextOffset+needed <= s.size {
		return nil
	}

	newSize := s.size * segmentGrowthFactor
	for s.header.NextOffset+needed > newSize {
		newSize *= segmentGrowthFactor
	}

	err := s.remap(newSize)
	if err == nil || s.data != nil {
		return err
	}
	// Everything written so far lies below the old size.
	if rerr := s.remap(s.size); rerr != nil {
		s.unmapped = fmt.Errorf("%w: %s: %w", ErrSegmentUnmapped, s.path, err)
	}
	return err
}

// remap replaces the mapping with one of size bytes, resizing the file to
// match. s.data is nil whenever the old mapping is gone and no new one was
// made.
func (s *segment) remap(size uint64) error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		s.data = nil
	}
	if err := s.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	s.data = data
	s.size = size
	return nil
}

// close syncs and unmaps the segment.
func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.data != nil {
		_ = unix.Msync(s.data, unix.MS_SYNC)
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		s.data = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("close segment: %w", err)
		}
		s.file = nil
	}
	return nil
}

package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// SegmentPrefix prefixes every segment file name.
const SegmentPrefix = "wal-"

// DefaultSegmentSize is the size at which the active segment is rolled.
const DefaultSegmentSize = 8 * 1024 * 1024

// SegmentName returns the file name of segment seq.
func SegmentName(seq uint64) string {
	return fmt.Sprintf("%s%09d", SegmentPrefix, seq)
}

// parseSegmentName extracts the sequence number from a segment file name.
func parseSegmentName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, SegmentPrefix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(strings.TrimPrefix(name, SegmentPrefix), 10, 64)
	if err != nil || seq == 0 {
		return 0, false
	}
	return seq, true
}

// listSegments returns the segment sequence numbers in dir, ascending. A
// missing directory has no segments.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if seq, ok := parseSegmentName(e.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Options configures a Log.
type Options struct {
	// SegmentSize is the size at which the active segment is rolled.
	SegmentSize uint64
}

func (o Options) withDefaults() Options {
	if o.SegmentSize == 0 {
		o.SegmentSize = DefaultSegmentSize
	}
	return o
}

// Log is the write-ahead log of one tablet: an ordered sequence of segment
// files in the tablet's WAL directory. Only the last segment is writable.
type Log struct {
	mu       sync.Mutex
	tabletID string
	dir      string
	opts     Options

	active    *segment
	activeSeq uint64
	segments  int

	last    tablet.OpID
	hasLast bool
	closed  bool

	onClose func()
}

func openLog(tabletID, dir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create WAL dir: %w", err)
	}

	l := &Log{tabletID: tabletID, dir: dir, opts: opts.withDefaults()}

	seqs, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	if len(seqs) == 0 {
		seg, err := createSegment(filepath.Join(dir, SegmentName(1)), 1)
		if err != nil {
			return nil, err
		}
		l.active, l.activeSeq, l.segments = seg, 1, 1
		return l, nil
	}

	for _, seq := range seqs[:len(seqs)-1] {
		entries, _, err := readSegmentFile(filepath.Join(dir, SegmentName(seq)))
		if err != nil {
			return nil, err
		}
		l.observe(entries)
	}

	lastSeq := seqs[len(seqs)-1]
	seg, err := openSegment(filepath.Join(dir, SegmentName(lastSeq)))
	if err != nil {
		return nil, err
	}
	entries, err := seg.entries()
	if err != nil {
		seg.close()
		return nil, err
	}
	l.observe(entries)
	l.active, l.activeSeq, l.segments = seg, lastSeq, len(seqs)

	logger.Debug("Opened WAL",
		logger.KeyTabletID, tabletID,
		logger.KeySegments, l.segments,
		logger.KeyOpID, l.last.String())
	return l, nil
}

func (l *Log) observe(entries []Entry) {
	for _, e := range entries {
		l.last, l.hasLast = e.OpID, true
	}
}

// Append writes e to the active segment, rolling first if it is full.
// Op ids must strictly increase.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	if l.hasLast && !l.last.Less(e.OpID) {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, e.OpID, l.last)
	}
	if e.Type == 0 {
		e.Type = EntryReplicate
	}

	if l.active.entryCount() > 0 && l.active.usedBytes()+e.encodedSize() > l.opts.SegmentSize {
		if err := l.rollLocked(); err != nil {
			return err
		}
	}

	if err := l.active.append(&e); err != nil {
		return err
	}
	l.last, l.hasLast = e.OpID, true
	return nil
}

// Roll seals the active segment and starts a new one.
func (l *Log) Roll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	return l.rollLocked()
}

func (l *Log) rollLocked() error {
	if err := l.active.sync(); err != nil {
		return err
	}
	if err := l.active.close(); err != nil {
		return err
	}

	next := l.activeSeq + 1
	seg, err := createSegment(filepath.Join(l.dir, SegmentName(next)), next)
	if err != nil {
		return err
	}
	l.active, l.activeSeq = seg, next
	l.segments++
	return nil
}

// Sync makes every appended entry durable.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	return l.active.sync()
}

// LastOpID returns the op id of the last appended entry.
func (l *Log) LastOpID() (tablet.OpID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}

// SegmentCount returns the number of segment files.
func (l *Log) SegmentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segments
}

// ReadAll returns every entry across all segments, oldest first.
func (l *Log) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLogClosed
	}

	var all []Entry
	for seq := uint64(1); seq < l.activeSeq; seq++ {
		entries, _, err := readSegmentFile(filepath.Join(l.dir, SegmentName(seq)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	entries, err := l.active.entries()
	if err != nil {
		return nil, err
	}
	return append(all, entries...), nil
}

// Close syncs and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	err := l.active.close()
	onClose := l.onClose
	l.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return err
}

package blocks

import (
	"context"
	"time"
)

// Metrics receives block store observations. A nil Metrics means zero
// overhead: Instrument returns the store unchanged.
type Metrics interface {
	// ObserveOperation records one store call and its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by a read or write.
	RecordBytes(operation string, bytes int64)

	// RecordDeleted counts blocks removed by prefix or single deletes.
	RecordDeleted(n int)
}

// Instrument wraps s so every call is reported to m.
func Instrument(s Store, m Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, m: m}
}

type instrumented struct {
	Store
	m Metrics
}

func (s *instrumented) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	start := time.Now()
	err := s.Store.WriteBlock(ctx, blockKey, data)
	s.m.ObserveOperation("write", time.Since(start), err)
	if err == nil {
		s.m.RecordBytes("write", int64(len(data)))
	}
	return err
}

func (s *instrumented) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	start := time.Now()
	data, err := s.Store.ReadBlock(ctx, blockKey)
	s.m.ObserveOperation("read", time.Since(start), err)
	if err == nil {
		s.m.RecordBytes("read", int64(len(data)))
	}
	return data, err
}

func (s *instrumented) HasBlock(ctx context.Context, blockKey string) (bool, error) {
	start := time.Now()
	ok, err := s.Store.HasBlock(ctx, blockKey)
	s.m.ObserveOperation("has", time.Since(start), err)
	return ok, err
}

func (s *instrumented) DeleteBlock(ctx context.Context, blockKey string) error {
	start := time.Now()
	err := s.Store.DeleteBlock(ctx, blockKey)
	s.m.ObserveOperation("delete", time.Since(start), err)
	if err == nil {
		s.m.RecordDeleted(1)
	}
	return err
}

func (s *instrumented) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	start := time.Now()
	n, err := s.Store.DeleteByPrefix(ctx, prefix)
	s.m.ObserveOperation("delete_prefix", time.Since(start), err)
	if n > 0 {
		s.m.RecordDeleted(n)
	}
	return n, err
}

func (s *instrumented) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.Store.ListByPrefix(ctx, prefix)
	s.m.ObserveOperation("list", time.Since(start), err)
	return keys, err
}

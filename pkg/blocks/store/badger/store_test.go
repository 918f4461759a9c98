package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/blocks/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) blocks.Store {
		s, err := New(Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "badger")

	s, err := New(Config{Dir: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.WriteBlock(ctx, "t1/b1", []byte("durable")))
	require.NoError(t, s.Close())

	reopened, err := New(Config{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.ReadBlock(ctx, "t1/b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), data)
}

func TestDeleteByPrefixBatches(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	payloads := make([][]byte, deleteBatchSize+5)
	for i := range payloads {
		payloads[i] = []byte{byte(i)}
	}
	_, err = blocks.WriteTabletBlocks(ctx, s, "big", payloads)
	require.NoError(t, err)

	removed, err := s.DeleteByPrefix(ctx, blocks.TabletPrefix("big"))
	require.NoError(t, err)
	assert.Equal(t, len(payloads), removed)

	n, err := blocks.CountTabletBlocks(ctx, s, "big")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

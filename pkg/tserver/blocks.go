package tserver

import (
	"context"
	"fmt"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/blocks"
	badgerstore "github.com/marmos91/tabletd/pkg/blocks/store/badger"
	fsstore "github.com/marmos91/tabletd/pkg/blocks/store/fs"
	memorystore "github.com/marmos91/tabletd/pkg/blocks/store/memory"
	s3store "github.com/marmos91/tabletd/pkg/blocks/store/s3"
	"github.com/marmos91/tabletd/pkg/config"
	"github.com/marmos91/tabletd/pkg/fsmanager"
	"github.com/marmos91/tabletd/pkg/metrics"
	promexporter "github.com/marmos91/tabletd/pkg/metrics/prometheus"
)

// OpenBlockStore creates the block store selected by cfg.Type. The result is
// instrumented when metrics are enabled; the returned BlockMetrics is nil
// otherwise.
func OpenBlockStore(ctx context.Context, cfg config.BlocksConfig, layout fsmanager.Layout) (blocks.Store, metrics.BlockMetrics, error) {
	var (
		store blocks.Store
		err   error
	)

	switch cfg.Type {
	case "memory":
		store = memorystore.New()

	case "fs", "":
		store, err = fsstore.New(fsstore.Config{BasePath: layout.DataDir()})

	case "badger":
		var bs *badgerstore.Store
		bs, err = badgerstore.New(badgerstore.Config{
			Dir:        cfg.Badger.Dir,
			SyncWrites: cfg.Badger.SyncWrites,
		})
		if err == nil {
			store = bs
			if cerr := promexporter.RegisterBadgerCollector(bs.CacheStats); cerr != nil {
				logger.Warn("Failed to register badger cache metrics", logger.Err(cerr))
			}
		}

	case "s3":
		store, err = s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			KeyPrefix:       cfg.S3.KeyPrefix,
			MaxRetries:      cfg.S3.MaxRetries,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	default:
		return nil, nil, fmt.Errorf("unknown block store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s block store: %w", cfg.Type, err)
	}

	logger.Info("Block store opened", logger.KeyStoreType, cfg.Type)

	m := metrics.NewBlockMetrics(cfg.Type)
	if m != nil {
		store = blocks.Instrument(store, m)
	}
	return store, m, nil
}

package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/tabletd/internal/logger"
)

// PollInterval is the fallback re-check period of WaitFor. Events that
// fsnotify cannot see (directories created after the watch started, remote
// block stores) are still picked up at this pace.
const PollInterval = 250 * time.Millisecond

// WaitFor evaluates check until it returns nil or ctx ends. It re-evaluates
// whenever something changes in one of dirs, and at least every PollInterval.
// On timeout the last check error is returned wrapped with the context error.
func WaitFor(ctx context.Context, dirs []string, check func() error) error {
	last := check()
	if last == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("Cannot watch directory", logger.KeyPath, dir, logger.Err(err))
		}
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ctx.Err(), last)

		case _, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("file watcher closed: %w", last)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed: %w", last)
			}
			logger.Debug("File watcher error", logger.Err(err))

		case <-ticker.C:
		}

		if last = check(); last == nil {
			return nil
		}
	}
}

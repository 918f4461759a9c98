package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Deleter is the DeleteTablet half of the controller.
type Deleter interface {
	DeleteTablet(ctx context.Context, tabletID string, target tablet.DataState) error
}

// Retry backoff bounds.
const (
	retryInitialInterval = 10 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
)

// DeleteTabletWithRetries calls d.DeleteTablet until it stops returning Busy.
// When ctx expires while the tablet is still busy the result is TimedOut.
// Every other error is returned as is.
func DeleteTabletWithRetries(ctx context.Context, d Deleter, tabletID string, target tablet.DataState) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	var lastBusy error
	op := func() error {
		attempt++
		err := d.DeleteTablet(ctx, tabletID, target)
		switch {
		case err == nil:
			return nil
		case tablet.IsBusy(err):
			lastBusy = err
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		logger.DebugCtx(ctx, "Tablet busy, retrying",
			logger.TabletID(tabletID),
			logger.Attempt(attempt),
			"wait", wait)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if tablet.IsBusy(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		cause := err
		if lastBusy != nil {
			cause = lastBusy
		}
		return tablet.WrapError(tablet.ErrTimedOut, tabletID, cause, "tablet still busy at deadline")
	}
	return err
}

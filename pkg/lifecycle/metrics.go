package lifecycle

import (
	"time"

	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// Metrics receives lifecycle observations. A nil Metrics disables collection
// with zero overhead.
type Metrics interface {
	// ObserveTransition records a finished DeleteTablet or Resume call.
	// outcome is "ok", "noop" or the lower-case error code.
	ObserveTransition(target tablet.DataState, outcome string, duration time.Duration)

	// ObserveStep records one transition step and whether it removed anything.
	ObserveStep(cp checkpoint.Checkpoint, removed bool, duration time.Duration)

	// RecordBusy counts a request rejected because the tablet lock was held.
	RecordBusy(operation string)
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if code := tablet.CodeOf(err); code != 0 {
		return code.Label()
	}
	return "error"
}

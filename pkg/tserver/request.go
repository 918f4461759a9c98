package tserver

import (
	"errors"
	"time"

	"github.com/marmos91/tabletd/pkg/tablet"
)

// ErrorKind classifies a failed lifecycle request.
type ErrorKind = tablet.ErrorCode

// DeleteTabletRequest asks the server to move a replica to a terminal state.
type DeleteTabletRequest struct {
	TabletID string

	// DeleteType is TOMBSTONED or DELETED.
	DeleteType tablet.DataState

	// Deadline bounds how long the caller waits. Zero means the configured
	// lifecycle.request_timeout. A transition that outlives the deadline keeps
	// running; the caller gets TimedOut.
	Deadline time.Time
}

// DeleteTabletResponse reports the outcome of a DeleteTabletRequest.
//
// Error is nil when OK is true. It is also nil for failures that carry no
// lifecycle classification (I/O errors from a store); Message describes them.
type DeleteTabletResponse struct {
	OK      bool
	Error   *ErrorKind
	Message string
}

// Retryable reports whether the same request may succeed later.
func (r DeleteTabletResponse) Retryable() bool {
	return r.Error != nil && r.Error.Retryable()
}

// Err converts the response back into an error, nil when OK.
func (r DeleteTabletResponse) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return errors.New(r.Message)
	}
	return &tablet.Error{Code: *r.Error, Message: r.Message}
}

func responseFor(err error) DeleteTabletResponse {
	if err == nil {
		return DeleteTabletResponse{OK: true}
	}
	resp := DeleteTabletResponse{Message: err.Error()}
	if code := tablet.CodeOf(err); code != 0 {
		resp.Error = &code
	}
	return resp
}

package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently so log
// lines about the same tablet can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Tablet Lifecycle
	// ========================================================================
	KeyTabletID    = "tablet_id"    // Opaque tablet replica identifier
	KeyTableName   = "table_name"   // Owning table name
	KeyDataState   = "data_state"   // READY, TOMBSTONED, DELETED
	KeyTargetState = "target_state" // Requested terminal state
	KeyPending     = "pending"      // Durable pending target state
	KeyCheckpoint  = "checkpoint"   // Checkpoint reached inside a transition
	KeyStep        = "step"         // Transition step number (1-5)
	KeyRemoved     = "removed"      // Whether a step deleted anything
	KeyOpID        = "opid"         // Last logged WAL operation id
	KeyTerm        = "term"         // Consensus term

	// ========================================================================
	// Storage
	// ========================================================================
	KeyPath      = "path"       // File or directory path
	KeyStoreType = "store_type" // Block store backend: memory, fs, badger, s3
	KeyBucket    = "bucket"     // S3 bucket name
	KeyKey       = "key"        // Block key
	KeyBlocks    = "blocks"     // Number of blocks
	KeySegments  = "segments"   // Number of WAL segments
	KeyBytes     = "bytes"      // Byte count

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Lifecycle operation name
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Domain error code
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyCount      = "count"       // Generic counter
)

// TabletID returns a slog.Attr for a tablet identifier
func TabletID(id string) slog.Attr {
	return slog.String(KeyTabletID, id)
}

// DataState returns a slog.Attr for a data state name
func DataState(state string) slog.Attr {
	return slog.String(KeyDataState, state)
}

// TargetState returns a slog.Attr for a requested target state
func TargetState(state string) slog.Attr {
	return slog.String(KeyTargetState, state)
}

// Checkpoint returns a slog.Attr for a checkpoint name
func Checkpoint(name string) slog.Attr {
	return slog.String(KeyCheckpoint, name)
}

// Path returns a slog.Attr for a file/directory path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Operation returns a slog.Attr for an operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for tablet lifecycle spans.
const (
	AttrTabletID    = "tablet.id"
	AttrDataState   = "tablet.data_state"
	AttrTargetState = "tablet.target_state"
	AttrPending     = "tablet.pending_state"
	AttrCheckpoint  = "tablet.checkpoint"
	AttrRemoved     = "tablet.removed"
	AttrStoreType   = "store.type"
	AttrBlockCount  = "store.block_count"
)

// Span names. Format: <component>.<operation>
const (
	SpanDeleteTablet = "lifecycle.delete_tablet"
	SpanResume       = "lifecycle.resume"
	SpanCreateTablet = "lifecycle.create_tablet"
	SpanPurgeTablet  = "lifecycle.purge_tablet"
	SpanRecoverAll   = "recovery.recover_all"
	SpanRecoverOne   = "recovery.recover_tablet"
	SpanBlockGC      = "blocks.gc"
)

// TabletID returns an attribute for a tablet identifier
func TabletID(id string) attribute.KeyValue {
	return attribute.String(AttrTabletID, id)
}

// DataState returns an attribute for a data state name
func DataState(state string) attribute.KeyValue {
	return attribute.String(AttrDataState, state)
}

// TargetState returns an attribute for a requested target state
func TargetState(state string) attribute.KeyValue {
	return attribute.String(AttrTargetState, state)
}

// Checkpoint returns an attribute for a checkpoint name
func Checkpoint(name string) attribute.KeyValue {
	return attribute.String(AttrCheckpoint, name)
}

// Removed returns an attribute recording whether a step deleted anything
func Removed(removed bool) attribute.KeyValue {
	return attribute.Bool(AttrRemoved, removed)
}

// StartTabletSpan starts a span for a lifecycle operation on one tablet.
func StartTabletSpan(ctx context.Context, name, tabletID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{TabletID(tabletID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

package tablet

import (
	"fmt"
	"strings"
	"time"
)

// MaxIDLength bounds tablet ids, which double as file names.
const MaxIDLength = 255

// TempSuffix marks in-progress atomic writes; ids may not end with it.
const TempSuffix = ".tmp"

// OpID identifies an operation in the write-ahead log.
type OpID struct {
	Term  uint64 `json:"term"`
	Index uint64 `json:"index"`
}

func (o OpID) String() string {
	return fmt.Sprintf("%d.%d", o.Term, o.Index)
}

// Less orders op ids by term, then index.
func (o OpID) Less(other OpID) bool {
	if o.Term != other.Term {
		return o.Term < other.Term
	}
	return o.Index < other.Index
}

// Superblock is the durable per-tablet record. DataState is the single source
// of truth; every other artifact eventually matches it.
type Superblock struct {
	TabletID  string    `json:"tablet_id"`
	TableName string    `json:"table_name,omitempty"`
	DataState DataState `json:"data_state"`

	// PendingTargetState is set only while a deletion transition is in
	// flight. StateUnknown means no transition is pending.
	PendingTargetState DataState `json:"pending_target_state,omitempty"`

	// BlockRefs lists the data blocks owned by the tablet. Cleared when the
	// tablet leaves READY.
	BlockRefs []string `json:"block_refs,omitempty"`

	// TombstoneLastLoggedOpID is the last WAL op id seen when the replica
	// stopped being READY. A tombstoned replica keeps it to vote correctly.
	TombstoneLastLoggedOpID *OpID `json:"tombstone_last_logged_opid,omitempty"`

	// Version increases on every write.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPending reports whether a transition is in flight.
func (sb *Superblock) HasPending() bool {
	return sb.PendingTargetState != StateUnknown
}

// EffectiveState is the state the replica is heading to: the pending target
// if any, the recorded state otherwise.
func (sb *Superblock) EffectiveState() DataState {
	return Max(sb.DataState, sb.PendingTargetState)
}

// Clone returns a deep copy.
func (sb *Superblock) Clone() *Superblock {
	if sb == nil {
		return nil
	}
	c := *sb
	if sb.BlockRefs != nil {
		c.BlockRefs = append([]string(nil), sb.BlockRefs...)
	}
	if sb.TombstoneLastLoggedOpID != nil {
		op := *sb.TombstoneLastLoggedOpID
		c.TombstoneLastLoggedOpID = &op
	}
	return &c
}

// Validate checks the superblock is internally consistent.
func (sb *Superblock) Validate() error {
	if err := ValidateID(sb.TabletID); err != nil {
		return err
	}
	if sb.DataState == StateUnknown {
		return fmt.Errorf("tablet %s: data state is unset", sb.TabletID)
	}
	if sb.HasPending() {
		if !sb.PendingTargetState.IsTerminal() {
			return fmt.Errorf("tablet %s: pending state %s is not a terminal state", sb.TabletID, sb.PendingTargetState)
		}
		if sb.PendingTargetState <= sb.DataState {
			return fmt.Errorf("tablet %s: pending state %s does not advance %s", sb.TabletID, sb.PendingTargetState, sb.DataState)
		}
	}
	if sb.DataState > StateReady && len(sb.BlockRefs) > 0 {
		return fmt.Errorf("tablet %s: %s superblock still references %d blocks", sb.TabletID, sb.DataState, len(sb.BlockRefs))
	}
	return nil
}

// ValidateID checks that id is usable as a tablet identifier and file name.
func ValidateID(id string) error {
	switch {
	case id == "":
		return NewError(ErrInvalidArgument, "", "tablet id is empty")
	case len(id) > MaxIDLength:
		return NewError(ErrInvalidArgument, "", "tablet id longer than %d bytes", MaxIDLength)
	case id == "." || id == "..":
		return NewError(ErrInvalidArgument, id, "reserved tablet id")
	case strings.HasPrefix(id, "."):
		return NewError(ErrInvalidArgument, id, "tablet id starts with a dot")
	case strings.ContainsAny(id, "/\\\x00"):
		return NewError(ErrInvalidArgument, id, "tablet id contains a path separator")
	case strings.HasSuffix(id, TempSuffix):
		return NewError(ErrInvalidArgument, id, "tablet id ends with %s", TempSuffix)
	}
	return nil
}

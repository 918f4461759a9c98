// Package tablet holds the types shared by every lifecycle component: the
// data state machine, the superblock record and the error taxonomy.
//
// It is a leaf package with no internal dependencies.
package tablet

import (
	"fmt"
	"strings"
)

// DataState is the durable lifecycle state of a tablet replica. Values are
// ordered; a replica only ever moves to a greater state.
type DataState int

const (
	StateUnknown DataState = iota
	// StateCopying is written by tablet copy before a replica becomes usable.
	StateCopying
	StateReady
	StateTombstoned
	StateDeleted
)

var stateNames = map[DataState]string{
	StateUnknown:    "UNKNOWN",
	StateCopying:    "COPYING",
	StateReady:      "READY",
	StateTombstoned: "TOMBSTONED",
	StateDeleted:    "DELETED",
}

func (s DataState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DataState(%d)", int(s))
}

// ParseDataState converts a state name (case-insensitive) into a DataState.
func ParseDataState(s string) (DataState, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for state, name := range stateNames {
		if name == upper {
			return state, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown data state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s DataState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DataState) UnmarshalText(b []byte) error {
	parsed, err := ParseDataState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether s is a valid DeleteTablet target.
func (s DataState) IsTerminal() bool {
	return s == StateTombstoned || s == StateDeleted
}

// HasWAL reports whether WAL segments may exist in state s.
func (s DataState) HasWAL() bool {
	return s <= StateReady
}

// HasConsensusMeta reports whether consensus metadata must exist in state s.
func (s DataState) HasConsensusMeta() bool {
	return s == StateReady || s == StateTombstoned
}

// Max returns the later of two states.
func Max(a, b DataState) DataState {
	if a > b {
		return a
	}
	return b
}

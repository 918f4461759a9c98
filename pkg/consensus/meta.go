// Package consensus persists per-tablet consensus metadata: the current term,
// the vote cast in it and the peer configuration. A replica keeps this record
// while READY or TOMBSTONED and loses it only when DELETED.
package consensus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marmos91/tabletd/pkg/tablet"
)

var (
	// ErrNotFound is returned when a tablet has no consensus metadata.
	ErrNotFound = errors.New("consensus metadata not found")

	// ErrAlreadyExists is returned by Create when a record is present.
	ErrAlreadyExists = errors.New("consensus metadata already exists")
)

// metaMagic tags consensus metadata records on disk.
const metaMagic = "TCMT"

// Meta is the durable consensus state of one replica.
type Meta struct {
	TabletID    string   `json:"tablet_id"`
	CurrentTerm uint64   `json:"current_term"`
	VotedFor    string   `json:"voted_for,omitempty"`
	Peers       []string `json:"peers,omitempty"`
}

// Validate checks the record is usable.
func (m *Meta) Validate() error {
	if m == nil {
		return errors.New("nil consensus metadata")
	}
	return tablet.ValidateID(m.TabletID)
}

// AcceptsTerm reports whether a message from term may be processed: stale
// terms are refused.
func (m *Meta) AcceptsTerm(term uint64) bool {
	return term >= m.CurrentTerm
}

// AdvanceTerm moves to term and clears the vote. Older terms are ignored.
func (m *Meta) AdvanceTerm(term uint64) bool {
	if term <= m.CurrentTerm {
		return false
	}
	m.CurrentTerm = term
	m.VotedFor = ""
	return true
}

// Clone returns a deep copy.
func (m *Meta) Clone() *Meta {
	c := *m
	if m.Peers != nil {
		c.Peers = append([]string(nil), m.Peers...)
	}
	return &c
}

func marshalMeta(m *Meta) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consensus metadata: %w", err)
	}
	return json.Marshal(m)
}

func unmarshalMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode consensus metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consensus metadata: %w", err)
	}
	return &m, nil
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/lifecycle"
	"github.com/marmos91/tabletd/pkg/tablet"
)

// TabletReader is the read side of the lifecycle controller.
type TabletReader interface {
	ListTablets(ctx context.Context) ([]*tablet.Superblock, error)
	Describe(ctx context.Context, tabletID string) (*lifecycle.Status, error)
}

// TabletSummary is one entry of GET /tablets.
type TabletSummary struct {
	TabletID           string    `json:"tablet_id"`
	TableName          string    `json:"table_name,omitempty"`
	DataState          string    `json:"data_state"`
	PendingTargetState string    `json:"pending_target_state,omitempty"`
	BlockRefs          int       `json:"block_refs"`
	Version            uint64    `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TabletDetail is the body of GET /tablets/{tabletID}.
type TabletDetail struct {
	TabletSummary
	TombstoneLastLoggedOpID string   `json:"tombstone_last_logged_opid,omitempty"`
	Blocks                  int      `json:"blocks"`
	WALSegments             int      `json:"wal_segments"`
	HasConsensusMeta        bool     `json:"has_consensus_meta"`
	InFlight                bool     `json:"in_flight"`
	Violations              []string `json:"violations,omitempty"`
}

// TabletHandler serves read-only tablet state.
type TabletHandler struct {
	tablets TabletReader
}

// NewTabletHandler creates a new tablet handler.
func NewTabletHandler(tablets TabletReader) *TabletHandler {
	return &TabletHandler{tablets: tablets}
}

// List handles GET /tablets. The optional state query parameter filters by
// recorded data state.
func (h *TabletHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter tablet.DataState
	if s := r.URL.Query().Get("state"); s != "" {
		parsed, err := tablet.ParseDataState(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse(tablet.ErrInvalidArgument.Label(), err.Error()))
			return
		}
		filter = parsed
	}

	sbs, err := h.tablets.ListTablets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]TabletSummary, 0, len(sbs))
	for _, sb := range sbs {
		if filter != tablet.StateUnknown && sb.DataState != filter {
			continue
		}
		out = append(out, Summarize(sb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabletID < out[j].TabletID })

	writeJSON(w, http.StatusOK, okResponse(out))
}

// Get handles GET /tablets/{tabletID}.
func (h *TabletHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tabletID")

	st, err := h.tablets.Describe(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(Detail(st)))
}

// Detail converts a controller status into its wire form.
func Detail(st *lifecycle.Status) TabletDetail {
	detail := TabletDetail{
		TabletSummary:    Summarize(st.Superblock),
		Blocks:           st.Blocks,
		WALSegments:      st.WALSegments,
		HasConsensusMeta: st.HasConsensusMeta,
		InFlight:         st.InFlight,
		Violations:       st.Violations,
	}
	if op := st.Superblock.TombstoneLastLoggedOpID; op != nil {
		detail.TombstoneLastLoggedOpID = op.String()
	}
	return detail
}

// Summarize converts a superblock into its wire form.
func Summarize(sb *tablet.Superblock) TabletSummary {
	s := TabletSummary{
		TabletID:  sb.TabletID,
		TableName: sb.TableName,
		DataState: sb.DataState.String(),
		BlockRefs: len(sb.BlockRefs),
		Version:   sb.Version,
		UpdatedAt: sb.UpdatedAt,
	}
	if sb.HasPending() {
		s.PendingTargetState = sb.PendingTargetState.String()
	}
	return s
}

// writeError maps a lifecycle error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := tablet.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case tablet.ErrNotFound:
		status = http.StatusNotFound
	case tablet.ErrInvalidArgument:
		status = http.StatusBadRequest
	case tablet.ErrBusy:
		status = http.StatusServiceUnavailable
	case tablet.ErrTimedOut:
		status = http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		logger.Error("Admin API request failed", logger.Err(err))
	}

	label := ""
	if code != 0 {
		label = code.Label()
	}
	writeJSON(w, status, errorResponse(label, err.Error()))
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

// UniverseReader reads stored universes
type UniverseReader interface {
	contracts.UniverseReader
	ListUniverseDates(ctx context.Context, universeID string, limit int) ([]time.Time, error)
}

// UniverseHandler serves universe views
type UniverseHandler struct {
	universes UniverseReader
	logger    *logger.Logger
}

// NewUniverseHandler creates a new universe handler
func NewUniverseHandler(universes UniverseReader, log *logger.Logger) *UniverseHandler {
	return &UniverseHandler{universes: universes, logger: log}
}

// UniverseResponse is the universe view
type UniverseResponse struct {
	UniverseID string                     `json:"universe_id"`
	AsOfDate   string                     `json:"as_of_date"`
	Total      int                        `json:"total"`
	Included   int                        `json:"included"`
	Members    []contracts.UniverseMember `json:"members"`
}

// GetUniverse returns a universe at a date (default the latest stored)
// GET /api/universes/{universe_id}?as_of=YYYY-MM-DD&included_only=true
func (h *UniverseHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	universeID := mux.Vars(r)["universe_id"]

	includedOnly := false
	if raw := r.URL.Query().Get("included_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'included_only' value")
			return
		}
		includedOnly = v
	}

	asOf, ok, err := dateParam(r, "as_of")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		dates, err := h.universes.ListUniverseDates(ctx, universeID, 1)
		if err != nil {
			h.logger.WithError(err).WithField("universe_id", universeID).Error("Failed to list universe dates")
			respondError(w, http.StatusInternalServerError, "Failed to retrieve universe")
			return
		}
		if len(dates) == 0 {
			respondError(w, http.StatusNotFound, "No universe stored for "+universeID)
			return
		}
		asOf = dates[0]
	}

	members, err := h.universes.GetUniverse(ctx, asOf, universeID, contracts.EntityTypeInstrument, includedOnly)
	if err != nil {
		h.logger.WithError(err).WithField("universe_id", universeID).Error("Failed to get universe")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve universe")
		return
	}
	if len(members) == 0 {
		respondError(w, http.StatusNotFound, "No universe stored for "+universeID+" at "+asOf.Format(dateLayout))
		return
	}

	resp := UniverseResponse{
		UniverseID: universeID,
		AsOfDate:   asOf.Format(dateLayout),
		Total:      len(members),
		Members:    members,
	}
	for _, m := range members {
		if m.Included {
			resp.Included++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

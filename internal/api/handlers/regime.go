package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

// RegimeReader reads stored regime states
type RegimeReader interface {
	GetLatestRegime(ctx context.Context, region string) (*contracts.RegimeState, error)
	GetHistory(ctx context.Context, region string, from, to time.Time) ([]contracts.RegimeState, error)
}

// RegimeHandler serves regime views
type RegimeHandler struct {
	regimes RegimeReader
	logger  *logger.Logger
}

// NewRegimeHandler creates a new regime handler
func NewRegimeHandler(regimes RegimeReader, log *logger.Logger) *RegimeHandler {
	return &RegimeHandler{regimes: regimes, logger: log}
}

// GetLatest returns the latest regime of a region
// GET /api/regimes/{region}/latest
func (h *RegimeHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	region := strings.ToUpper(mux.Vars(r)["region"])

	state, err := h.regimes.GetLatestRegime(r.Context(), region)
	if err != nil {
		h.logger.WithError(err).WithField("region", region).Error("Failed to get latest regime")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve regime")
		return
	}
	if state == nil {
		respondError(w, http.StatusNotFound, "No regime recorded for region "+region)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// GetHistory returns regime states in a date range (default last 90 days)
// GET /api/regimes/{region}/history?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *RegimeHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	region := strings.ToUpper(mux.Vars(r)["region"])

	to, ok, err := dateParam(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		to = contracts.DateOnly(time.Now().UTC())
	}
	from, ok, err := dateParam(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		from = to.AddDate(0, 0, -90)
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "'from' must not be after 'to'")
		return
	}

	states, err := h.regimes.GetHistory(r.Context(), region, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("region", region).Error("Failed to get regime history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve regime history")
		return
	}
	if states == nil {
		states = []contracts.RegimeState{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"region": region,
		"from":   from.Format(dateLayout),
		"to":     to.Format(dateLayout),
		"states": states,
	})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

// PortfolioReader reads stored targets and risk reports
type PortfolioReader interface {
	GetTargetPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (*contracts.TargetPortfolio, error)
	GetLatestTargetPortfolio(ctx context.Context, portfolioID string) (*contracts.TargetPortfolio, error)
	GetRiskReport(ctx context.Context, portfolioID string, asOf time.Time) (*contracts.RiskReport, error)
}

// PortfolioHandler serves portfolio views
type PortfolioHandler struct {
	portfolios PortfolioReader
	logger     *logger.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolios PortfolioReader, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, logger: log}
}

// PortfolioResponse pairs a target with its risk report (absent when not stored)
type PortfolioResponse struct {
	Target     *contracts.TargetPortfolio `json:"target"`
	RiskReport *contracts.RiskReport      `json:"risk_report,omitempty"`
}

// GetPortfolio returns a target portfolio and its risk report
// GET /api/portfolios/{portfolio_id}?as_of=YYYY-MM-DD
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID := mux.Vars(r)["portfolio_id"]

	asOf, ok, err := dateParam(r, "as_of")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var target *contracts.TargetPortfolio
	if ok {
		target, err = h.portfolios.GetTargetPortfolio(ctx, portfolioID, asOf)
	} else {
		target, err = h.portfolios.GetLatestTargetPortfolio(ctx, portfolioID)
	}
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", portfolioID).Error("Failed to get target portfolio")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio")
		return
	}
	if target == nil {
		respondError(w, http.StatusNotFound, "No target portfolio stored for "+portfolioID)
		return
	}

	report, err := h.portfolios.GetRiskReport(ctx, portfolioID, target.AsOfDate)
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", portfolioID).Warn("Failed to get risk report")
		report = nil
	}

	respondJSON(w, http.StatusOK, PortfolioResponse{Target: target, RiskReport: report})
}

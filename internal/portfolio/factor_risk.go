package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// FactorRisk aggregates instrument factor loadings into portfolio
// exposures and a daily volatility estimate from factor return history.
type FactorRisk struct {
	reader       contracts.FactorDataReader
	fallbackDays int
	log          zerolog.Logger
}

// FactorRiskResult is the outcome of one factor risk computation
type FactorRiskResult struct {
	Exposures  map[string]float64
	Volatility float64
	WindowDays int
}

// NewFactorRisk creates a factor risk calculator; reader may be nil
func NewFactorRisk(reader contracts.FactorDataReader, fallbackDays int, log zerolog.Logger) *FactorRisk {
	if fallbackDays <= 0 {
		fallbackDays = 63
	}
	return &FactorRisk{
		reader:       reader,
		fallbackDays: fallbackDays,
		log:          log.With().Str("component", "portfolio.factor_risk").Logger(),
	}
}

// Compute returns portfolio factor exposures b_f = Σ w_i·x_if and the
// volatility sqrt(Σ_f (b_f·σ_f)²) under a diagonal factor covariance.
// Without a reader, loadings or any factor with a positive return
// deviation in the window the result is empty and zero.
func (f *FactorRisk) Compute(ctx context.Context, asOf time.Time, weights map[string]float64) (*FactorRiskResult, error) {
	result := &FactorRiskResult{Exposures: map[string]float64{}}
	if f.reader == nil || len(weights) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	loadings, err := f.reader.InstrumentFactorExposures(ctx, ids, asOf)
	if err != nil {
		return result, fmt.Errorf("load factor exposures: %w", err)
	}
	for _, l := range loadings {
		w, ok := weights[l.InstrumentID]
		if !ok || w == 0 {
			continue
		}
		result.Exposures[l.FactorID] += w * l.Exposure
	}
	if len(result.Exposures) == 0 {
		return result, nil
	}

	start, end, err := f.window(ctx, asOf)
	if err != nil {
		return result, err
	}
	result.WindowDays = int(end.Sub(start).Hours()/24) + 1

	factorIDs := make([]string, 0, len(result.Exposures))
	for id := range result.Exposures {
		factorIDs = append(factorIDs, id)
	}
	sort.Strings(factorIDs)

	history, err := f.reader.FactorReturns(ctx, factorIDs, start, end)
	if err != nil {
		return result, fmt.Errorf("load factor returns: %w", err)
	}

	variance, used := 0.0, 0
	for _, id := range factorIDs {
		series := history[id]
		if len(series) < 2 {
			continue
		}
		sigma := stat.StdDev(series, nil)
		if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			continue
		}
		contrib := result.Exposures[id] * sigma
		variance += contrib * contrib
		used++
	}
	if used == 0 || variance <= 0 {
		f.log.Debug().
			Int("factors", len(factorIDs)).
			Msg("no factor return history in window, factor risk left empty")
		return &FactorRiskResult{Exposures: map[string]float64{}}, nil
	}
	result.Volatility = math.Sqrt(variance)

	f.log.Debug().
		Int("factors", len(factorIDs)).
		Int("factors_with_history", used).
		Float64("volatility", result.Volatility).
		Msg("factor risk computed")

	return result, nil
}

// window picks the covering panel clipped to asOf, else a trailing fallback
func (f *FactorRisk) window(ctx context.Context, asOf time.Time) (time.Time, time.Time, error) {
	end := contracts.DateOnly(asOf)
	fallback := end.AddDate(0, 0, -f.fallbackDays)

	panel, err := f.reader.CoveringPanel(ctx, asOf)
	if err != nil {
		return fallback, end, fmt.Errorf("load correlation panel: %w", err)
	}
	if panel == nil {
		return fallback, end, nil
	}

	start := contracts.DateOnly(panel.StartDate)
	pEnd := contracts.DateOnly(panel.EndDate)
	if pEnd.After(end) {
		pEnd = end
	}
	if !start.Before(pEnd) {
		return fallback, end, nil
	}
	return start, pEnd, nil
}

package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// Fragility aggregates added to the risk report
const (
	MetricFragilityWeightTotal    = "fragility_weight_total"
	MetricFragilityWeightFraction = "fragility_weight_fraction"
	MetricFragilityScoreMean      = "fragility_score_weighted_mean"
	MetricFragilityScoreMax       = "fragility_score_max"
	MetricFragilityNumMeasured    = "fragility_num_names_with_measure"
)

// fragilityClassNone marks a measured but non-fragile instrument
const fragilityClassNone = "NONE"

// BuildRiskReport derives the risk report of a target portfolio. When
// target is nil it is built first. Fragility and scenario failures leave
// the rest of the report intact.
func (m *Model) BuildRiskReport(ctx context.Context, portfolioID string, asOf time.Time, target *contracts.TargetPortfolio) (*contracts.RiskReport, error) {
	asOf = contracts.DateOnly(asOf)
	if target == nil {
		built, err := m.BuildTargetPortfolio(ctx, portfolioID, asOf)
		if err != nil {
			return nil, fmt.Errorf("build target portfolio: %w", err)
		}
		target = built
	}

	report := &contracts.RiskReport{
		PortfolioID: portfolioID,
		AsOfDate:    asOf,
		Exposures:   make(map[string]float64, len(target.FactorExposures)),
		RiskMetrics: make(map[string]float64, len(target.RiskMetrics)+5),
		Metadata:    map[string]interface{}{"risk_model_id": m.cfg.RiskModelID},
	}
	for k, v := range target.FactorExposures {
		report.Exposures[k] = v
	}
	for k, v := range target.RiskMetrics {
		report.RiskMetrics[k] = v
	}

	fragMetrics, byClass, err := m.fragilityMetrics(ctx, target.Weights)
	if err != nil {
		m.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("fragility measures unavailable")
	}
	for k, v := range fragMetrics {
		report.RiskMetrics[k] = v
	}
	if len(byClass) > 0 {
		report.Metadata["fragility_weight_by_class"] = byClass
	}

	if m.deps.Scenarios != nil {
		for _, setID := range m.cfg.ScenarioSetIDs {
			res, err := m.deps.Scenarios.PortfolioScenarioPnL(ctx, setID, target.Weights)
			if err != nil {
				m.log.Warn().Err(err).
					Str("portfolio_id", portfolioID).
					Str("scenario_set_id", setID).
					Msg("scenario risk failed, skipping set")
				continue
			}
			if res == nil {
				continue
			}
			if report.ScenarioPnL == nil {
				report.ScenarioPnL = map[string]float64{}
			}
			for k, v := range res.PnL {
				report.ScenarioPnL[k] = v
			}
			for k, v := range res.Summary {
				report.RiskMetrics[setID+":"+k] = v
			}
		}
	}

	return report, nil
}

// fragilityMetrics aggregates the latest fragility measure of each held
// name. byClass maps class label to absolute weight and is JSON-native so
// it survives storage unchanged.
func (m *Model) fragilityMetrics(ctx context.Context, weights map[string]float64) (map[string]float64, map[string]interface{}, error) {
	if m.deps.Fragility == nil || len(weights) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(weights))
	for id, w := range weights {
		if w != 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	measures, err := m.deps.Fragility.LatestMeasures(ctx, contracts.EntityTypeInstrument, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load fragility measures: %w", err)
	}
	if len(measures) == 0 {
		return nil, nil, nil
	}

	var (
		totalAbs, fragileAbs, weightedScore, scoreMax float64
		measured                                      int
	)
	byClass := map[string]interface{}{}
	for _, id := range ids {
		measure, ok := measures[id]
		if !ok {
			continue
		}
		absW := math.Abs(weights[id])
		if absW <= 0 {
			continue
		}
		totalAbs += absW
		measured++

		weightedScore += measure.FragilityScore * absW
		if measure.FragilityScore > scoreMax {
			scoreMax = measure.FragilityScore
		}
		if measure.ClassLabel != fragilityClassNone {
			fragileAbs += absW
		}
		prev, _ := byClass[measure.ClassLabel].(float64)
		byClass[measure.ClassLabel] = prev + absW
	}
	if totalAbs <= 0 {
		return nil, byClass, nil
	}

	return map[string]float64{
		MetricFragilityWeightTotal:    fragileAbs,
		MetricFragilityWeightFraction: fragileAbs / totalAbs,
		MetricFragilityScoreMean:      weightedScore / totalAbs,
		MetricFragilityScoreMax:       scoreMax,
		MetricFragilityNumMeasured:    float64(measured),
	}, byClass, nil
}

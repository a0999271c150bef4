package s1_universe

import (
	"context"
	"math"
	"time"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// Provider names used in failure metrics
const (
	providerAlpha     = "alpha"
	providerLambda    = "lambda"
	providerStability = "stability_risk"
	providerRegime    = "regime_risk"
)

// Reasons is the diagnostic map attached to a member
type Reasons map[string]interface{}

func (r Reasons) clone() Reasons {
	out := make(Reasons, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// regimeModifier is the regime change risk shared by every candidate of a build
type regimeModifier struct {
	riskScore  float64
	pChangeAny float64
	multiplier float64
}

// lookupLambda returns the weighted cluster opportunity contribution, recording
// the raw lookup into reasons. Misses and failures contribute 0.
func (e *Engine) lookupLambda(ctx context.Context, asOf time.Time, ref contracts.InstrumentRef, class contracts.SoftTargetClass, reasons Reasons) float64 {
	if e.lambda == nil || e.cfg.LambdaScoreWeight == 0 {
		return 0
	}

	score, err := e.lambda.GetClusterScore(ctx, asOf, ref.MarketID, ref.Sector, class)
	if err != nil {
		e.log.Warn().Err(err).
			Str("instrument_id", ref.InstrumentID).
			Str("cluster_id", clusterID(ref, class)).
			Msg("cluster score lookup failed, skipping")
		e.recorder.RecordModifierFailure(providerLambda)
		return 0
	}
	if score == nil {
		return 0
	}
	if !isFinite(*score) {
		e.log.Warn().
			Str("instrument_id", ref.InstrumentID).
			Str("cluster_id", clusterID(ref, class)).
			Msg("non-finite cluster score, skipping")
		e.recorder.RecordModifierFailure(providerLambda)
		return 0
	}

	reasons["lambda_score"] = *score
	reasons["lambda_score_weight"] = e.cfg.LambdaScoreWeight
	if d, ok := e.lambda.(contracts.ExperimentDescriber); ok {
		experimentID, column := d.ExperimentInfo()
		if experimentID != "" {
			reasons["lambda_experiment_id"] = experimentID
		}
		if column != "" {
			reasons["lambda_score_column"] = column
		}
	}
	return e.cfg.LambdaScoreWeight * *score
}

// applyStabilityRisk shrinks score by max(0, 1 - alpha*risk) using the
// instrument's soft-target change risk.
func (e *Engine) applyStabilityRisk(ctx context.Context, instrumentID string, score float64, reasons Reasons) float64 {
	if e.stabilityRisk == nil || e.cfg.StabilityRiskAlpha == 0 {
		return score
	}

	risk, err := e.stabilityRisk.Forecast(ctx, instrumentID, e.cfg.StabilityRiskHorizon)
	if err != nil {
		e.log.Warn().Err(err).Str("instrument_id", instrumentID).Msg("stability risk forecast failed, skipping")
		e.recorder.RecordModifierFailure(providerStability)
		return score
	}
	if risk == nil {
		return score
	}
	if !isProbability(risk.RiskScore) || !isProbability(risk.PWorsenAny) || !isProbability(risk.PToTargetableOrBreaker) {
		e.log.Warn().Str("instrument_id", instrumentID).Float64("risk_score", risk.RiskScore).
			Msg("stability risk score outside [0,1], skipping")
		e.recorder.RecordModifierFailure(providerStability)
		return score
	}

	multiplier := riskMultiplier(e.cfg.StabilityRiskAlpha, risk.RiskScore)
	reasons["stab_risk_score"] = risk.RiskScore
	reasons["stab_p_worsen_any"] = risk.PWorsenAny
	reasons["stab_p_to_targetable_or_breaker"] = risk.PToTargetableOrBreaker
	reasons["stab_risk_alpha"] = e.cfg.StabilityRiskAlpha
	reasons["stab_risk_multiplier"] = multiplier
	return score * multiplier
}

// loadRegimeModifier forecasts the configured region once per build. Nil means
// the modifier is disabled, absent or failed.
func (e *Engine) loadRegimeModifier(ctx context.Context) *regimeModifier {
	if e.regimeRisk == nil || e.cfg.RegimeRiskAlpha == 0 {
		return nil
	}

	risk, err := e.regimeRisk.Forecast(ctx, e.cfg.RegimeRegion, e.cfg.RegimeRiskHorizon)
	if err != nil {
		e.log.Warn().Err(err).Str("region", e.cfg.RegimeRegion).Msg("regime risk forecast failed, skipping")
		e.recorder.RecordModifierFailure(providerRegime)
		return nil
	}
	if risk == nil {
		e.log.Info().Str("region", e.cfg.RegimeRegion).Msg("no regime history, regime modifier not applied")
		return nil
	}
	if !isProbability(risk.RiskScore) || !isProbability(risk.PChangeAny) {
		e.log.Warn().Str("region", e.cfg.RegimeRegion).Float64("risk_score", risk.RiskScore).
			Msg("regime risk score outside [0,1], skipping")
		e.recorder.RecordModifierFailure(providerRegime)
		return nil
	}

	return &regimeModifier{
		riskScore:  risk.RiskScore,
		pChangeAny: risk.PChangeAny,
		multiplier: riskMultiplier(e.cfg.RegimeRiskAlpha, risk.RiskScore),
	}
}

func (e *Engine) applyRegimeRisk(mod *regimeModifier, score float64, reasons Reasons) float64 {
	if mod == nil {
		return score
	}
	reasons["regime_risk_score"] = mod.riskScore
	reasons["regime_p_change_any"] = mod.pChangeAny
	reasons["regime_risk_alpha"] = e.cfg.RegimeRiskAlpha
	reasons["regime_risk_multiplier"] = mod.multiplier
	return score * mod.multiplier
}

func riskMultiplier(alpha, risk float64) float64 {
	m := 1 - alpha*risk
	if m < 0 {
		return 0
	}
	return m
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// isProbability is false for NaN
func isProbability(x float64) bool {
	return x >= 0 && x <= 1
}

func clusterID(ref contracts.InstrumentRef, class contracts.SoftTargetClass) string {
	return ref.MarketID + "|" + ref.Sector + "|" + string(class)
}

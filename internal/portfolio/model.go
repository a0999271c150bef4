package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/risk"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
)

// Risk metric keys written on every target portfolio
const (
	MetricGrossExposure      = "gross_exposure"
	MetricNetExposure        = "net_exposure"
	MetricFragilityExposure  = "fragility_exposure"
	MetricNumNames           = "num_names"
	MetricExpectedVolatility = "expected_volatility"
	MetricRiskWindowDays     = "risk_window_days"
)

// Constraint status keys
const (
	ConstraintMaxWeightBinding   = "per_instrument_max_weight_binding"
	ConstraintMaxWeightFeasible  = "per_instrument_max_weight_feasible"
	ConstraintFragilityWithinCap = "fragility_exposure_within_limit"
)

// ScenarioRisk evaluates a weight vector under a scenario set
type ScenarioRisk interface {
	PortfolioScenarioPnL(ctx context.Context, setID string, weights map[string]float64) (*risk.ScenarioResult, error)
}

// Deps wires the model's readers; only Universe is required
type Deps struct {
	Universe  contracts.UniverseReader
	Factors   contracts.FactorDataReader
	Fragility contracts.FragilityMeasureReader
	Scenarios ScenarioRisk
	Recorder  *metrics.Recorder
}

// Model builds long-only target portfolios from a stored universe.
// Weights are proportional to the positive member scores, capped per name.
type Model struct {
	cfg        Config
	deps       Deps
	factorRisk *FactorRisk
	log        zerolog.Logger
}

var _ contracts.PortfolioModel = (*Model)(nil)

// NewModel creates a portfolio model
func NewModel(cfg Config, deps Deps, log zerolog.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Universe == nil {
		return nil, fmt.Errorf("%w: universe reader is required", ErrInvalidConfig)
	}
	logger := log.With().Str("component", "portfolio.model").Logger()
	return &Model{
		cfg:        cfg,
		deps:       deps,
		factorRisk: NewFactorRisk(deps.Factors, cfg.FactorFallbackDays, log),
		log:        logger,
	}, nil
}

// Config returns the model configuration
func (m *Model) Config() Config {
	return m.cfg
}

// BuildTargetPortfolio derives target weights from the included members
// of the configured universe at asOf.
func (m *Model) BuildTargetPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (*contracts.TargetPortfolio, error) {
	asOf = contracts.DateOnly(asOf)

	members, err := m.deps.Universe.GetUniverse(ctx, asOf, m.cfg.UniverseID, contracts.EntityTypeInstrument, true)
	if err != nil {
		return nil, fmt.Errorf("load universe %s: %w", m.cfg.UniverseID, err)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].EntityID < members[j].EntityID
	})

	target := &contracts.TargetPortfolio{
		PortfolioID:       portfolioID,
		AsOfDate:          asOf,
		Weights:           map[string]float64{},
		RiskMetrics:       map[string]float64{},
		FactorExposures:   map[string]float64{},
		ConstraintsStatus: map[string]bool{},
		Metadata: map[string]interface{}{
			"risk_model_id": m.cfg.RiskModelID,
			"universe_id":   m.cfg.UniverseID,
		},
	}

	scores := make([]float64, len(members))
	for i, mem := range members {
		scores[i] = mem.Score
	}
	weights, binding := CapWeights(BaseWeights(scores), m.cfg.PerInstrumentMaxWeight)

	sectors := map[string]interface{}{}
	gross, net, fragile, expected := 0.0, 0.0, 0.0, 0.0
	for i, mem := range members {
		w := weights[i]
		target.Weights[mem.EntityID] = w
		gross += math.Abs(w)
		net += w
		if memberIsFragile(&mem) {
			fragile += w
		}
		if s := mem.Score; s > 0 && !math.IsInf(s, 0) {
			expected += w * s
		}
		sector, _ := mem.ReasonString("sector")
		if sector == "" {
			sector = "UNKNOWN"
		}
		prev, _ := sectors[sector].(float64)
		sectors[sector] = prev + w
	}
	target.ExpectedReturn = expected
	target.Metadata["sector_exposures"] = sectors

	fr, err := m.factorRisk.Compute(ctx, asOf, target.Weights)
	if err != nil {
		m.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("factor risk unavailable, using zero volatility")
		fr = &FactorRiskResult{Exposures: map[string]float64{}}
	}
	target.FactorExposures = fr.Exposures
	target.ExpectedVolatility = fr.Volatility

	target.RiskMetrics[MetricGrossExposure] = gross
	target.RiskMetrics[MetricNetExposure] = net
	target.RiskMetrics[MetricFragilityExposure] = fragile
	target.RiskMetrics[MetricNumNames] = float64(len(members))
	target.RiskMetrics[MetricExpectedVolatility] = fr.Volatility
	if fr.WindowDays > 0 {
		target.RiskMetrics[MetricRiskWindowDays] = float64(fr.WindowDays)
	}

	target.ConstraintsStatus[ConstraintMaxWeightBinding] = m.cfg.capEnabled() && binding
	target.ConstraintsStatus[ConstraintMaxWeightFeasible] = capFeasible(len(members), m.cfg.PerInstrumentMaxWeight)
	target.ConstraintsStatus[ConstraintFragilityWithinCap] = fragile <= m.cfg.FragilityExposureLimit+1e-12

	m.deps.Recorder.RecordPortfolio(portfolioID, target.ExpectedVolatility, len(target.Weights))
	m.log.Info().
		Str("portfolio_id", portfolioID).
		Time("as_of", asOf).
		Int("names", len(target.Weights)).
		Float64("fragility_exposure", fragile).
		Float64("expected_volatility", target.ExpectedVolatility).
		Bool("cap_binding", binding).
		Msg("target portfolio built")

	return target, nil
}

// memberIsFragile reports a fragile soft-target class or a weak profile
func memberIsFragile(m *contracts.UniverseMember) bool {
	if m.ReasonBool("weak_profile") {
		return true
	}
	class, _ := m.ReasonString("soft_target_class")
	return contracts.SoftTargetClass(class).IsFragile()
}

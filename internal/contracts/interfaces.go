package contracts

import (
	"context"
	"time"
)

// RegimeModel classifies the market regime of a region
type RegimeModel interface {
	Classify(ctx context.Context, asOf time.Time, region string) (*RegimeState, error)
}

// UniverseModel builds a universe; the result holds included and excluded members
type UniverseModel interface {
	BuildUniverse(ctx context.Context, asOf time.Time, universeID string) ([]UniverseMember, error)
}

// PortfolioModel builds target portfolios and their risk reports
type PortfolioModel interface {
	BuildTargetPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (*TargetPortfolio, error)
	BuildRiskReport(ctx context.Context, portfolioID string, asOf time.Time, target *TargetPortfolio) (*RiskReport, error)
}

// NumericEncoder embeds a trailing numeric window ending at asOf
type NumericEncoder interface {
	EmbedAndStore(ctx context.Context, spec WindowSpec, asOf time.Time) ([]float64, error)
}

// StabilityStateProvider returns the latest soft-target state; nil when absent
type StabilityStateProvider interface {
	GetLatestState(ctx context.Context, entityType, entityID string) (*SoftTargetState, error)
}

// AlphaScoreProvider loads per-instrument alpha scores
type AlphaScoreProvider interface {
	LoadScores(ctx context.Context, strategyID string, marketIDs []string, asOf time.Time, horizonDays int) (map[string]float64, error)
}

// ClusterScoreProvider looks up a cluster-level opportunity score; nil when absent
type ClusterScoreProvider interface {
	GetClusterScore(ctx context.Context, asOf time.Time, marketID, sector string, class SoftTargetClass) (*float64, error)
}

// ExperimentDescriber is optionally implemented by ClusterScoreProvider
type ExperimentDescriber interface {
	ExperimentInfo() (experimentID, scoreColumn string)
}

// RegimeRiskForecaster forecasts regime change risk; nil when no state exists
type RegimeRiskForecaster interface {
	Forecast(ctx context.Context, region string, horizon int) (*RegimeChangeRisk, error)
}

// StabilityRiskForecaster forecasts soft-target class change risk; nil when unavailable
type StabilityRiskForecaster interface {
	Forecast(ctx context.Context, entityID string, horizon int) (*StabilityChangeRisk, error)
}

// PriceReader reads daily bars ordered by trade date
type PriceReader interface {
	ReadPrices(ctx context.Context, instrumentID string, from, to time.Time) ([]PriceBar, error)
}

// TradingCalendar returns ordered trading dates in [from, to]
type TradingCalendar interface {
	TradingDaysBetween(from, to time.Time) []time.Time
}

// InstrumentLister enumerates active equities in the given markets
type InstrumentLister interface {
	ListEquities(ctx context.Context, marketIDs []string) ([]InstrumentRef, error)
}

// UniverseReader loads stored universe members
type UniverseReader interface {
	GetUniverse(ctx context.Context, asOf time.Time, universeID, entityType string, includedOnly bool) ([]UniverseMember, error)
}

// FactorDataReader serves factor exposures and factor return history
type FactorDataReader interface {
	InstrumentFactorExposures(ctx context.Context, instrumentIDs []string, asOf time.Time) ([]FactorExposure, error)
	CoveringPanel(ctx context.Context, asOf time.Time) (*CorrelationPanel, error)
	FactorReturns(ctx context.Context, factorIDs []string, from, to time.Time) (map[string][]float64, error)
}

// FragilityMeasureReader returns the latest measure per entity
type FragilityMeasureReader interface {
	LatestMeasures(ctx context.Context, entityType string, entityIDs []string) (map[string]FragilityMeasure, error)
}

// ScenarioPathReader loads scenario paths of a set for the given instruments
type ScenarioPathReader interface {
	ReadScenarioPaths(ctx context.Context, scenarioSetID string, instrumentIDs []string) ([]ScenarioPathRow, error)
}

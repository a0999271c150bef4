package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/risk"
)

var asOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

type fakeUniverse struct {
	members []contracts.UniverseMember
	err     error
	calls   int
}

func (f *fakeUniverse) GetUniverse(_ context.Context, _ time.Time, _, _ string, includedOnly bool) ([]contracts.UniverseMember, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []contracts.UniverseMember
	for _, m := range f.members {
		if includedOnly && !m.Included {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type fakeFactors struct {
	loadings    []contracts.FactorExposure
	loadingsErr error
	panel       *contracts.CorrelationPanel
	returns     map[string][]float64

	from, to time.Time
}

func (f *fakeFactors) InstrumentFactorExposures(context.Context, []string, time.Time) ([]contracts.FactorExposure, error) {
	return f.loadings, f.loadingsErr
}

func (f *fakeFactors) CoveringPanel(context.Context, time.Time) (*contracts.CorrelationPanel, error) {
	return f.panel, nil
}

func (f *fakeFactors) FactorReturns(_ context.Context, _ []string, from, to time.Time) (map[string][]float64, error) {
	f.from, f.to = from, to
	return f.returns, nil
}

type fakeFragility map[string]contracts.FragilityMeasure

func (f fakeFragility) LatestMeasures(_ context.Context, _ string, ids []string) (map[string]contracts.FragilityMeasure, error) {
	out := map[string]contracts.FragilityMeasure{}
	for _, id := range ids {
		if m, ok := f[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type fakeScenarios struct {
	results map[string]*risk.ScenarioResult
	errs    map[string]error
}

func (f *fakeScenarios) PortfolioScenarioPnL(_ context.Context, setID string, _ map[string]float64) (*risk.ScenarioResult, error) {
	if err := f.errs[setID]; err != nil {
		return nil, err
	}
	return f.results[setID], nil
}

func member(id, sector string, score float64, class contracts.SoftTargetClass, weak bool) contracts.UniverseMember {
	return contracts.UniverseMember{
		AsOfDate:   asOf,
		UniverseID: "CORE_EQ_US",
		EntityType: contracts.EntityTypeInstrument,
		EntityID:   id,
		Included:   true,
		Score:      score,
		Tier:       contracts.TierCore,
		Reasons: map[string]interface{}{
			"sector":            sector,
			"soft_target_class": string(class),
			"weak_profile":      weak,
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig("CORE_EQ_US")
	cfg.PerInstrumentMaxWeight = 0.6
	return cfg
}

func newTestModel(cfg Config, deps Deps) (*Model, error) {
	return NewModel(cfg, deps, zerolog.Nop())
}

package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/risk"
)

func TestNewModel_Validation(t *testing.T) {
	_, err := newTestModel(DefaultConfig(""), Deps{Universe: &fakeUniverse{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newTestModel(testConfig(), Deps{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig()
	cfg.PerInstrumentMaxWeight = 1.5
	_, err = newTestModel(cfg, Deps{Universe: &fakeUniverse{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig()
	cfg.ScenarioSetIDs = []string{""}
	_, err = newTestModel(cfg, Deps{Universe: &fakeUniverse{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildTargetPortfolio(t *testing.T) {
	excluded := member("X", "TECH", 99, contracts.SoftTargetStable, false)
	excluded.Included = false
	universe := &fakeUniverse{members: []contracts.UniverseMember{
		member("B", "ENERGY", 1, contracts.SoftTargetFragile, false),
		member("A", "TECH", 10, contracts.SoftTargetStable, false),
		excluded,
	}}

	model, err := newTestModel(testConfig(), Deps{Universe: universe})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "US_CORE_LONG_EQ", asOf)
	require.NoError(t, err)

	assert.Equal(t, "US_CORE_LONG_EQ", target.PortfolioID)
	assert.True(t, target.AsOfDate.Equal(asOf))
	require.Len(t, target.Weights, 2)
	assert.InDelta(t, 0.6, target.Weights["A"], 1e-12)
	assert.InDelta(t, 0.4, target.Weights["B"], 1e-12)
	assert.InDelta(t, 1.0, target.TotalWeight(), 1e-12)
	assert.InDelta(t, 0.6*10+0.4*1, target.ExpectedReturn, 1e-12)

	assert.InDelta(t, 1.0, target.RiskMetrics[MetricGrossExposure], 1e-12)
	assert.InDelta(t, 1.0, target.RiskMetrics[MetricNetExposure], 1e-12)
	assert.InDelta(t, 0.4, target.RiskMetrics[MetricFragilityExposure], 1e-12)
	assert.Equal(t, 2.0, target.RiskMetrics[MetricNumNames])
	assert.Zero(t, target.RiskMetrics[MetricExpectedVolatility])
	assert.NotContains(t, target.RiskMetrics, MetricRiskWindowDays)

	assert.True(t, target.ConstraintsStatus[ConstraintMaxWeightBinding])
	assert.True(t, target.ConstraintsStatus[ConstraintMaxWeightFeasible])
	assert.True(t, target.ConstraintsStatus[ConstraintFragilityWithinCap])

	assert.Empty(t, target.FactorExposures)
	assert.Equal(t, "basic-longonly-v1", target.Metadata["risk_model_id"])
	sectors := target.Metadata["sector_exposures"].(map[string]interface{})
	assert.InDelta(t, 0.6, sectors["TECH"].(float64), 1e-12)
	assert.InDelta(t, 0.4, sectors["ENERGY"].(float64), 1e-12)
}

func TestBuildTargetPortfolio_FragilityLimit(t *testing.T) {
	cfg := testConfig()
	cfg.FragilityExposureLimit = 0.3
	model, err := newTestModel(cfg, Deps{Universe: &fakeUniverse{members: []contracts.UniverseMember{
		member("A", "TECH", 10, contracts.SoftTargetStable, false),
		member("B", "ENERGY", 1, contracts.SoftTargetBreaker, false),
	}}})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)
	assert.False(t, target.ConstraintsStatus[ConstraintFragilityWithinCap])
}

func TestBuildTargetPortfolio_FragilityToggle(t *testing.T) {
	base := []contracts.UniverseMember{
		member("A", "TECH", 4, contracts.SoftTargetStable, false),
		member("B", "TECH", 3, contracts.SoftTargetWatch, false),
		member("C", "ENERGY", 2, contracts.SoftTargetStable, false),
		member("D", "ENERGY", 1, contracts.SoftTargetStable, false),
	}
	cfg := testConfig()
	cfg.PerInstrumentMaxWeight = 0

	build := func(members []contracts.UniverseMember) *contracts.TargetPortfolio {
		model, err := newTestModel(cfg, Deps{Universe: &fakeUniverse{members: members}})
		require.NoError(t, err)
		target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
		require.NoError(t, err)
		return target
	}

	ref := build(base)
	assert.Zero(t, ref.RiskMetrics[MetricFragilityExposure])

	for i := range base {
		toggled := make([]contracts.UniverseMember, len(base))
		copy(toggled, base)
		m := toggled[i]
		m.Reasons = map[string]interface{}{
			"sector":            m.Reasons["sector"],
			"soft_target_class": m.Reasons["soft_target_class"],
			"weak_profile":      true,
		}
		toggled[i] = m

		got := build(toggled)
		delta := got.RiskMetrics[MetricFragilityExposure] - ref.RiskMetrics[MetricFragilityExposure]
		assert.InDelta(t, ref.Weights[m.EntityID], delta, 1e-12, "toggle %s", m.EntityID)
		assert.Equal(t, ref.Weights, got.Weights)
	}
}

func TestBuildTargetPortfolio_EqualWeightFallback(t *testing.T) {
	model, err := newTestModel(testConfig(), Deps{Universe: &fakeUniverse{members: []contracts.UniverseMember{
		member("A", "TECH", 0, contracts.SoftTargetStable, false),
		member("B", "TECH", -3, contracts.SoftTargetStable, false),
		member("C", "TECH", 0, contracts.SoftTargetStable, false),
	}}})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)
	for _, id := range []string{"A", "B", "C"} {
		assert.InDelta(t, 1.0/3, target.Weights[id], 1e-12)
	}
	assert.Zero(t, target.ExpectedReturn)
}

func TestBuildTargetPortfolio_EmptyUniverse(t *testing.T) {
	model, err := newTestModel(testConfig(), Deps{Universe: &fakeUniverse{}})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)
	assert.Empty(t, target.Weights)
	assert.Zero(t, target.RiskMetrics[MetricNumNames])
	assert.Zero(t, target.RiskMetrics[MetricGrossExposure])
	assert.False(t, target.ConstraintsStatus[ConstraintMaxWeightBinding])
	assert.True(t, target.ConstraintsStatus[ConstraintFragilityWithinCap])
}

func TestBuildTargetPortfolio_UniverseError(t *testing.T) {
	model, err := newTestModel(testConfig(), Deps{Universe: &fakeUniverse{err: errors.New("db down")}})
	require.NoError(t, err)

	_, err = model.BuildTargetPortfolio(context.Background(), "P", asOf)
	assert.Error(t, err)
}

func TestBuildTargetPortfolio_FactorRisk(t *testing.T) {
	mkt := []float64{0.01, -0.01, 0.01, -0.01}
	factors := &fakeFactors{
		loadings: []contracts.FactorExposure{
			{InstrumentID: "A", FactorID: "MKT", Exposure: 1.0},
			{InstrumentID: "B", FactorID: "MKT", Exposure: 0.5},
			{InstrumentID: "B", FactorID: "SIZE", Exposure: 2.0},
			{InstrumentID: "Z", FactorID: "SIZE", Exposure: 9.0},
		},
		panel: &contracts.CorrelationPanel{
			PanelID:   "P1",
			StartDate: asOf.AddDate(0, 0, -30),
			EndDate:   asOf.AddDate(0, 0, 10),
		},
		returns: map[string][]float64{
			"MKT":  mkt,
			"SIZE": {0.02, 0.02, 0.02},
		},
	}
	model, err := newTestModel(testConfig(), Deps{
		Universe: &fakeUniverse{members: []contracts.UniverseMember{
			member("A", "TECH", 10, contracts.SoftTargetStable, false),
			member("B", "ENERGY", 1, contracts.SoftTargetStable, false),
		}},
		Factors: factors,
	})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)

	assert.InDelta(t, 0.6+0.4*0.5, target.FactorExposures["MKT"], 1e-12)
	assert.InDelta(t, 0.4*2.0, target.FactorExposures["SIZE"], 1e-12)

	sigmaMkt := math.Sqrt((4 * 0.0001) / 3)
	want := math.Abs(0.8 * sigmaMkt)
	assert.InDelta(t, want, target.ExpectedVolatility, 1e-12)
	assert.InDelta(t, want, target.RiskMetrics[MetricExpectedVolatility], 1e-12)
	assert.Equal(t, 31.0, target.RiskMetrics[MetricRiskWindowDays])

	// panel end is clipped to the as-of date
	assert.True(t, factors.from.Equal(asOf.AddDate(0, 0, -30)))
	assert.True(t, factors.to.Equal(asOf))
}

func TestBuildTargetPortfolio_FactorFallbackWindow(t *testing.T) {
	factors := &fakeFactors{
		loadings: []contracts.FactorExposure{{InstrumentID: "A", FactorID: "MKT", Exposure: 1}},
		returns:  map[string][]float64{"MKT": {0.01, -0.01, 0.02}},
	}
	model, err := newTestModel(testConfig(), Deps{
		Universe: &fakeUniverse{members: []contracts.UniverseMember{member("A", "TECH", 1, contracts.SoftTargetStable, false)}},
		Factors:  factors,
	})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)
	assert.Equal(t, 64.0, target.RiskMetrics[MetricRiskWindowDays])
	assert.True(t, factors.from.Equal(asOf.AddDate(0, 0, -63)))
	assert.Positive(t, target.ExpectedVolatility)
	assert.Equal(t, 1.0, target.FactorExposures["MKT"])
}

func TestBuildTargetPortfolio_FactorsWithoutHistoryAreEmpty(t *testing.T) {
	tests := []struct {
		name    string
		returns map[string][]float64
	}{
		{"no returns", map[string][]float64{}},
		{"single observation", map[string][]float64{"MKT": {0.01}}},
		{"flat returns", map[string][]float64{"MKT": {0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := newTestModel(testConfig(), Deps{
				Universe: &fakeUniverse{members: []contracts.UniverseMember{member("A", "TECH", 1, contracts.SoftTargetStable, false)}},
				Factors: &fakeFactors{
					loadings: []contracts.FactorExposure{{InstrumentID: "A", FactorID: "MKT", Exposure: 1}},
					returns:  tt.returns,
				},
			})
			require.NoError(t, err)

			target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
			require.NoError(t, err)
			assert.Empty(t, target.FactorExposures)
			assert.Zero(t, target.ExpectedVolatility)
			assert.NotContains(t, target.RiskMetrics, MetricRiskWindowDays)
		})
	}
}

func TestBuildTargetPortfolio_FactorDataDegrades(t *testing.T) {
	model, err := newTestModel(testConfig(), Deps{
		Universe: &fakeUniverse{members: []contracts.UniverseMember{member("A", "TECH", 1, contracts.SoftTargetStable, false)}},
		Factors:  &fakeFactors{loadingsErr: errors.New("factor store down")},
	})
	require.NoError(t, err)

	target, err := model.BuildTargetPortfolio(context.Background(), "P", asOf)
	require.NoError(t, err)
	assert.Zero(t, target.ExpectedVolatility)
	assert.Empty(t, target.FactorExposures)
	assert.Equal(t, 1.0, target.Weights["A"])
}

func TestBuildRiskReport(t *testing.T) {
	scenarios := &fakeScenarios{
		results: map[string]*risk.ScenarioResult{
			"crash": {
				SetID:   "crash",
				PnL:     map[string]float64{"crash:0": -0.2, "crash:1": 0.05},
				Summary: map[string]float64{risk.MetricVaR95: -0.2},
			},
		},
		errs: map[string]error{"broken": errors.New("paths missing")},
	}
	cfg := testConfig()
	cfg.ScenarioSetIDs = []string{"broken", "crash"}

	model, err := newTestModel(cfg, Deps{
		Universe: &fakeUniverse{members: []contracts.UniverseMember{
			member("A", "TECH", 10, contracts.SoftTargetStable, false),
			member("B", "ENERGY", 1, contracts.SoftTargetStable, false),
		}},
		Fragility: fakeFragility{
			"A": {EntityID: "A", FragilityScore: 0.2, ClassLabel: "NONE"},
			"B": {EntityID: "B", FragilityScore: 0.8, ClassLabel: "SHORT_CANDIDATE"},
		},
		Scenarios: scenarios,
	})
	require.NoError(t, err)

	ctx := context.Background()
	target, err := model.BuildTargetPortfolio(ctx, "P", asOf)
	require.NoError(t, err)

	report, err := model.BuildRiskReport(ctx, "P", asOf, target)
	require.NoError(t, err)

	assert.Equal(t, "P", report.PortfolioID)
	assert.InDelta(t, 0.4, report.RiskMetrics[MetricFragilityWeightTotal], 1e-12)
	assert.InDelta(t, 0.4, report.RiskMetrics[MetricFragilityWeightFraction], 1e-12)
	assert.InDelta(t, 0.2*0.6+0.8*0.4, report.RiskMetrics[MetricFragilityScoreMean], 1e-12)
	assert.Equal(t, 0.8, report.RiskMetrics[MetricFragilityScoreMax])
	assert.Equal(t, 2.0, report.RiskMetrics[MetricFragilityNumMeasured])
	assert.Equal(t, target.RiskMetrics[MetricGrossExposure], report.RiskMetrics[MetricGrossExposure])

	byClass := report.Metadata["fragility_weight_by_class"].(map[string]interface{})
	assert.InDelta(t, 0.6, byClass["NONE"].(float64), 1e-12)
	assert.InDelta(t, 0.4, byClass["SHORT_CANDIDATE"].(float64), 1e-12)

	assert.Equal(t, map[string]float64{"crash:0": -0.2, "crash:1": 0.05}, report.ScenarioPnL)
	assert.Equal(t, -0.2, report.RiskMetrics["crash:"+risk.MetricVaR95])
	assert.NotContains(t, report.RiskMetrics, "broken:"+risk.MetricVaR95)

	// the report does not alias the target's maps
	report.RiskMetrics["extra"] = 1
	assert.NotContains(t, target.RiskMetrics, "extra")
}

func TestBuildRiskReport_BuildsTargetWhenMissing(t *testing.T) {
	universe := &fakeUniverse{members: []contracts.UniverseMember{member("A", "TECH", 1, contracts.SoftTargetStable, false)}}
	model, err := NewModel(testConfig(), Deps{Universe: universe}, zerolog.Nop())
	require.NoError(t, err)

	report, err := model.BuildRiskReport(context.Background(), "P", asOf, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, universe.calls)
	assert.Equal(t, 1.0, report.RiskMetrics[MetricNumNames])
	assert.Nil(t, report.ScenarioPnL)
	assert.NotContains(t, report.Metadata, "fragility_weight_by_class")
}

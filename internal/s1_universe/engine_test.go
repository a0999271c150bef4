package s1_universe

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
)

func TestBuildUniverse_HardFilters(t *testing.T) {
	cfg := testConfig()
	cfg.HardExclusionList = []string{"HX"}
	cfg.IssuerExclusionList = []string{"ISS_IX"}
	cfg.MinPrice = 5

	healthy := history(20, 2_000_000)
	prices := &fakePrices{
		bars: map[string][]contracts.PriceBar{
			"HX":     healthy,
			"IX":     healthy,
			"SHORT":  healthy[len(healthy)-3:],
			"ILLIQ":  history(20, 10),
			"CHEAP":  history(1, 2_000_000),
			"NOSTAB": healthy,
			"BRK":    healthy,
			"HIGH":   healthy,
			"WEAK":   healthy,
			"ERR":    healthy,
			"OK":     healthy,
		},
		errs: map[string]error{"PERR": errors.New("connection reset")},
	}
	states := fakeStability{
		"BRK":  {SoftTargetScore: 10, SoftTargetClass: contracts.SoftTargetBreaker},
		"HIGH": stable(90),
		"WEAK": {SoftTargetScore: 50, SoftTargetClass: contracts.SoftTargetFragile, WeakProfile: true},
		"OK":   stable(20),
	}

	expected := map[string]string{
		"HX":     ReasonHardExcludedInstrument,
		"IX":     ReasonHardExcludedIssuer,
		"SHORT":  ReasonInsufficientHistory,
		"PERR":   ReasonInsufficientHistory,
		"ILLIQ":  ReasonIlliquid,
		"CHEAP":  ReasonBelowMinPrice,
		"NOSTAB": ReasonNoStabState,
		"ERR":    ReasonNoStabState,
		"BRK":    ReasonExcludedBreaker,
		"HIGH":   ReasonHighSoftTargetScore,
		"WEAK":   ReasonWeakProfileFragile,
	}

	var refs []contracts.InstrumentRef
	for id := range expected {
		refs = append(refs, ref(id, "TECH"))
	}
	refs = append(refs, ref("OK", "TECH"))

	engine, err := newTestEngine(cfg, Deps{
		Instruments: &fakeInstruments{refs: refs},
		Prices:      prices,
		Stability:   states,
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	require.Len(t, members, len(refs))

	got := byID(members)
	for id, reason := range expected {
		t.Run(id, func(t *testing.T) {
			m := got[id]
			assert.False(t, m.Included)
			assert.Equal(t, contracts.TierExcluded, m.Tier)
			assert.Zero(t, m.Score)
			assert.True(t, m.ReasonBool(reason), "missing reason %s", reason)
			assert.Equal(t, reason, ExclusionReason(m))
		})
	}

	ok := got["OK"]
	assert.True(t, ok.Included)
	assert.Equal(t, contracts.TierCore, ok.Tier)
	assert.Empty(t, ExclusionReason(ok))
	assert.Equal(t, "OK", members[0].EntityID, "kept members come first")

	for _, m := range members {
		if !m.Included {
			assert.NotEmpty(t, ExclusionReason(m), "%s excluded without a reason", m.EntityID)
		}
	}
}

func TestBuildUniverse_ScoresAndTiers(t *testing.T) {
	bars := history(20, 2_000_000)
	engine, err := newTestEngine(testConfig(), Deps{
		Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{
			ref("A", "TECH"), ref("B", "TECH"), ref("C", "ENERGY"), ref("D", "HEALTH"),
		}},
		Prices:    &fakePrices{bars: map[string][]contracts.PriceBar{"A": bars, "B": bars, "C": bars, "D": bars}},
		Stability: fakeStability{"A": stable(20), "B": stable(40), "C": stable(10), "D": stable(30)},
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	require.Len(t, members, 4)

	wantOrder := []string{"C", "A", "D", "B"}
	wantScore := []float64{92, 82, 72, 62}
	wantTier := []contracts.Tier{contracts.TierCore, contracts.TierCore, contracts.TierSatellite, contracts.TierSatellite}
	for i, m := range members {
		assert.Equal(t, wantOrder[i], m.EntityID)
		assert.InDelta(t, wantScore[i], m.Score, 1e-9)
		assert.Equal(t, wantTier[i], m.Tier)
		assert.True(t, m.Included)
		assert.Equal(t, asOf, m.AsOfDate)
		assert.Equal(t, "TEST_UNI", m.UniverseID)
		assert.Equal(t, contracts.EntityTypeInstrument, m.EntityType)

		base, ok := m.ReasonFloat("base_score")
		require.True(t, ok)
		assert.InDelta(t, wantScore[i], base, 1e-9)
		vol, _ := m.ReasonFloat("avg_volume")
		assert.InDelta(t, 2_000_000, vol, 1e-6)
	}
}

func TestBuildUniverse_DeterministicAndOrderIndependent(t *testing.T) {
	bars := history(20, 2_000_000)
	prices := &fakePrices{bars: map[string][]contracts.PriceBar{"Z": bars, "A": bars, "M": bars}}
	states := fakeStability{"Z": stable(20), "A": stable(20), "M": stable(20)}

	build := func(refs ...contracts.InstrumentRef) []contracts.UniverseMember {
		engine, err := newTestEngine(testConfig(), Deps{
			Instruments: &fakeInstruments{refs: refs},
			Prices:      prices,
			Stability:   states,
		})
		require.NoError(t, err)
		members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
		require.NoError(t, err)
		return members
	}

	first := build(ref("Z", "TECH"), ref("A", "TECH"), ref("M", "TECH"))
	second := build(ref("M", "TECH"), ref("Z", "TECH"), ref("A", "TECH"))

	assert.Equal(t, first, second)
	assert.Equal(t, "A", first[0].EntityID)
	assert.Equal(t, "M", first[1].EntityID)
	assert.Equal(t, "Z", first[2].EntityID)
}

func TestBuildUniverse_CapacityCaps(t *testing.T) {
	bars := history(20, 2_000_000)
	deps := Deps{
		Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{
			ref("T1", "TECH"), ref("T2", "TECH"), ref("E1", "ENERGY"),
		}},
		Prices:    &fakePrices{bars: map[string][]contracts.PriceBar{"T1": bars, "T2": bars, "E1": bars}},
		Stability: fakeStability{"T1": stable(10), "T2": stable(20), "E1": stable(30)},
	}

	tests := []struct {
		name       string
		sectorMax  int
		maxSize    int
		wantKept   []string
		wantCapped map[string]string
	}{
		{"no caps", 0, 0, []string{"T1", "T2", "E1"}, nil},
		{"sector cap", 1, 0, []string{"T1", "E1"}, map[string]string{"T2": ReasonSectorCap}},
		{"sector then size cap", 1, 1, []string{"T1"}, map[string]string{"T2": ReasonSectorCap, "E1": ReasonMaxUniverseSize}},
		{"size cap only", -1, 2, []string{"T1", "T2"}, map[string]string{"E1": ReasonMaxUniverseSize}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.SectorMaxNames = tt.sectorMax
			cfg.MaxUniverseSize = tt.maxSize

			engine, err := newTestEngine(cfg, deps)
			require.NoError(t, err)
			members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
			require.NoError(t, err)
			require.Len(t, members, 3)

			var kept []string
			for _, m := range members {
				if m.Included {
					kept = append(kept, m.EntityID)
					continue
				}
				reason, ok := tt.wantCapped[m.EntityID]
				require.True(t, ok, "unexpected exclusion of %s", m.EntityID)
				assert.True(t, m.ReasonBool(reason))
				assert.Equal(t, contracts.TierExcluded, m.Tier)
				assert.Greater(t, m.Score, 0.0, "capped members keep their score")
			}
			assert.Equal(t, tt.wantKept, kept)
		})
	}
}

func TestBuildUniverse_CapsDoNotLeakReasons(t *testing.T) {
	bars := history(20, 2_000_000)
	cfg := testConfig()
	cfg.MaxUniverseSize = 1
	engine, err := newTestEngine(cfg, Deps{
		Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{ref("A", "TECH"), ref("B", "TECH")}},
		Prices:      &fakePrices{bars: map[string][]contracts.PriceBar{"A": bars, "B": bars}},
		Stability:   fakeStability{"A": stable(10), "B": stable(20)},
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	got := byID(members)
	assert.False(t, got["A"].ReasonBool(ReasonMaxUniverseSize))
	assert.True(t, got["B"].ReasonBool(ReasonMaxUniverseSize))
}

func TestCoreCut(t *testing.T) {
	tests := []struct {
		n        int
		fraction float64
		want     int
	}{
		{0, 0.5, 0},
		{1, 0.5, 1},
		{3, 0.5, 1},
		{4, 0.5, 2},
		{5, 0.2, 1},
		{10, 0.3, 3},
		{4, 1, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coreCut(tt.n, tt.fraction), "n=%d f=%g", tt.n, tt.fraction)
	}
}

func TestBuildUniverse_Modifiers(t *testing.T) {
	cfg := testConfig()
	cfg.UseAlphaScores = true
	cfg.AlphaStrategyID = "STRAT"
	cfg.AlphaScoreWeight = 10
	cfg.LambdaScoreWeight = 2
	cfg.StabilityRiskAlpha = 1
	cfg.RegimeRiskAlpha = 0.5

	bars := history(20, 2_000_000)
	regime := &fakeRegimeRisk{risk: &contracts.RegimeChangeRisk{RiskScore: 0.4, PChangeAny: 0.6}}
	engine, err := newTestEngine(cfg, Deps{
		Instruments:   &fakeInstruments{refs: []contracts.InstrumentRef{ref("A", "TECH"), ref("B", "TECH")}},
		Prices:        &fakePrices{bars: map[string][]contracts.PriceBar{"A": bars, "B": bars}},
		Stability:     fakeStability{"A": stable(20), "B": stable(20)},
		Alpha:         fakeAlpha{"A": 0.5, "B": -1},
		Lambda:        &fakeLambda{scores: map[string]float64{"US_EQ|TECH|STABLE": 3}},
		RegimeRisk:    regime,
		StabilityRisk: &fakeStabilityRisk{risks: map[string]float64{"A": 0.25}},
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	got := byID(members)

	a := got["A"]
	assert.InDelta(t, (82.0+5+6)*0.75*0.8, a.Score, 1e-9)
	assert.InDelta(t, 0.75, a.Reasons["stab_risk_multiplier"], 1e-12)
	assert.InDelta(t, 0.8, a.Reasons["regime_risk_multiplier"], 1e-12)
	assert.InDelta(t, 5.0, a.Reasons["alpha_component"], 1e-12)
	assert.Equal(t, 3.0, a.Reasons["lambda_score"])
	assert.Equal(t, "exp-1", a.Reasons["lambda_experiment_id"])
	assert.Equal(t, "lambda_hat", a.Reasons["lambda_score_column"])
	assert.Equal(t, "US_EQ|TECH|STABLE", a.Reasons["cluster_id"])

	b := got["B"]
	assert.InDelta(t, (82.0+6)*0.8, b.Score, 1e-9)
	assert.Equal(t, 0.0, b.Reasons["alpha_component"], "negative alpha contributes nothing")
	assert.NotContains(t, b.Reasons, "stab_risk_score")

	assert.Equal(t, 1, regime.calls, "regime risk is forecast once per build")
}

func TestBuildUniverse_ModifierFailuresAreSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.LambdaScoreWeight = 2
	cfg.StabilityRiskAlpha = 1
	cfg.RegimeRiskAlpha = 0.5

	bars := history(20, 2_000_000)
	recorder := metrics.New()
	engine, err := newTestEngine(cfg, Deps{
		Instruments:   &fakeInstruments{refs: []contracts.InstrumentRef{ref("A", "TECH"), ref("B", "TECH")}},
		Prices:        &fakePrices{bars: map[string][]contracts.PriceBar{"A": bars, "B": bars}},
		Stability:     fakeStability{"A": stable(20), "B": stable(30)},
		Lambda:        &fakeLambda{err: errors.New("lambda store unavailable")},
		RegimeRisk:    &fakeRegimeRisk{err: errors.New("regime store unavailable")},
		StabilityRisk: &fakeStabilityRisk{risks: map[string]float64{"B": 0.5}, fail: map[string]bool{"A": true}},
		Recorder:      recorder,
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	got := byID(members)

	a := got["A"]
	assert.True(t, a.Included)
	assert.InDelta(t, 82.0, a.Score, 1e-9)
	assert.NotContains(t, a.Reasons, "stab_risk_score")
	assert.NotContains(t, a.Reasons, "regime_risk_score")
	assert.NotContains(t, a.Reasons, "lambda_score")

	b := got["B"]
	assert.InDelta(t, 72.0*0.5, b.Score, 1e-9, "other instruments still get their modifier")

	n, err := promtestutil.GatherAndCount(recorder.Registry(), "prometheus_modifier_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBuildUniverse_NonFiniteModifiersAreSkipped(t *testing.T) {
	tests := []struct {
		name          string
		lambda        *fakeLambda
		stabilityRisk *fakeStabilityRisk
		regimeRisk    *fakeRegimeRisk
		alpha         fakeAlpha
		absent        string
	}{
		{
			name:   "nan lambda",
			lambda: &fakeLambda{scores: map[string]float64{"US_EQ|ENERGY|STABLE": math.NaN()}},
			absent: "lambda_score",
		},
		{
			name:   "inf lambda",
			lambda: &fakeLambda{scores: map[string]float64{"US_EQ|ENERGY|STABLE": math.Inf(1)}},
			absent: "lambda_score",
		},
		{
			name:          "nan stability risk",
			stabilityRisk: &fakeStabilityRisk{risks: map[string]float64{"A": math.NaN()}},
			absent:        "stab_risk_score",
		},
		{
			name:          "stability risk above one",
			stabilityRisk: &fakeStabilityRisk{risks: map[string]float64{"A": 1.5}},
			absent:        "stab_risk_score",
		},
		{
			name:       "nan regime risk",
			regimeRisk: &fakeRegimeRisk{risk: &contracts.RegimeChangeRisk{RiskScore: math.NaN(), PChangeAny: 0.5}},
			absent:     "regime_risk_score",
		},
		{
			name:   "nan alpha",
			alpha:  fakeAlpha{"A": math.NaN(), "B": 1},
			absent: "alpha_score",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.UseAlphaScores = true
			cfg.AlphaStrategyID = "STRAT"
			cfg.AlphaScoreWeight = 50
			cfg.LambdaScoreWeight = 2
			cfg.StabilityRiskAlpha = 1
			cfg.RegimeRiskAlpha = 1

			alpha := tt.alpha
			if alpha == nil {
				alpha = fakeAlpha{"A": 1, "B": 1}
			}
			deps := Deps{
				Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{ref("A", "ENERGY"), ref("B", "TECH")}},
				Prices:      &fakePrices{bars: map[string][]contracts.PriceBar{"A": history(20, 2_000_000), "B": history(20, 2_000_000)}},
				Stability:   fakeStability{"A": stable(20), "B": stable(20)},
				Alpha:       alpha,
				Recorder:    metrics.New(),
			}
			if tt.lambda != nil {
				deps.Lambda = tt.lambda
			}
			if tt.stabilityRisk != nil {
				deps.StabilityRisk = tt.stabilityRisk
			}
			if tt.regimeRisk != nil {
				deps.RegimeRisk = tt.regimeRisk
			}
			engine, err := newTestEngine(cfg, deps)
			require.NoError(t, err)

			members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
			require.NoError(t, err)
			got := byID(members)

			want := 82.0 + 50
			if tt.alpha != nil {
				want = 82.0
			}
			assert.InDelta(t, want, got["A"].Score, 1e-9)
			assert.NotContains(t, got["A"].Reasons, tt.absent)
			if tt.alpha == nil {
				assert.InDelta(t, got["B"].Score, got["A"].Score, 1e-9)
			}

			_, err = json.Marshal(members)
			assert.NoError(t, err)

			n, err := promtestutil.GatherAndCount(deps.Recorder.Registry(), "prometheus_modifier_failures_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBuildUniverse_AbsentRegimeHistory(t *testing.T) {
	cfg := testConfig()
	cfg.RegimeRiskAlpha = 1

	bars := history(20, 2_000_000)
	engine, err := newTestEngine(cfg, Deps{
		Instruments: &fakeInstruments{refs: []contracts.InstrumentRef{ref("A", "TECH")}},
		Prices:      &fakePrices{bars: map[string][]contracts.PriceBar{"A": bars}},
		Stability:   fakeStability{"A": stable(20)},
		RegimeRisk:  &fakeRegimeRisk{},
	})
	require.NoError(t, err)

	members, err := engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	require.NoError(t, err)
	assert.InDelta(t, 82.0, members[0].Score, 1e-9)
	assert.NotContains(t, members[0].Reasons, "regime_risk_multiplier")
}

func TestBuildUniverse_ListError(t *testing.T) {
	engine, err := newTestEngine(testConfig(), Deps{
		Instruments: &fakeInstruments{err: errors.New("db down")},
		Prices:      &fakePrices{},
		Stability:   fakeStability{},
	})
	require.NoError(t, err)

	_, err = engine.BuildUniverse(context.Background(), asOf, "TEST_UNI")
	assert.Error(t, err)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	deps := Deps{Instruments: &fakeInstruments{}, Prices: &fakePrices{}, Stability: fakeStability{}}

	tests := []struct {
		name   string
		mutate func(*Config)
		deps   Deps
	}{
		{"zero window", func(c *Config) { c.WindowDays = 0 }, deps},
		{"zero core fraction", func(c *Config) { c.CoreFraction = 0 }, deps},
		{"core fraction above one", func(c *Config) { c.CoreFraction = 1.5 }, deps},
		{"no markets", func(c *Config) { c.Markets = nil }, deps},
		{"zero horizon", func(c *Config) { c.RegimeRiskHorizon = 0 }, deps},
		{"alpha without strategy", func(c *Config) { c.UseAlphaScores = true }, deps},
		{"missing prices", func(*Config) {}, Deps{Instruments: &fakeInstruments{}, Stability: fakeStability{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := newTestEngine(cfg, tt.deps)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

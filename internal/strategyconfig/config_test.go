package strategyconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
regime:
  embedding_dim: 2
  regions:
    - region: US
      instrument: SPY.US
  prototypes:
    - label: CRISIS
      center: [1, 0]
    - label: CARRY
      center: [0, 1]
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "prometheus-daily", cfg.Meta.PipelineID)
	assert.Equal(t, 63, cfg.Regime.WindowDays)
	assert.Equal(t, 1.0, cfg.Regime.Temperature)
	assert.Equal(t, "CARRY", cfg.Regime.TargetLabel)
	assert.Equal(t, []string{"US_EQ"}, cfg.Regime.Regions[0].Markets)

	assert.Equal(t, 63, cfg.Universe.WindowDays)
	assert.Equal(t, 0.5, cfg.Universe.CoreFraction)
	assert.True(t, cfg.Universe.ExcludeBreakers)
	assert.Equal(t, 0.05, cfg.Portfolio.PerInstrumentMaxWeight)
	assert.Equal(t, "basic-longonly-v1", cfg.Portfolio.RiskModelID)
	assert.Equal(t, "lambda_hat", cfg.Lambda.ScoreColumn)
	assert.Equal(t, 30*time.Second, cfg.Guard.OpenTimeout)
}

func TestParse_ExplicitFalseSurvivesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
universe:
  exclude_breakers: false
  core_fraction: 0.25
`))
	require.NoError(t, err)
	assert.False(t, cfg.Universe.ExcludeBreakers)
	assert.True(t, cfg.Universe.ExcludeWeakProfileWhenFragile)
	assert.Equal(t, 0.25, cfg.Universe.CoreFraction)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		field string
	}{
		{"unknown field", "\nuniverse:\n  max_sizee: 3\n", ""},
		{"core fraction out of range", "\nuniverse:\n  core_fraction: 1.5\n", "universe.core_fraction"},
		{"cap out of range", "\nportfolio:\n  per_instrument_max_weight: 2\n", "portfolio.per_instrument_max_weight"},
		{"lambda weight without file", "\nuniverse:\n  lambda_score_weight: 3\n", "lambda.path"},
		{"bad target label", "\n  target_label: SIDEWAYS\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(minimalYAML + tt.extra))
			require.Error(t, err)
			if tt.field != "" {
				var verr ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
}

func TestValidate_Prototypes(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	cfg.Regime.Prototypes[1].Center = []float64{1, 2, 3}
	err = Validate(cfg)
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "regime.prototypes[1].center", verr.Field)

	cfg.Regime.Prototypes[1].Center = []float64{0, 1}
	cfg.Regime.Prototypes[1].Label = "CRISIS"
	require.True(t, errors.As(Validate(cfg), &verr))
	assert.Equal(t, "regime.prototypes[1].label", verr.Field)
}

func TestValidate_DuplicateRegion(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	cfg.Regime.Regions = append(cfg.Regime.Regions, Region{Region: "us", Instrument: "X", Markets: []string{"US_EQ"}})

	var verr ValidationError
	require.True(t, errors.As(Validate(cfg), &verr))
	assert.Equal(t, "regime.regions[1].region", verr.Field)
}

func TestRegionDerivedConfigs(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	region, ok := cfg.FindRegion("us")
	require.True(t, ok)

	assert.Equal(t, "CORE_EQ_US", UniverseID(region.Region))
	assert.Equal(t, "US_CORE_LONG_EQ", PortfolioID(region.Region))

	ucfg := cfg.UniverseConfig(region)
	assert.Equal(t, "US", ucfg.RegimeRegion)
	assert.Equal(t, []string{"US_EQ"}, ucfg.Markets)

	pcfg := cfg.PortfolioConfig(region)
	assert.Equal(t, "CORE_EQ_US", pcfg.UniverseID)
	require.NoError(t, pcfg.Validate())

	mcfg := cfg.RegimeModelConfig()
	assert.Equal(t, "SPY.US", mcfg.RegionInstruments["US"])
	assert.Len(t, mcfg.Prototypes, 2)
	assert.Equal(t, []string{"US"}, cfg.RegionCodes())
}

func TestHash(t *testing.T) {
	a, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.Universe.CoreFraction = 0.3
	hc, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestLoad_RepositoryPipeline(t *testing.T) {
	path := filepath.Join("..", "..", "config", "pipeline.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, raw, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, []string{"US"}, cfg.RegionCodes())
	assert.Len(t, cfg.Regime.Prototypes, 4)
}

package strategyconfig

import (
	"strings"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/guard"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/portfolio"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/regime"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s1_universe"
)

// Config is the whole daily pipeline configuration
type Config struct {
	Meta      Meta               `yaml:"meta" json:"meta"`
	Regime    Regime             `yaml:"regime" json:"regime"`
	Universe  s1_universe.Config `yaml:"universe" json:"universe"`
	Portfolio portfolio.Config   `yaml:"portfolio" json:"portfolio"`
	Lambda    Lambda             `yaml:"lambda" json:"lambda"`
	Guard     guard.Settings     `yaml:"guard" json:"guard"`
}

// Meta identifies the pipeline document
type Meta struct {
	PipelineID string `yaml:"pipeline_id" json:"pipeline_id" default:"prometheus-daily" validate:"required"`
	Version    string `yaml:"version" json:"version" default:"v1"`
}

// Regime configures classification per region
type Regime struct {
	Regions        []Region                    `yaml:"regions" json:"regions" validate:"min=1,dive"`
	WindowDays     int                         `yaml:"window_days" json:"window_days" default:"63" validate:"gt=0"`
	EncoderModelID string                      `yaml:"encoder_model_id" json:"encoder_model_id" default:"num-regime-core-v1"`
	EmbeddingDim   int                         `yaml:"embedding_dim" json:"embedding_dim" default:"384" validate:"gt=0"`
	Temperature    float64                     `yaml:"temperature" json:"temperature" default:"1" validate:"gt=0"`
	TargetLabel    string                      `yaml:"target_label" json:"target_label" default:"CARRY"`
	HorizonSteps   int                         `yaml:"horizon_steps" json:"horizon_steps" default:"1" validate:"gt=0"`
	Prototypes     []contracts.RegimePrototype `yaml:"prototypes" json:"prototypes" validate:"min=1"`
}

// Region binds a region code to its proxy instrument and equity markets
type Region struct {
	Region     string   `yaml:"region" json:"region" validate:"required"`
	Instrument string   `yaml:"instrument" json:"instrument" validate:"required"`
	Markets    []string `yaml:"markets" json:"markets" default:"[\"US_EQ\"]" validate:"min=1,dive,required"`
}

// Lambda points at the cluster opportunity CSV; an empty path disables it
type Lambda struct {
	Path         string `yaml:"path" json:"path"`
	ExperimentID string `yaml:"experiment_id" json:"experiment_id"`
	ScoreColumn  string `yaml:"score_column" json:"score_column" default:"lambda_hat"`
}

// UniverseID names the core equity universe of a region
func UniverseID(region string) string {
	return "CORE_EQ_" + strings.ToUpper(region)
}

// PortfolioID names the core long-only portfolio of a region
func PortfolioID(region string) string {
	return strings.ToUpper(region) + "_CORE_LONG_EQ"
}

// RegionCodes returns the configured region codes in order
func (c *Config) RegionCodes() []string {
	out := make([]string, 0, len(c.Regime.Regions))
	for _, r := range c.Regime.Regions {
		out = append(out, r.Region)
	}
	return out
}

// FindRegion returns the region entry for code
func (c *Config) FindRegion(code string) (Region, bool) {
	for _, r := range c.Regime.Regions {
		if strings.EqualFold(r.Region, code) {
			return r, true
		}
	}
	return Region{}, false
}

// RegimeModelConfig returns the classifier parameters
func (c *Config) RegimeModelConfig() regime.ModelConfig {
	instruments := make(map[string]string, len(c.Regime.Regions))
	for _, r := range c.Regime.Regions {
		instruments[r.Region] = r.Instrument
	}
	return regime.ModelConfig{
		RegionInstruments: instruments,
		WindowDays:        c.Regime.WindowDays,
		Prototypes:        c.Regime.Prototypes,
		Temperature:       c.Regime.Temperature,
	}
}

// UniverseConfig returns the universe settings specialised to a region
func (c *Config) UniverseConfig(r Region) s1_universe.Config {
	cfg := c.Universe
	cfg.Markets = append([]string(nil), r.Markets...)
	cfg.RegimeRegion = r.Region
	return cfg
}

// PortfolioConfig returns the portfolio settings reading the region's universe
func (c *Config) PortfolioConfig(r Region) portfolio.Config {
	cfg := c.Portfolio
	if cfg.UniverseID == "" {
		cfg.UniverseID = UniverseID(r.Region)
	}
	cfg.ScenarioSetIDs = append([]string(nil), c.Portfolio.ScenarioSetIDs...)
	return cfg
}

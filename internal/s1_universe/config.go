package s1_universe

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for construction parameters that cannot work
var ErrInvalidConfig = errors.New("invalid universe config")

// Config holds universe filter, ranking and capacity criteria
type Config struct {
	ModelID string   `yaml:"model_id" json:"model_id" default:"basic-equity-v1"`
	Markets []string `yaml:"markets" json:"markets" default:"[\"US_EQ\"]" validate:"min=1,dive,required"`

	// Hard filters
	HardExclusionList             []string `yaml:"hard_exclusion_list" json:"hard_exclusion_list"`
	IssuerExclusionList           []string `yaml:"issuer_exclusion_list" json:"issuer_exclusion_list"`
	WindowDays                    int      `yaml:"window_days" json:"window_days" default:"63" validate:"gt=0"`
	MinAvgVolume                  float64  `yaml:"min_avg_volume" json:"min_avg_volume" default:"100000" validate:"gte=0"`
	MinPrice                      float64  `yaml:"min_price" json:"min_price" validate:"gte=0"`
	MaxSoftTargetScore            float64  `yaml:"max_soft_target_score" json:"max_soft_target_score" default:"80"`
	ExcludeBreakers               bool     `yaml:"exclude_breakers" json:"exclude_breakers" default:"true"`
	ExcludeWeakProfileWhenFragile bool     `yaml:"exclude_weak_profile_when_fragile" json:"exclude_weak_profile_when_fragile" default:"true"`

	// Capacity; values <= 0 disable the cap
	MaxUniverseSize int     `yaml:"max_universe_size" json:"max_universe_size"`
	SectorMaxNames  int     `yaml:"sector_max_names" json:"sector_max_names"`
	CoreFraction    float64 `yaml:"core_fraction" json:"core_fraction" default:"0.5" validate:"gt=0,lte=1"`

	// Alpha scores from instrument_scores
	UseAlphaScores   bool    `yaml:"use_alpha_scores" json:"use_alpha_scores"`
	AlphaStrategyID  string  `yaml:"alpha_strategy_id" json:"alpha_strategy_id"`
	AlphaHorizonDays int     `yaml:"alpha_horizon_days" json:"alpha_horizon_days" default:"21" validate:"gt=0"`
	AlphaScoreWeight float64 `yaml:"alpha_score_weight" json:"alpha_score_weight" default:"50"`

	// Cluster opportunity (lambda)
	LambdaScoreWeight float64 `yaml:"lambda_score_weight" json:"lambda_score_weight"`

	// Risk modifiers; alpha 0 disables
	RegimeRegion         string  `yaml:"regime_region" json:"regime_region" default:"GLOBAL"`
	RegimeRiskAlpha      float64 `yaml:"regime_risk_alpha" json:"regime_risk_alpha"`
	RegimeRiskHorizon    int     `yaml:"regime_risk_horizon_steps" json:"regime_risk_horizon_steps" default:"1" validate:"gt=0"`
	StabilityRiskAlpha   float64 `yaml:"stability_risk_alpha" json:"stability_risk_alpha"`
	StabilityRiskHorizon int     `yaml:"stability_risk_horizon_steps" json:"stability_risk_horizon_steps" default:"1" validate:"gt=0"`
}

// DefaultConfig returns the basic equity universe settings
func DefaultConfig() Config {
	return Config{
		ModelID:                       "basic-equity-v1",
		Markets:                       []string{"US_EQ"},
		WindowDays:                    63,
		MinAvgVolume:                  100_000,
		MaxSoftTargetScore:            80,
		ExcludeBreakers:               true,
		ExcludeWeakProfileWhenFragile: true,
		CoreFraction:                  0.5,
		AlphaHorizonDays:              21,
		AlphaScoreWeight:              50,
		RegimeRegion:                  "GLOBAL",
		RegimeRiskHorizon:             1,
		StabilityRiskHorizon:          1,
	}
}

// Validate checks construction parameters
func (c Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("%w: at least one market is required", ErrInvalidConfig)
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("%w: window_days must be positive, got %d", ErrInvalidConfig, c.WindowDays)
	}
	if c.CoreFraction <= 0 || c.CoreFraction > 1 {
		return fmt.Errorf("%w: core_fraction must be in (0, 1], got %g", ErrInvalidConfig, c.CoreFraction)
	}
	if c.RegimeRiskHorizon <= 0 || c.StabilityRiskHorizon <= 0 {
		return fmt.Errorf("%w: risk horizons must be positive", ErrInvalidConfig)
	}
	if c.UseAlphaScores && c.AlphaStrategyID == "" {
		return fmt.Errorf("%w: alpha_strategy_id is required when use_alpha_scores is set", ErrInvalidConfig)
	}
	return nil
}

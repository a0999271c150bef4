package portfolio

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for construction parameters that cannot work
var ErrInvalidConfig = errors.New("invalid portfolio config")

// Config holds the long-only construction parameters
type Config struct {
	UniverseID  string `yaml:"universe_id" json:"universe_id"`
	RiskModelID string `yaml:"risk_model_id" json:"risk_model_id" default:"basic-longonly-v1"`

	// Per-name cap; 0 or >= 1 disables it
	PerInstrumentMaxWeight float64 `yaml:"per_instrument_max_weight" json:"per_instrument_max_weight" default:"0.05" validate:"gte=0,lte=1"`
	FragilityExposureLimit float64 `yaml:"fragility_exposure_limit" json:"fragility_exposure_limit" default:"0.5" validate:"gte=0,lte=1"`

	// Factor risk window used when no panel covers the date
	FactorFallbackDays int `yaml:"factor_fallback_days" json:"factor_fallback_days" default:"63" validate:"gt=0"`

	ScenarioSetIDs []string `yaml:"scenario_set_ids" json:"scenario_set_ids" validate:"dive,required"`
}

// DefaultConfig returns the basic long-only settings for a universe
func DefaultConfig(universeID string) Config {
	return Config{
		UniverseID:             universeID,
		RiskModelID:            "basic-longonly-v1",
		PerInstrumentMaxWeight: 0.05,
		FragilityExposureLimit: 0.5,
		FactorFallbackDays:     63,
	}
}

// Validate checks construction parameters
func (c Config) Validate() error {
	if c.UniverseID == "" {
		return fmt.Errorf("%w: universe_id is required", ErrInvalidConfig)
	}
	if c.PerInstrumentMaxWeight < 0 || c.PerInstrumentMaxWeight > 1 {
		return fmt.Errorf("%w: per_instrument_max_weight must be in [0, 1], got %g", ErrInvalidConfig, c.PerInstrumentMaxWeight)
	}
	if c.FragilityExposureLimit < 0 || c.FragilityExposureLimit > 1 {
		return fmt.Errorf("%w: fragility_exposure_limit must be in [0, 1], got %g", ErrInvalidConfig, c.FragilityExposureLimit)
	}
	if c.FactorFallbackDays <= 0 {
		return fmt.Errorf("%w: factor_fallback_days must be positive, got %d", ErrInvalidConfig, c.FactorFallbackDays)
	}
	for _, id := range c.ScenarioSetIDs {
		if id == "" {
			return fmt.Errorf("%w: empty scenario set id", ErrInvalidConfig)
		}
	}
	return nil
}

// capEnabled reports whether the per-name cap constrains anything
func (c Config) capEnabled() bool {
	return c.PerInstrumentMaxWeight > 0 && c.PerInstrumentMaxWeight < 1
}

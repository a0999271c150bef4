package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/redis"
)

// StateSource is the read side the forecaster needs
type StateSource interface {
	GetLatestRegime(ctx context.Context, region string) (*contracts.RegimeState, error)
	GetTransitionMatrix(ctx context.Context, region string) (map[string]map[string]float64, error)
}

// Cache stores JSON forecasts; *redis.Cache satisfies it
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Forecaster projects the latest regime of a region forward through the
// empirical Markov chain of regime transitions.
type Forecaster struct {
	source      StateSource
	targetLabel contracts.RegimeLabel
	cache       Cache
	cacheTTL    time.Duration
	log         zerolog.Logger
}

// NewForecaster creates a forecaster. An empty targetLabel means CARRY.
func NewForecaster(source StateSource, targetLabel contracts.RegimeLabel, log zerolog.Logger) *Forecaster {
	if targetLabel == "" {
		targetLabel = contracts.RegimeCarry
	}
	return &Forecaster{
		source:      source,
		targetLabel: targetLabel,
		log:         log.With().Str("component", "regime.forecaster").Logger(),
	}
}

// WithCache enables caching keyed by (region, horizon, latest state date,
// transition generation). Engine.WithForecastCache bumps the generation.
func (f *Forecaster) WithCache(cache Cache, ttl time.Duration) *Forecaster {
	f.cache = cache
	f.cacheTTL = ttl
	return f
}

// Forecast returns the change risk over horizon steps, or nil when no regime
// has been recorded for the region.
func (f *Forecaster) Forecast(ctx context.Context, region string, horizon int) (*contracts.RegimeChangeRisk, error) {
	if horizon <= 0 {
		return nil, ErrInvalidHorizon
	}

	current, err := f.source.GetLatestRegime(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("load latest regime: %w", err)
	}
	if current == nil {
		f.log.Warn().Str("region", region).Msg("no regime state found")
		return nil, nil
	}

	var key string
	if f.cache != nil {
		key = redis.RegimeRiskKey(region, horizon, current.AsOfDate.Format("2006-01-02"), f.generation(ctx, region))
		var cached contracts.RegimeChangeRisk
		found, err := f.cache.Get(ctx, key, &cached)
		if err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("forecast cache read failed")
		} else if found && cached.TargetLabel == f.targetLabel && cached.CurrentRegime == current.RegimeLabel {
			return &cached, nil
		}
	}

	rows, err := f.source.GetTransitionMatrix(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("load transition matrix: %w", err)
	}

	risk, err := f.project(current, rows, horizon)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, key, risk, f.cacheTTL); err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("forecast cache write failed")
		}
	}

	return risk, nil
}

// generation reads the region's transition stamp, 0 when unset or unreadable
func (f *Forecaster) generation(ctx context.Context, region string) int64 {
	var gen int64
	if _, err := f.cache.Get(ctx, redis.RegimeGenerationKey(region), &gen); err != nil {
		f.log.Warn().Err(err).Str("region", region).Msg("forecast generation read failed")
		return 0
	}
	return gen
}

func (f *Forecaster) project(current *contracts.RegimeState, rows map[string]map[string]float64, horizon int) (*contracts.RegimeChangeRisk, error) {
	states := make([]string, len(contracts.RegimeLabels))
	for i, l := range contracts.RegimeLabels {
		states[i] = string(l)
	}

	p := markov.Build(states, rows, f.log)
	dist, err := p.Distribution(string(current.RegimeLabel), horizon)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", current.RegimeLabel, err)
	}

	distribution := make(map[contracts.RegimeLabel]float64, len(dist))
	for _, l := range contracts.RegimeLabels {
		distribution[l] = dist[string(l)]
	}

	stressed := 0.0
	for _, l := range contracts.StressedRegimes {
		stressed += distribution[l]
	}
	stressed = markov.Clamp01(stressed)

	return &contracts.RegimeChangeRisk{
		AsOfDate:       current.AsOfDate,
		Region:         current.Region,
		CurrentRegime:  current.RegimeLabel,
		HorizonSteps:   horizon,
		Distribution:   distribution,
		PChangeAny:     markov.Clamp01(1 - distribution[current.RegimeLabel]),
		PToStressed:    stressed,
		PToCarry:       markov.Clamp01(distribution[contracts.RegimeCarry]),
		TargetLabel:    f.targetLabel,
		PToTargetLabel: markov.Clamp01(distribution[f.targetLabel]),
		RiskScore:      stressed,
	}, nil
}

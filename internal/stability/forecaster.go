// Package stability serves soft-target (fragility) states and forecasts
// soft-target class changes.
package stability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/redis"
)

var ErrInvalidHorizon = markov.ErrInvalidHorizon

// StateSource is the read side the forecaster needs
type StateSource interface {
	GetLatestState(ctx context.Context, entityType, entityID string) (*contracts.SoftTargetState, error)
	GetTransitionMatrix(ctx context.Context, entityType string) (map[string]map[string]float64, error)
}

// Cache stores JSON forecasts; *redis.Cache satisfies it
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Forecaster projects an entity's soft-target class through the empirical
// class transition chain of its entity type.
type Forecaster struct {
	source     StateSource
	entityType string
	cache      Cache
	cacheTTL   time.Duration
	log        zerolog.Logger
}

// NewForecaster creates a forecaster for entityType (INSTRUMENT if empty)
func NewForecaster(source StateSource, entityType string, log zerolog.Logger) *Forecaster {
	if entityType == "" {
		entityType = contracts.EntityTypeInstrument
	}
	return &Forecaster{
		source:     source,
		entityType: entityType,
		log:        log.With().Str("component", "stability.forecaster").Logger(),
	}
}

// WithCache enables caching keyed by (entity, horizon, latest state date)
func (f *Forecaster) WithCache(cache Cache, ttl time.Duration) *Forecaster {
	f.cache = cache
	f.cacheTTL = ttl
	return f
}

// Forecast returns nil when the entity has no state or no transitions exist
func (f *Forecaster) Forecast(ctx context.Context, entityID string, horizon int) (*contracts.StabilityChangeRisk, error) {
	if horizon <= 0 {
		return nil, ErrInvalidHorizon
	}

	current, err := f.source.GetLatestState(ctx, f.entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("load soft-target state: %w", err)
	}
	if current == nil {
		f.log.Debug().Str("entity_id", entityID).Msg("no soft-target state")
		return nil, nil
	}

	var key string
	if f.cache != nil {
		key = redis.StabilityRiskKey(f.entityType, entityID, horizon, current.AsOfDate.Format("2006-01-02"))
		var cached contracts.StabilityChangeRisk
		found, err := f.cache.Get(ctx, key, &cached)
		if err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("forecast cache read failed")
		} else if found && cached.CurrentClass == current.SoftTargetClass {
			return &cached, nil
		}
	}

	rows, err := f.source.GetTransitionMatrix(ctx, f.entityType)
	if err != nil {
		return nil, fmt.Errorf("load soft-target transitions: %w", err)
	}
	if len(rows) == 0 {
		f.log.Warn().Str("entity_type", f.entityType).Msg("empty soft-target transition matrix")
		return nil, nil
	}

	states := make([]string, len(contracts.SoftTargetClasses))
	for i, c := range contracts.SoftTargetClasses {
		states[i] = string(c)
	}

	dist, err := markov.Build(states, rows, f.log).Distribution(string(current.SoftTargetClass), horizon)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", current.SoftTargetClass, err)
	}

	risk := &contracts.StabilityChangeRisk{
		AsOfDate:     current.AsOfDate,
		EntityType:   current.EntityType,
		EntityID:     current.EntityID,
		CurrentClass: current.SoftTargetClass,
		HorizonSteps: horizon,
		Distribution: make(map[contracts.SoftTargetClass]float64, len(dist)),
	}

	rank := current.SoftTargetClass.Rank()
	for _, c := range contracts.SoftTargetClasses {
		p := dist[string(c)]
		risk.Distribution[c] = p
		switch {
		case c.Rank() > rank:
			risk.PWorsenAny += p
		case c.Rank() < rank:
			risk.PImproveAny += p
		}
		if c == contracts.SoftTargetTargetable || c == contracts.SoftTargetBreaker {
			risk.PToTargetableOrBreaker += p
		}
		if c == contracts.SoftTargetBreaker {
			risk.PToBreaker += p
		}
	}

	risk.PWorsenAny = markov.Clamp01(risk.PWorsenAny)
	risk.PImproveAny = markov.Clamp01(risk.PImproveAny)
	risk.PToTargetableOrBreaker = markov.Clamp01(risk.PToTargetableOrBreaker)
	risk.PToBreaker = markov.Clamp01(risk.PToBreaker)
	risk.RiskScore = risk.PToTargetableOrBreaker

	if f.cache != nil {
		if err := f.cache.Set(ctx, key, risk, f.cacheTTL); err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("forecast cache write failed")
		}
	}

	return risk, nil
}

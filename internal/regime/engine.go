package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/redis"
)

// Store persists regime states and transitions
type Store interface {
	StateSource
	SaveRegime(ctx context.Context, state *contracts.RegimeState) error
	GetLatestRegimeBefore(ctx context.Context, region string, asOf time.Time) (*contracts.RegimeState, error)
	GetHistory(ctx context.Context, region string, from, to time.Time) ([]contracts.RegimeState, error)
	RecordTransition(ctx context.Context, prev, cur *contracts.RegimeState) error
}

// Engine classifies through a RegimeModel and records the result
type Engine struct {
	model    contracts.RegimeModel
	store    Store
	recorder *metrics.Recorder
	cache    Cache
	log      zerolog.Logger
}

// NewEngine creates a regime engine. recorder may be nil.
func NewEngine(model contracts.RegimeModel, store Store, recorder *metrics.Recorder, log zerolog.Logger) *Engine {
	return &Engine{
		model:    model,
		store:    store,
		recorder: recorder,
		log:      log.With().Str("component", "regime.engine").Logger(),
	}
}

// WithForecastCache invalidates the region's cached forecasts whenever a
// transition is recorded. Pass the cache the Forecaster reads from.
func (e *Engine) WithForecastCache(cache Cache) *Engine {
	e.cache = cache
	return e
}

// GetRegime classifies, persists, and records a transition when the label
// differs from the previous stored state.
func (e *Engine) GetRegime(ctx context.Context, asOf time.Time, region string) (*contracts.RegimeState, error) {
	state, err := e.model.Classify(ctx, asOf, region)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", region, err)
	}

	prev, err := e.store.GetLatestRegimeBefore(ctx, region, state.AsOfDate)
	if err != nil {
		return nil, fmt.Errorf("load previous regime: %w", err)
	}

	if err := e.store.SaveRegime(ctx, state); err != nil {
		return nil, fmt.Errorf("save regime: %w", err)
	}

	if prev != nil && prev.RegimeLabel != state.RegimeLabel {
		if err := e.store.RecordTransition(ctx, prev, state); err != nil {
			return nil, fmt.Errorf("record transition: %w", err)
		}
		e.log.Info().
			Str("region", region).
			Str("from", string(prev.RegimeLabel)).
			Str("to", string(state.RegimeLabel)).
			Msg("regime transition")
		e.invalidateForecasts(ctx, region)
	}

	e.recorder.RecordRegime(region, string(state.RegimeLabel), state.Confidence)
	return state, nil
}

// invalidateForecasts replaces the region's generation stamp so every cached
// horizon misses on the next forecast
func (e *Engine) invalidateForecasts(ctx context.Context, region string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, redis.RegimeGenerationKey(region), time.Now().UnixNano(), 0); err != nil {
		e.log.Warn().Err(err).Str("region", region).Msg("forecast cache invalidation failed")
	}
}

// GetLatestRegime returns the most recent stored state, nil if none
func (e *Engine) GetLatestRegime(ctx context.Context, region string) (*contracts.RegimeState, error) {
	return e.store.GetLatestRegime(ctx, region)
}

// GetHistory returns stored states in [from, to] ordered by date
func (e *Engine) GetHistory(ctx context.Context, region string, from, to time.Time) ([]contracts.RegimeState, error) {
	return e.store.GetHistory(ctx, region, from, to)
}

// GetTransitionMatrix returns empirical transition probabilities per from-label
func (e *Engine) GetTransitionMatrix(ctx context.Context, region string) (map[string]map[string]float64, error) {
	return e.store.GetTransitionMatrix(ctx, region)
}

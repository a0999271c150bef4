// Package regime classifies market regimes from numeric embeddings and
// forecasts regime change risk from the empirical transition history.
package regime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
)

var (
	ErrInvalidConfig     = errors.New("invalid regime model config")
	ErrDimensionMismatch = errors.New("embedding dimension does not match prototypes")
	ErrUnknownRegion     = errors.New("no instrument configured for region")
	ErrInvalidHorizon    = markov.ErrInvalidHorizon
)

// ModelConfig configures the nearest-prototype classifier
type ModelConfig struct {
	RegionInstruments map[string]string
	WindowDays        int
	Prototypes        []contracts.RegimePrototype
	Temperature       float64
}

// Assignment is the result of classifying one embedding
type Assignment struct {
	Label      contracts.RegimeLabel
	Confidence float64
	Distances  map[string]float64
}

// NumericModel assigns the regime of the nearest prototype to the embedding of
// a region's representative instrument.
type NumericModel struct {
	encoder contracts.NumericEncoder
	cfg     ModelConfig
	log     zerolog.Logger
}

// NewNumericModel validates the configuration and builds the model
func NewNumericModel(encoder contracts.NumericEncoder, cfg ModelConfig, log zerolog.Logger) (*NumericModel, error) {
	if cfg.WindowDays <= 0 {
		return nil, fmt.Errorf("%w: window_days must be positive", ErrInvalidConfig)
	}
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("%w: temperature must be positive", ErrInvalidConfig)
	}
	if len(cfg.Prototypes) == 0 {
		return nil, fmt.Errorf("%w: at least one prototype is required", ErrInvalidConfig)
	}

	dim := len(cfg.Prototypes[0].Center)
	if dim == 0 {
		return nil, fmt.Errorf("%w: prototype %s has an empty center", ErrInvalidConfig, cfg.Prototypes[0].Label)
	}
	for _, p := range cfg.Prototypes[1:] {
		if len(p.Center) != dim {
			return nil, fmt.Errorf("%w: prototype %s has dimension %d, expected %d",
				ErrDimensionMismatch, p.Label, len(p.Center), dim)
		}
	}

	return &NumericModel{
		encoder: encoder,
		cfg:     cfg,
		log:     log.With().Str("component", "regime.numeric_model").Logger(),
	}, nil
}

// Classify infers the regime for region on asOf
func (m *NumericModel) Classify(ctx context.Context, asOf time.Time, region string) (*contracts.RegimeState, error) {
	instrumentID, ok := m.cfg.RegionInstruments[region]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}

	spec := contracts.WindowSpec{
		EntityType: contracts.EntityTypeInstrument,
		EntityID:   instrumentID,
		WindowDays: m.cfg.WindowDays,
	}
	embedding, err := m.encoder.EmbedAndStore(ctx, spec, asOf)
	if err != nil {
		return nil, fmt.Errorf("embed %s window: %w", instrumentID, err)
	}

	a, err := m.ClassifyEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	distances := make(map[string]interface{}, len(a.Distances))
	for k, v := range a.Distances {
		distances[k] = v
	}

	m.log.Info().
		Time("as_of", asOf).
		Str("region", region).
		Str("instrument_id", instrumentID).
		Str("label", string(a.Label)).
		Float64("confidence", a.Confidence).
		Msg("regime classified")

	return &contracts.RegimeState{
		AsOfDate:    contracts.DateOnly(asOf),
		Region:      region,
		RegimeLabel: a.Label,
		Confidence:  a.Confidence,
		Embedding:   embedding,
		Metadata: map[string]interface{}{
			"window_days":   m.cfg.WindowDays,
			"temperature":   m.cfg.Temperature,
			"instrument_id": instrumentID,
			"distances":     distances,
		},
	}, nil
}

// ClassifyEmbedding assigns the nearest prototype's label. Confidence is the
// softmax of -distance/temperature at the winning prototype.
func (m *NumericModel) ClassifyEmbedding(embedding []float64) (Assignment, error) {
	dim := len(m.cfg.Prototypes[0].Center)
	if len(embedding) != dim {
		return Assignment{}, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(embedding), dim)
	}

	n := len(m.cfg.Prototypes)
	distances := make([]float64, n)
	logits := make([]float64, n)
	best := 0
	for i, p := range m.cfg.Prototypes {
		distances[i] = floats.Distance(embedding, p.Center, 2)
		logits[i] = -distances[i] / m.cfg.Temperature
		if distances[i] < distances[best] {
			best = i
		}
	}

	// shift by the max logit before exponentiating
	maxLogit := floats.Max(logits)
	sum := 0.0
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}

	byLabel := make(map[string]float64, n)
	for i, p := range m.cfg.Prototypes {
		byLabel[string(p.Label)] = distances[i]
	}

	return Assignment{
		Label:      m.cfg.Prototypes[best].Label,
		Confidence: logits[best] / sum,
		Distances:  byLabel,
	}, nil
}

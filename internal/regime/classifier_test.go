package regime

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

func linePrototypes() []contracts.RegimePrototype {
	return []contracts.RegimePrototype{
		{Label: contracts.RegimeCarry, Center: []float64{0, 0}},
		{Label: contracts.RegimeRiskOff, Center: []float64{1, 0}},
		{Label: contracts.RegimeCrisis, Center: []float64{2, 0}},
	}
}

func newModel(t *testing.T, enc contracts.NumericEncoder, temperature float64) *NumericModel {
	t.Helper()
	m, err := NewNumericModel(enc, ModelConfig{
		RegionInstruments: map[string]string{"US": "SPY.US"},
		WindowDays:        63,
		Prototypes:        linePrototypes(),
		Temperature:       temperature,
	}, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestNewNumericModel_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr error
	}{
		{"zero window", ModelConfig{WindowDays: 0, Temperature: 1, Prototypes: linePrototypes()}, ErrInvalidConfig},
		{"negative temperature", ModelConfig{WindowDays: 5, Temperature: -1, Prototypes: linePrototypes()}, ErrInvalidConfig},
		{"zero temperature", ModelConfig{WindowDays: 5, Temperature: 0, Prototypes: linePrototypes()}, ErrInvalidConfig},
		{"no prototypes", ModelConfig{WindowDays: 5, Temperature: 1}, ErrInvalidConfig},
		{"mixed dimensions", ModelConfig{WindowDays: 5, Temperature: 1, Prototypes: []contracts.RegimePrototype{
			{Label: contracts.RegimeCarry, Center: []float64{0, 0}},
			{Label: contracts.RegimeCrisis, Center: []float64{0, 0, 0}},
		}}, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNumericModel(&fakeEncoder{}, tt.cfg, zerolog.Nop())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClassifyEmbedding_ConfidenceSharpensWithLowerTemperature(t *testing.T) {
	warm := newModel(t, &fakeEncoder{}, 1.0)
	cold := newModel(t, &fakeEncoder{}, 0.1)

	a1, err := warm.ClassifyEmbedding([]float64{0, 0})
	require.NoError(t, err)
	a2, err := cold.ClassifyEmbedding([]float64{0, 0})
	require.NoError(t, err)

	assert.Equal(t, contracts.RegimeCarry, a1.Label)
	assert.Equal(t, contracts.RegimeCarry, a2.Label)

	wantWarm := 1 / (1 + math.Exp(-1) + math.Exp(-2))
	wantCold := 1 / (1 + math.Exp(-10) + math.Exp(-20))
	assert.InDelta(t, wantWarm, a1.Confidence, 1e-12)
	assert.InDelta(t, wantCold, a2.Confidence, 1e-12)
	assert.Less(t, a1.Confidence, a2.Confidence)

	assert.InDelta(t, 1.0, a1.Distances["RISK_OFF"], 1e-12)
	assert.InDelta(t, 2.0, a1.Distances["CRISIS"], 1e-12)
}

func TestClassifyEmbedding_PicksGlobalMinimum(t *testing.T) {
	m := newModel(t, &fakeEncoder{}, 0.5)

	embeddings := [][]float64{
		{-3, 0}, {0.4, 0.1}, {0.6, -2}, {1.49, 0}, {1.51, 0}, {9, 9}, {2, 0},
	}
	for _, e := range embeddings {
		a, err := m.ClassifyEmbedding(e)
		require.NoError(t, err)

		best := math.Inf(1)
		var bestLabel contracts.RegimeLabel
		for _, p := range linePrototypes() {
			d := math.Hypot(e[0]-p.Center[0], e[1]-p.Center[1])
			if d < best {
				best, bestLabel = d, p.Label
			}
		}
		assert.Equal(t, bestLabel, a.Label, "embedding %v", e)
		assert.GreaterOrEqual(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
	}
}

func TestClassifyEmbedding_FarEmbeddingIsStable(t *testing.T) {
	m := newModel(t, &fakeEncoder{}, 0.01)

	a, err := m.ClassifyEmbedding([]float64{1e6, 0})
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeCrisis, a.Label)
	assert.False(t, math.IsNaN(a.Confidence))
	assert.InDelta(t, 1.0, a.Confidence, 1e-9)
}

func TestClassifyEmbedding_DimensionMismatch(t *testing.T) {
	m := newModel(t, &fakeEncoder{}, 1.0)

	_, err := m.ClassifyEmbedding([]float64{0, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClassify(t *testing.T) {
	enc := &fakeEncoder{vec: []float64{1.9, 0.1}}
	m := newModel(t, enc, 1.0)

	state, err := m.Classify(context.Background(), day("2024-03-01"), "US")
	require.NoError(t, err)

	assert.Equal(t, contracts.RegimeCrisis, state.RegimeLabel)
	assert.Equal(t, "US", state.Region)
	assert.Equal(t, day("2024-03-01"), state.AsOfDate)
	assert.Equal(t, []float64{1.9, 0.1}, state.Embedding)
	assert.Equal(t, "SPY.US", state.Metadata["instrument_id"])
	assert.Equal(t, 63, state.Metadata["window_days"])
	assert.Contains(t, state.Metadata, "distances")

	require.Len(t, enc.calls, 1)
	assert.Equal(t, contracts.WindowSpec{EntityType: "INSTRUMENT", EntityID: "SPY.US", WindowDays: 63}, enc.calls[0])
}

func TestClassify_UnknownRegion(t *testing.T) {
	m := newModel(t, &fakeEncoder{vec: []float64{0, 0}}, 1.0)

	_, err := m.Classify(context.Background(), day("2024-03-01"), "EU")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestClassify_EncoderError(t *testing.T) {
	m := newModel(t, &fakeEncoder{err: errors.New("no prices")}, 1.0)

	_, err := m.Classify(context.Background(), day("2024-03-01"), "US")
	assert.Error(t, err)
}

func TestClassify_EncoderDimensionMismatch(t *testing.T) {
	m := newModel(t, &fakeEncoder{vec: []float64{1, 2, 3}}, 1.0)

	_, err := m.Classify(context.Background(), day("2024-03-01"), "US")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

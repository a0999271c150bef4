package encoder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// EmbeddingStore persists embeddings
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, spec contracts.WindowSpec, asOf time.Time, modelID string, vec []float64) error
}

// NumericEncoder composes a window builder, a model and a store
type NumericEncoder struct {
	builder *WindowBuilder
	model   Model
	store   EmbeddingStore
	modelID string
}

// NewNumericEncoder creates an encoder. store may be nil to skip persistence.
func NewNumericEncoder(builder *WindowBuilder, model Model, store EmbeddingStore, modelID string) *NumericEncoder {
	return &NumericEncoder{builder: builder, model: model, store: store, modelID: modelID}
}

// EmbedAndStore builds the window, encodes it and persists the embedding
func (e *NumericEncoder) EmbedAndStore(ctx context.Context, spec contracts.WindowSpec, asOf time.Time) ([]float64, error) {
	window, err := e.builder.Build(ctx, spec, asOf)
	if err != nil {
		return nil, err
	}

	vec := e.model.Encode(window)
	if e.store != nil {
		if err := e.store.SaveEmbedding(ctx, spec, asOf, e.modelID, vec); err != nil {
			return nil, fmt.Errorf("save embedding: %w", err)
		}
	}
	return vec, nil
}

// Store writes numeric_window_embeddings
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an embedding store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveEmbedding upserts on (entity_type, entity_id, as_of_date, model_id)
func (s *Store) SaveEmbedding(ctx context.Context, spec contracts.WindowSpec, asOf time.Time, modelID string, vec []float64) error {
	query := `
		INSERT INTO numeric_window_embeddings
			(entity_type, entity_id, window_spec, as_of_date, model_id, vector)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_type, entity_id, as_of_date, model_id) DO UPDATE SET
			window_spec = EXCLUDED.window_spec,
			vector = EXCLUDED.vector`

	_, err := s.pool.Exec(ctx, query, spec.EntityType, spec.EntityID, spec, asOf, modelID, vec)
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%s: %w", spec.EntityID, modelID, err)
	}
	return nil
}

// LoadEmbedding reads a stored vector, nil if absent
func (s *Store) LoadEmbedding(ctx context.Context, entityType, entityID string, asOf time.Time, modelID string) ([]float64, error) {
	var vec []float64
	err := s.pool.QueryRow(ctx, `
		SELECT vector FROM numeric_window_embeddings
		WHERE entity_type = $1 AND entity_id = $2 AND as_of_date = $3 AND model_id = $4`,
		entityType, entityID, asOf, modelID,
	).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding: %w", err)
	}
	return vec, nil
}

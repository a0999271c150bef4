package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// RegimeRisk guards a regime change-risk forecaster
type RegimeRisk struct {
	inner contracts.RegimeRiskForecaster
	g     *Guard
}

// NewRegimeRisk wraps inner
func NewRegimeRisk(inner contracts.RegimeRiskForecaster, s Settings, log zerolog.Logger) *RegimeRisk {
	return &RegimeRisk{inner: inner, g: New("regime_risk", s, log)}
}

// Forecast implements contracts.RegimeRiskForecaster
func (r *RegimeRisk) Forecast(ctx context.Context, region string, horizon int) (*contracts.RegimeChangeRisk, error) {
	out, err := r.g.Do(ctx, func() (interface{}, error) {
		return r.inner.Forecast(ctx, region, horizon)
	})
	if err != nil {
		return nil, err
	}
	risk, _ := out.(*contracts.RegimeChangeRisk)
	return risk, nil
}

// StabilityRisk guards a soft-target change-risk forecaster
type StabilityRisk struct {
	inner contracts.StabilityRiskForecaster
	g     *Guard
}

// NewStabilityRisk wraps inner
func NewStabilityRisk(inner contracts.StabilityRiskForecaster, s Settings, log zerolog.Logger) *StabilityRisk {
	return &StabilityRisk{inner: inner, g: New("stability_risk", s, log)}
}

// Forecast implements contracts.StabilityRiskForecaster
func (r *StabilityRisk) Forecast(ctx context.Context, entityID string, horizon int) (*contracts.StabilityChangeRisk, error) {
	out, err := r.g.Do(ctx, func() (interface{}, error) {
		return r.inner.Forecast(ctx, entityID, horizon)
	})
	if err != nil {
		return nil, err
	}
	risk, _ := out.(*contracts.StabilityChangeRisk)
	return risk, nil
}

// ClusterScore guards a cluster opportunity provider and forwards its
// experiment description when it has one
type ClusterScore struct {
	inner contracts.ClusterScoreProvider
	g     *Guard
}

// NewClusterScore wraps inner
func NewClusterScore(inner contracts.ClusterScoreProvider, s Settings, log zerolog.Logger) *ClusterScore {
	return &ClusterScore{inner: inner, g: New("lambda", s, log)}
}

// GetClusterScore implements contracts.ClusterScoreProvider
func (c *ClusterScore) GetClusterScore(ctx context.Context, asOf time.Time, marketID, sector string, class contracts.SoftTargetClass) (*float64, error) {
	out, err := c.g.Do(ctx, func() (interface{}, error) {
		return c.inner.GetClusterScore(ctx, asOf, marketID, sector, class)
	})
	if err != nil {
		return nil, err
	}
	score, _ := out.(*float64)
	return score, nil
}

// ExperimentInfo implements contracts.ExperimentDescriber
func (c *ClusterScore) ExperimentInfo() (string, string) {
	if d, ok := c.inner.(contracts.ExperimentDescriber); ok {
		return d.ExperimentInfo()
	}
	return "", ""
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records pipeline metrics into its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	universeMembers   *prometheus.CounterVec
	exclusions        *prometheus.CounterVec
	modifierFailures  *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	regimeConfidence  *prometheus.GaugeVec
	portfolioVol      *prometheus.GaugeVec
	portfolioNumNames *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		universeMembers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prometheus_universe_members_total",
				Help: "Universe members produced, by universe and tier",
			},
			[]string{"universe_id", "tier"},
		),
		exclusions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prometheus_universe_exclusions_total",
				Help: "Universe exclusions by reason",
			},
			[]string{"universe_id", "reason"},
		),
		modifierFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prometheus_modifier_failures_total",
				Help: "Score modifier provider failures",
			},
			[]string{"provider"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prometheus_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		regimeConfidence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prometheus_regime_confidence",
				Help: "Confidence of the latest regime classification",
			},
			[]string{"region", "label"},
		),
		portfolioVol: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prometheus_portfolio_expected_volatility",
				Help: "Expected volatility of the latest target portfolio",
			},
			[]string{"portfolio_id"},
		),
		portfolioNumNames: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prometheus_portfolio_num_names",
				Help: "Number of names in the latest target portfolio",
			},
			[]string{"portfolio_id"},
		),
	}
}

// Registry exposes the underlying registry (tests, custom collectors).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns the scrape handler for this recorder.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordMember records one universe member outcome.
func (r *Recorder) RecordMember(universeID, tier string) {
	if r == nil {
		return
	}
	r.universeMembers.WithLabelValues(universeID, tier).Inc()
}

// RecordExclusion records a hard-filter or capacity exclusion.
func (r *Recorder) RecordExclusion(universeID, reason string) {
	if r == nil {
		return
	}
	r.exclusions.WithLabelValues(universeID, reason).Inc()
}

// RecordModifierFailure records a failed risk/opportunity provider call.
func (r *Recorder) RecordModifierFailure(provider string) {
	if r == nil {
		return
	}
	r.modifierFailures.WithLabelValues(provider).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRegime sets the confidence gauge for the region's current label.
func (r *Recorder) RecordRegime(region, label string, confidence float64) {
	if r == nil {
		return
	}
	r.regimeConfidence.DeletePartialMatch(prometheus.Labels{"region": region})
	r.regimeConfidence.WithLabelValues(region, label).Set(confidence)
}

// RecordPortfolio sets the portfolio gauges.
func (r *Recorder) RecordPortfolio(portfolioID string, expectedVol float64, numNames int) {
	if r == nil {
		return
	}
	r.portfolioVol.WithLabelValues(portfolioID).Set(expectedVol)
	r.portfolioNumNames.WithLabelValues(portfolioID).Set(float64(numNames))
}

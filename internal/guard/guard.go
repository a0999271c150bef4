// Package guard protects calls to optional collaborators with a circuit
// breaker and a token-bucket limiter. An open breaker fails fast with
// ErrUnavailable so callers can skip the collaborator for the run.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrUnavailable wraps breaker rejections (open or half-open saturation)
var ErrUnavailable = errors.New("provider unavailable")

// Settings configure one guard
type Settings struct {
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" json:"consecutive_failures" default:"5" validate:"gt=0"`
	OpenTimeout         time.Duration `yaml:"open_timeout" json:"open_timeout" default:"30s"`
	// RatePerSecond <= 0 disables rate limiting
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" default:"200"`
	Burst         int     `yaml:"burst" json:"burst" default:"50" validate:"gte=0"`
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		RatePerSecond:       200,
		Burst:               50,
	}
}

// Guard wraps one collaborator
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a guard named after the collaborator it protects
func New(name string, s Settings, log zerolog.Logger) *Guard {
	logger := log.With().Str("component", "guard").Str("provider", name).Logger()

	trips := s.ConsecutiveFailures
	if trips == 0 {
		trips = 5
	}
	st := gobreaker.Settings{
		Name:    name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		},
	}

	g := &Guard{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     logger,
	}
	if s.RatePerSecond > 0 {
		burst := s.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(s.RatePerSecond), burst)
	}
	return g
}

// Name returns the protected collaborator's name
func (g *Guard) Name() string {
	return g.name
}

// State returns the breaker state as a string
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Do waits for a limiter token, then runs fn through the breaker
func (g *Guard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", g.name, err)
		}
	}

	out, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, g.name, err)
	}
	return out, err
}

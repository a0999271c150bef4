// Package markov builds row-stochastic transition matrices over a fixed
// ordered state set and projects multi-step distributions.
package markov

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidHorizon is returned for non-positive horizons
var ErrInvalidHorizon = errors.New("horizon_steps must be a positive integer")

// Matrix is a row-stochastic transition matrix indexed by state name
type Matrix struct {
	states []string
	index  map[string]int
	p      *mat.Dense
}

// Build converts nested from→to weights into a transition matrix over states.
// Weights may be counts or probabilities. Unknown states are logged and skipped.
// A row that is missing or sums to zero becomes an identity row; all rows are
// then normalized to sum to 1.
func Build(states []string, rows map[string]map[string]float64, log zerolog.Logger) *Matrix {
	n := len(states)
	index := make(map[string]int, n)
	for i, s := range states {
		index[s] = i
	}

	p := mat.NewDense(n, n, nil)
	for from, toMap := range rows {
		i, ok := index[from]
		if !ok {
			log.Warn().Str("state", from).Msg("unknown from-state in transition source")
			continue
		}
		for to, w := range toMap {
			j, ok := index[to]
			if !ok {
				log.Warn().Str("state", to).Msg("unknown to-state in transition source")
				continue
			}
			p.Set(i, j, w)
		}
	}

	for i := 0; i < n; i++ {
		sum := mat.Sum(p.RowView(i))
		if sum <= 0 {
			for j := 0; j < n; j++ {
				p.Set(i, j, 0)
			}
			p.Set(i, i, 1)
			continue
		}
		for j := 0; j < n; j++ {
			p.Set(i, j, p.At(i, j)/sum)
		}
	}

	return &Matrix{states: append([]string(nil), states...), index: index, p: p}
}

// States returns the state order
func (m *Matrix) States() []string {
	return append([]string(nil), m.states...)
}

// At returns P[from][to], 0 for unknown states
func (m *Matrix) At(from, to string) float64 {
	i, ok := m.index[from]
	if !ok {
		return 0
	}
	j, ok := m.index[to]
	if !ok {
		return 0
	}
	return m.p.At(i, j)
}

// Rows returns the matrix as nested maps
func (m *Matrix) Rows() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m.states))
	for i, from := range m.states {
		row := make(map[string]float64, len(m.states))
		for j, to := range m.states {
			row[to] = m.p.At(i, j)
		}
		out[from] = row
	}
	return out
}

// Power returns P^h
func (m *Matrix) Power(h int) (*Matrix, error) {
	if h <= 0 {
		return nil, ErrInvalidHorizon
	}

	var result mat.Dense
	result.Pow(m.p, h)
	return &Matrix{states: m.states, index: m.index, p: &result}, nil
}

// Distribution projects a one-hot start state h steps forward
func (m *Matrix) Distribution(from string, h int) (map[string]float64, error) {
	i, ok := m.index[from]
	if !ok {
		return nil, fmt.Errorf("unknown state %q", from)
	}

	ph, err := m.Power(h)
	if err != nil {
		return nil, err
	}

	dist := make(map[string]float64, len(m.states))
	for j, to := range m.states {
		dist[to] = ph.p.At(i, j)
	}
	return dist, nil
}

// Clamp01 bounds a probability to [0, 1]
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// NormalizeCounts turns from→to counts into per-row probabilities.
// Rows with a non-positive total are dropped.
func NormalizeCounts(counts map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(counts))
	for from, row := range counts {
		total := 0.0
		for _, c := range row {
			total += c
		}
		if total <= 0 {
			continue
		}
		norm := make(map[string]float64, len(row))
		for to, c := range row {
			norm[to] = c / total
		}
		out[from] = norm
	}
	return out
}

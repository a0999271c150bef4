package regime

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
)

type fakeEncoder struct {
	vec   []float64
	err   error
	calls []contracts.WindowSpec
}

func (f *fakeEncoder) EmbedAndStore(_ context.Context, spec contracts.WindowSpec, _ time.Time) ([]float64, error) {
	f.calls = append(f.calls, spec)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float64(nil), f.vec...), nil
}

// memStore is an in-memory Store
type memStore struct {
	states      map[string][]contracts.RegimeState
	matrix      map[string]map[string]map[string]float64
	transitions []contracts.RegimeTransition
}

func newMemStore() *memStore {
	return &memStore{
		states: make(map[string][]contracts.RegimeState),
		matrix: make(map[string]map[string]map[string]float64),
	}
}

func (m *memStore) SaveRegime(_ context.Context, s *contracts.RegimeState) error {
	list := m.states[s.Region]
	for i := range list {
		if list[i].AsOfDate.Equal(s.AsOfDate) {
			list[i] = *s
			return nil
		}
	}
	list = append(list, *s)
	sort.Slice(list, func(i, j int) bool { return list[i].AsOfDate.Before(list[j].AsOfDate) })
	m.states[s.Region] = list
	return nil
}

func (m *memStore) GetLatestRegime(_ context.Context, region string) (*contracts.RegimeState, error) {
	list := m.states[region]
	if len(list) == 0 {
		return nil, nil
	}
	s := list[len(list)-1]
	return &s, nil
}

func (m *memStore) GetLatestRegimeBefore(_ context.Context, region string, asOf time.Time) (*contracts.RegimeState, error) {
	list := m.states[region]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].AsOfDate.Before(asOf) {
			s := list[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetHistory(_ context.Context, region string, from, to time.Time) ([]contracts.RegimeState, error) {
	var out []contracts.RegimeState
	for _, s := range m.states[region] {
		if !s.AsOfDate.Before(from) && !s.AsOfDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) RecordTransition(_ context.Context, prev, cur *contracts.RegimeState) error {
	m.transitions = append(m.transitions, contracts.RegimeTransition{
		Region:    cur.Region,
		AsOfDate:  cur.AsOfDate,
		FromLabel: prev.RegimeLabel,
		ToLabel:   cur.RegimeLabel,
	})
	return nil
}

func (m *memStore) GetTransitionMatrix(_ context.Context, region string) (map[string]map[string]float64, error) {
	if rows, ok := m.matrix[region]; ok {
		return rows, nil
	}
	counts := make(map[string]map[string]float64)
	for _, t := range m.transitions {
		if t.Region != region {
			continue
		}
		if counts[string(t.FromLabel)] == nil {
			counts[string(t.FromLabel)] = make(map[string]float64)
		}
		counts[string(t.FromLabel)][string(t.ToLabel)]++
	}
	return markov.NormalizeCounts(counts), nil
}

// memCache is an in-memory Cache
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

package s0_data

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// DefaultPriceCacheEntries bounds a PriceCache between clears
const DefaultPriceCacheEntries = 20000

type priceWindowKey struct {
	instrumentID string
	from         time.Time
	to           time.Time
}

// PriceCache is a read-through in-memory cache of daily price windows.
// The regime encoder and the universe engine read the same windows within a run.
// Errors are never cached; the whole cache is cleared once maxEntries is reached.
type PriceCache struct {
	mu         sync.RWMutex
	inner      contracts.PriceReader
	windows    map[priceWindowKey][]contracts.PriceBar
	maxEntries int
	hits       int
	misses     int
	log        zerolog.Logger
}

// NewPriceCache wraps inner; maxEntries <= 0 uses DefaultPriceCacheEntries
func NewPriceCache(inner contracts.PriceReader, maxEntries int, log zerolog.Logger) *PriceCache {
	if maxEntries <= 0 {
		maxEntries = DefaultPriceCacheEntries
	}
	return &PriceCache{
		inner:      inner,
		windows:    make(map[priceWindowKey][]contracts.PriceBar),
		maxEntries: maxEntries,
		log:        log.With().Str("component", "s0_data.price_cache").Logger(),
	}
}

// ReadPrices serves [from, to] from memory, loading it from inner on a miss
func (c *PriceCache) ReadPrices(ctx context.Context, instrumentID string, from, to time.Time) ([]contracts.PriceBar, error) {
	key := priceWindowKey{instrumentID: instrumentID, from: contracts.DateOnly(from), to: contracts.DateOnly(to)}

	c.mu.RLock()
	bars, ok := c.windows[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return copyBars(bars), nil
	}

	bars, err := c.inner.ReadPrices(ctx, instrumentID, from, to)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	if len(c.windows) >= c.maxEntries {
		c.log.Debug().Int("entries", len(c.windows)).Msg("price cache full, clearing")
		c.windows = make(map[priceWindowKey][]contracts.PriceBar)
	}
	c.windows[key] = copyBars(bars)

	return bars, nil
}

// Stats returns hit and miss counts since creation
func (c *PriceCache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached windows
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.windows)
}

// Clear drops every cached window
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = make(map[priceWindowKey][]contracts.PriceBar)
}

func copyBars(bars []contracts.PriceBar) []contracts.PriceBar {
	if bars == nil {
		return nil
	}
	out := make([]contracts.PriceBar, len(bars))
	copy(out, bars)
	return out
}

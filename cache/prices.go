package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"swingdesk/watchlist"
)

// Cache key prefixes and TTLs. Live prices go stale within seconds; the
// watchlist document changes at most a few times a minute during market
// hours.
const (
	livePriceKeyPrefix = "price:live:"
	watchlistKey       = "watchlist:active"

	LivePriceTTL       = 30 * time.Second
	ActiveWatchlistTTL = 2 * time.Minute
)

// LivePrice is one cached tick.
type LivePrice struct {
	InstrumentKey string    `json:"instrument_key"`
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	At            time.Time `json:"at"`
}

// PriceCache caches live ticks and the active watchlist document.
type PriceCache struct {
	redis *RedisClient
}

// NewPriceCache creates a new price cache instance
func NewPriceCache(redis *RedisClient) *PriceCache {
	return &PriceCache{redis: redis}
}

// SetLivePrice caches a tick for the prices endpoint.
func (c *PriceCache) SetLivePrice(ctx context.Context, tick LivePrice) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, livePriceKeyPrefix+tick.InstrumentKey, tick, LivePriceTTL)
}

// GetLivePrice returns the cached tick, or found=false when absent or
// expired.
func (c *PriceCache) GetLivePrice(ctx context.Context, instrumentKey string) (LivePrice, bool) {
	var tick LivePrice
	if c.redis == nil {
		return tick, false
	}
	if err := c.redis.Get(ctx, livePriceKeyPrefix+instrumentKey, &tick); err != nil {
		return tick, false
	}
	return tick, true
}

// GetLivePrices fetches cached ticks for many instruments in one round trip.
// Missing instruments are absent from the result map.
func (c *PriceCache) GetLivePrices(ctx context.Context, instrumentKeys []string) (map[string]LivePrice, error) {
	if c.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}
	if len(instrumentKeys) == 0 {
		return map[string]LivePrice{}, nil
	}

	keys := make([]string, len(instrumentKeys))
	for i, k := range instrumentKeys {
		keys[i] = livePriceKeyPrefix + k
	}

	raw, err := c.redis.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]LivePrice, len(raw))
	for i, blob := range raw {
		if blob == "" {
			continue
		}
		var tick LivePrice
		if err := json.Unmarshal([]byte(blob), &tick); err != nil {
			continue
		}
		out[instrumentKeys[i]] = tick
	}
	return out, nil
}

// SetActiveWatchlist caches the active watchlist document.
func (c *PriceCache) SetActiveWatchlist(ctx context.Context, w *watchlist.Watchlist) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, watchlistKey, w, ActiveWatchlistTTL)
}

// GetActiveWatchlist returns the cached active watchlist, or found=false.
func (c *PriceCache) GetActiveWatchlist(ctx context.Context) (*watchlist.Watchlist, bool) {
	if c.redis == nil {
		return nil, false
	}
	var w watchlist.Watchlist
	if err := c.redis.Get(ctx, watchlistKey, &w); err != nil {
		return nil, false
	}
	return &w, true
}

// InvalidateActiveWatchlist drops the cached document after a write.
func (c *PriceCache) InvalidateActiveWatchlist(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Delete(ctx, watchlistKey)
}

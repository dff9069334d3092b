// Package marketcache implements the two-level market-data cache: live
// price per symbol (10s freshness) and OHLC per (symbol,timeframe,limit)
// (60s freshness), collapsing concurrent misses for the same key into a
// single upstream call via singleflight.
package marketcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"botfleet/pkg/broker"
	"botfleet/pkg/orcherr"
)

const (
	defaultPriceFreshness = 10 * time.Second
	defaultOHLCFreshness  = 60 * time.Second
)

type priceEntry struct {
	quote   broker.Quote
	storeAt time.Time
}

type ohlcEntry struct {
	candles []broker.Candle
	storeAt time.Time
}

// Cache is a concurrent-safe market-data cache scoped to one credential's
// Gateway. Degraded "no live price" mode is expressed by Price returning
// degraded=true when the upstream refresh fails: with the stale quote and a
// nil error when one is cached, otherwise with a zero Quote and an error
// wrapping ErrDataUnavailable.
type Cache struct {
	gw *broker.Gateway

	priceFreshness time.Duration
	ohlcFreshness  time.Duration

	mu    sync.RWMutex
	price map[string]priceEntry
	ohlc  map[string]ohlcEntry

	group singleflight.Group
}

// New constructs a Cache backed by gw, using the default freshness windows
// unless overridden.
func New(gw *broker.Gateway) *Cache {
	return &Cache{
		gw:             gw,
		priceFreshness: defaultPriceFreshness,
		ohlcFreshness:  defaultOHLCFreshness,
		price:          make(map[string]priceEntry),
		ohlc:           make(map[string]ohlcEntry),
	}
}

// WithFreshness overrides the default freshness windows (used by tests).
func (c *Cache) WithFreshness(price, ohlc time.Duration) *Cache {
	if price > 0 {
		c.priceFreshness = price
	}
	if ohlc > 0 {
		c.ohlcFreshness = ohlc
	}
	return c
}

// Price returns the cached live price for epic, refreshing it through the
// gateway on a stale/missing entry. degraded=true means the caller should
// proceed with reduced confidence rather than fail the evaluation.
func (c *Cache) Price(ctx context.Context, epic string) (quote broker.Quote, degraded bool, err error) {
	c.mu.RLock()
	entry, ok := c.price[epic]
	c.mu.RUnlock()
	if ok && time.Since(entry.storeAt) <= c.priceFreshness {
		return entry.quote, false, nil
	}

	v, err, _ := c.group.Do("price:"+epic, func() (any, error) {
		q, err := c.gw.GetLatestPrice(ctx, epic)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.price[epic] = priceEntry{quote: q, storeAt: time.Now()}
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		if ok {
			// We have a stale-but-present entry: degrade rather than fail.
			return entry.quote, true, nil
		}
		return broker.Quote{}, true, fmt.Errorf("marketcache: price %s: %w", epic, orcherr.ErrDataUnavailable)
	}
	return v.(broker.Quote), false, nil
}

// OHLC returns cached candles for (epic,resolution,count), refreshing on
// miss. Unlike Price, a miss here is not degradable: callers needing
// candles for chart rendering or HTF analysis treat a failure as
// DataUnavailable.
func (c *Cache) OHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	key := fmt.Sprintf("%s:%s:%d", epic, resolution, count)
	c.mu.RLock()
	entry, ok := c.ohlc[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.storeAt) <= c.ohlcFreshness {
		return entry.candles, nil
	}

	v, err, _ := c.group.Do("ohlc:"+key, func() (any, error) {
		candles, err := c.gw.GetOHLC(ctx, epic, resolution, from, to, count)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.ohlc[key] = ohlcEntry{candles: candles, storeAt: time.Now()}
		c.mu.Unlock()
		return candles, nil
	})
	if err != nil {
		if ok {
			return entry.candles, nil
		}
		return nil, fmt.Errorf("marketcache: ohlc %s: %w", key, orcherr.ErrDataUnavailable)
	}
	return v.([]broker.Candle), nil
}

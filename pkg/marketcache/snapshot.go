package marketcache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"botfleet/pkg/broker"
)

// snapshotEntry is the wire shape persisted across process restarts so a
// freshly started Position Monitor does not have to treat every symbol as
// cold on startup.
type snapshotEntry struct {
	Epic    string    `msgpack:"epic"`
	Bid     float64   `msgpack:"bid"`
	Ask     float64   `msgpack:"ask"`
	StoreAt time.Time `msgpack:"store_at"`
}

// ExportPriceSnapshot msgpack-encodes the current price cache for
// persistence (e.g. into Redis via internal/cache, or to disk alongside the
// journal). Encoding is binary-compact compared to JSON, which matters
// since this can run once per credential per tick.
func (c *Cache) ExportPriceSnapshot() ([]byte, error) {
	c.mu.RLock()
	entries := make([]snapshotEntry, 0, len(c.price))
	for epic, e := range c.price {
		entries = append(entries, snapshotEntry{Epic: epic, Bid: e.quote.Bid, Ask: e.quote.Ask, StoreAt: e.storeAt})
	}
	c.mu.RUnlock()
	return msgpack.Marshal(entries)
}

// ImportPriceSnapshot seeds the price cache from a previously exported
// snapshot. Entries older than the freshness window are loaded but will be
// treated as stale on next read, same as any other cache miss.
func (c *Cache) ImportPriceSnapshot(data []byte) error {
	var entries []snapshotEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.price[e.Epic] = priceEntry{
			quote:   broker.Quote{Bid: e.Bid, Ask: e.Ask, TS: e.StoreAt},
			storeAt: e.StoreAt,
		}
	}
	return nil
}

package marketcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
)

type countingProvider struct {
	broker.Provider
	priceCalls int32
	shouldFail bool
}

func (p *countingProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return symbol, nil
}
func (p *countingProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	atomic.AddInt32(&p.priceCalls, 1)
	if p.shouldFail {
		return broker.Quote{}, errProviderDown
	}
	return broker.Quote{Bid: 1, Ask: 1.01, TS: time.Now()}, nil
}
func (p *countingProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	return nil, nil
}
func (p *countingProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	return broker.OpenResult{}, nil
}
func (p *countingProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	return broker.StatusFilled, nil
}
func (p *countingProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	return nil, nil
}
func (p *countingProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	return broker.MarketDetail{Tradeable: true}, nil
}

var errProviderDown = requireNewError("provider down")

func requireNewError(msg string) error {
	return &simpleError{msg}
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }

func TestPriceCacheCollapsesConcurrentMisses(t *testing.T) {
	p := &countingProvider{}
	gw := broker.NewGateway(p)
	cache := New(gw)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, degraded, err := cache.Price(context.Background(), "BTCUSD")
			require.NoError(t, err)
			require.False(t, degraded)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt32(&p.priceCalls), int32(2), "single-flight should collapse near-simultaneous misses into ~1 upstream call")
}

func TestPriceCacheHonoursFreshnessWindow(t *testing.T) {
	p := &countingProvider{}
	gw := broker.NewGateway(p)
	cache := New(gw).WithFreshness(20*time.Millisecond, time.Minute)

	_, _, err := cache.Price(context.Background(), "ETHUSD")
	require.NoError(t, err)
	callsAfterFirst := atomic.LoadInt32(&p.priceCalls)

	_, _, err = cache.Price(context.Background(), "ETHUSD")
	require.NoError(t, err)
	require.Equal(t, callsAfterFirst, atomic.LoadInt32(&p.priceCalls), "within freshness window must not call upstream again")

	time.Sleep(30 * time.Millisecond)
	_, _, err = cache.Price(context.Background(), "ETHUSD")
	require.NoError(t, err)
	require.Greater(t, atomic.LoadInt32(&p.priceCalls), callsAfterFirst, "after freshness window expires must refresh")
}

func TestPriceCacheDegradesOnUpstreamFailureWithStaleEntry(t *testing.T) {
	p := &countingProvider{}
	gw := broker.NewGateway(p)
	cache := New(gw).WithFreshness(5*time.Millisecond, time.Minute)

	_, degraded, err := cache.Price(context.Background(), "SOLUSD")
	require.NoError(t, err)
	require.False(t, degraded)

	time.Sleep(10 * time.Millisecond)
	p.shouldFail = true

	quote, degraded, err := cache.Price(context.Background(), "SOLUSD")
	require.NoError(t, err)
	require.True(t, degraded)
	require.Equal(t, 1.0, quote.Bid)
}

func TestExportImportPriceSnapshotRoundTrips(t *testing.T) {
	p := &countingProvider{}
	gw := broker.NewGateway(p)
	cache := New(gw)
	_, _, err := cache.Price(context.Background(), "BTCUSD")
	require.NoError(t, err)

	data, err := cache.ExportPriceSnapshot()
	require.NoError(t, err)

	fresh := New(broker.NewGateway(&countingProvider{}))
	require.NoError(t, fresh.ImportPriceSnapshot(data))

	quote, degraded, err := fresh.Price(context.Background(), "BTCUSD")
	require.NoError(t, err)
	require.False(t, degraded)
	require.Equal(t, 1.0, quote.Bid)
}

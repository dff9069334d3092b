package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	tradeable map[string]bool
	calls     int
}

func (f *fakeProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return "", nil
}
func (f *fakeProvider) GetLatestPrice(ctx context.Context, epic string) (Quote, error) {
	return Quote{}, nil
}
func (f *fakeProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]Candle, error) {
	return nil, nil
}
func (f *fakeProvider) OpenPosition(ctx context.Context, epic string, dir Direction, size float64, sl, tp *float64) (OpenResult, error) {
	return OpenResult{}, nil
}
func (f *fakeProvider) ClosePosition(ctx context.Context, dealID string, dir Direction, size float64) (Status, error) {
	return StatusAccepted, nil
}
func (f *fakeProvider) ListPositions(ctx context.Context) ([]BrokerPosition, error) { return nil, nil }
func (f *fakeProvider) MarketDetails(ctx context.Context, epic string) (MarketDetail, error) {
	f.calls++
	if f.tradeable[epic] {
		return MarketDetail{Tradeable: true, MinDealSize: 1}, nil
	}
	return MarketDetail{Tradeable: false}, nil
}

func TestResolveEpicCachesWithin24h(t *testing.T) {
	fp := &fakeProvider{tradeable: map[string]bool{"BTCUSD": true}}
	gw := NewGateway(fp)

	epic, err := gw.ResolveEpic(context.Background(), "btcusd")
	require.NoError(t, err)
	require.Equal(t, "BTCUSD", epic)
	callsAfterFirst := fp.calls
	require.Greater(t, callsAfterFirst, 0)

	epic2, err := gw.ResolveEpic(context.Background(), "BTCUSD")
	require.NoError(t, err)
	require.Equal(t, epic, epic2)
	require.Equal(t, callsAfterFirst, fp.calls, "second resolution must hit the cache, not the broker")
}

func TestResolveEpicExhaustedReturnsBestGuess(t *testing.T) {
	fp := &fakeProvider{tradeable: map[string]bool{}}
	gw := NewGateway(fp)

	epic, err := gw.ResolveEpic(context.Background(), "ZZZCOIN")
	require.Error(t, err)
	require.NotEmpty(t, epic)
}

func TestEpicCacheExpiry(t *testing.T) {
	c := newEpicCache(10 * time.Millisecond)
	c.store("ETHUSD", "CS.D.ETHEREUM.CFD.IP")
	_, ok := c.lookup("ETHUSD")
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	_, ok = c.lookup("ETHUSD")
	require.False(t, ok)
}

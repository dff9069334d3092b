package htf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"botfleet/pkg/broker"
)

func candle(ts time.Time, close float64) broker.Candle {
	return broker.Candle{TS: ts, Open: close, High: close + 1, Low: close - 1, Close: close}
}

func TestAnalyse_NeutralOnFetchError(t *testing.T) {
	fetch := func(ctx context.Context, epic, resolution string, count int) ([]broker.Candle, error) {
		return nil, errors.New("boom")
	}
	c := Analyse(context.Background(), fetch, "CS.D.EURUSD.CFD.IP", "M15")
	assert.Equal(t, TrendNeutral, c.Trend)
	assert.Equal(t, MomentumNeutral, c.Momentum)
	assert.Equal(t, 50, c.Confidence)
}

func TestAnalyse_NeutralOnEmpty(t *testing.T) {
	fetch := func(ctx context.Context, epic, resolution string, count int) ([]broker.Candle, error) {
		return nil, nil
	}
	c := Analyse(context.Background(), fetch, "EPIC", "H1")
	assert.Equal(t, TrendNeutral, c.Trend)
}

func TestAnalyse_BullishTrend(t *testing.T) {
	now := time.Now()
	var candles []broker.Candle
	for i := 0; i < 6; i++ {
		candles = append(candles, candle(now.Add(time.Duration(i)*time.Hour), 100+float64(i)*2))
	}
	fetch := func(ctx context.Context, epic, resolution string, count int) ([]broker.Candle, error) {
		return candles, nil
	}
	c := Analyse(context.Background(), fetch, "EPIC", "M15")
	assert.Equal(t, TrendBullish, c.Trend)
	assert.GreaterOrEqual(t, c.Confidence, 30)
	assert.LessOrEqual(t, c.Confidence, 70)
}

func TestAnalyse_SingleCandleDoesNotPanic(t *testing.T) {
	fetch := func(ctx context.Context, epic, resolution string, count int) ([]broker.Candle, error) {
		return []broker.Candle{candle(time.Now(), 100)}, nil
	}
	c := Analyse(context.Background(), fetch, "EPIC", "H4")
	assert.Equal(t, "D1", c.HigherTimeframe)
}

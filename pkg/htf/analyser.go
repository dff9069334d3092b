// Package htf implements the higher-timeframe analyser: a best-effort,
// never-blocking trend/momentum summary that biases the primary-timeframe
// decision.
package htf

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/broker"
)

// Trend classifies the higher-timeframe direction.
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// Momentum classifies the strength of the move.
type Momentum string

const (
	MomentumStrong  Momentum = "STRONG"
	MomentumWeak    Momentum = "WEAK"
	MomentumNeutral Momentum = "NEUTRAL"
)

// Context is the higher-timeframe summary handed to pkg/decision.
type Context struct {
	HigherTimeframe string
	Trend           Trend
	Momentum        Momentum
	Support         float64
	Resistance      float64
	Confidence      int // 30..70
}

// higherTimeframeOf maps a bot's primary timeframe to the higher timeframe
// used for context, biased to very short lookbacks to fit the broker's
// narrow history window.
var higherTimeframeOf = map[string]string{
	"M1":  "M15",
	"M5":  "H1",
	"M15": "H1",
	"M30": "H4",
	"H1":  "H4",
	"H4":  "D1",
	"D1":  "D1",
}

// candleCountOf picks how many higher-timeframe candles to request, aiming
// for at most ~30 minutes of additional data.
var candleCountOf = map[string]int{
	"M1":  15,
	"M5":  2,
	"M15": 2,
	"M30": 1,
	"H1":  1,
	"H4":  1,
	"D1":  1,
}

// Fetcher retrieves higher-timeframe OHLC. Callers typically bind this to
// pkg/marketcache.Cache.OHLC for the resolved higher timeframe/epic.
type Fetcher func(ctx context.Context, epic, resolution string, count int) ([]broker.Candle, error)

// neutral is returned on any error: the analyser never blocks an evaluation.
func neutral(higherTimeframe string) Context {
	return Context{
		HigherTimeframe: higherTimeframe,
		Trend:           TrendNeutral,
		Momentum:        MomentumNeutral,
		Confidence:      50,
	}
}

// Analyse computes the higher-timeframe summary for epic given the bot's
// primaryTimeframe. It never returns an error to the caller's pipeline:
// any failure degrades to a neutral Context, so the analysis can never
// block an evaluation.
func Analyse(ctx context.Context, fetch Fetcher, epic, primaryTimeframe string) Context {
	higher, ok := higherTimeframeOf[primaryTimeframe]
	if !ok {
		higher = "H1"
	}
	count := candleCountOf[primaryTimeframe]
	if count <= 0 {
		count = 2
	}

	candles, err := fetch(ctx, epic, higher, count)
	if err != nil {
		logx.Slowf("htf: fetch failed epic=%s timeframe=%s err=%v", epic, higher, err)
		return neutral(higher)
	}
	if len(candles) < 1 {
		return neutral(higher)
	}

	return summarise(candles, higher)
}

// summarise computes adaptive-period SMAs, trend/momentum tags, and a
// support/resistance band from the most recent candles.
func summarise(candles []broker.Candle, higher string) Context {
	closes := make([]float64, len(candles))
	low, high := candles[0].Low, candles[0].High
	for i, c := range candles {
		closes[i] = c.Close
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}

	shortPeriod, longPeriod := adaptivePeriods(len(closes))
	shortSMA := sma(closes, shortPeriod)
	longSMA := sma(closes, longPeriod)

	trend := TrendNeutral
	momentum := MomentumNeutral
	confidence := 50

	if shortSMA > 0 && longSMA > 0 {
		delta := (shortSMA - longSMA) / longSMA
		switch {
		case delta > 0.002:
			trend = TrendBullish
		case delta < -0.002:
			trend = TrendBearish
		default:
			trend = TrendNeutral
		}

		absDelta := delta
		if absDelta < 0 {
			absDelta = -absDelta
		}
		switch {
		case absDelta > 0.01:
			momentum = MomentumStrong
		case absDelta > 0.003:
			momentum = MomentumWeak
		default:
			momentum = MomentumNeutral
		}

		// Map |delta| onto the 30..70 confidence band: larger moves are more
		// confidently directional, smaller ones sit near the neutral middle.
		confidence = clampConfidence(50 + int(absDelta*2000))
	}

	return Context{
		HigherTimeframe: higher,
		Trend:           trend,
		Momentum:        momentum,
		Support:         low,
		Resistance:      high,
		Confidence:      confidence,
	}
}

// adaptivePeriods picks short/long SMA windows that fit within the sample
// size, since the broker's narrow history window may return as few as one
// candle.
func adaptivePeriods(n int) (short, long int) {
	if n <= 1 {
		return 1, 1
	}
	short = n / 3
	if short < 1 {
		short = 1
	}
	long = n
	return short, long
}

func sma(values []float64, period int) float64 {
	if period <= 0 || period > len(values) {
		period = len(values)
	}
	if period == 0 {
		return 0
	}
	start := len(values) - period
	sum := 0.0
	for _, v := range values[start:] {
		sum += v
	}
	return sum / float64(period)
}

func clampConfidence(v int) int {
	if v < 30 {
		return 30
	}
	if v > 70 {
		return 70
	}
	return v
}

// Summary renders a short natural-language description suitable for
// embedding into the pkg/decision market-conditions prompt text.
func (c Context) Summary() string {
	return fmt.Sprintf("higher-timeframe(%s): trend=%s momentum=%s support=%.5f resistance=%.5f confidence=%d",
		c.HigherTimeframe, c.Trend, c.Momentum, c.Support, c.Resistance, c.Confidence)
}

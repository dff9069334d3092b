package riskgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/domain"
)

func baseBot() domain.Bot {
	return domain.Bot{
		ID: "bot-1", CredentialID: "cred-1", Symbol: "EURUSD", Timeframe: "M15",
		IsActive: true, AIEnabled: true, MaxOpenTrades: 2,
		MinIntervalBetweenTrades: 5 * time.Minute,
	}
}

// Friday 21:59 UTC is a deterministic fixed point — avoid relying on the
// ambient now() to keep this boundary test stable.
func fridayAt(hour, minute int) time.Time {
	return time.Date(2026, time.July, 31, hour, minute, 0, 0, time.UTC) // a Friday
}

func TestEvaluate_HappyPathApproves(t *testing.T) {
	req := Request{
		Bot:        baseBot(),
		AssetClass: AssetForex,
		Now:        fridayAt(10, 0),
		Limits:     Limits{},
		Portfolio:  Portfolio{},
	}
	res := Evaluate(req)
	assert.True(t, res.Approved)
	assert.Empty(t, res.Reasons)
}

func TestEvaluate_MinIntervalBoundary(t *testing.T) {
	bot := baseBot()
	now := fridayAt(10, 0)
	bot.LastTradeAt = now.Add(-5 * time.Minute) // exactly the interval: allowed
	res := Evaluate(Request{Bot: bot, AssetClass: AssetCrypto, Now: now})
	assert.True(t, res.Approved)

	bot.LastTradeAt = now.Add(-5*time.Minute + time.Second) // one second younger: rejected
	res = Evaluate(Request{Bot: bot, AssetClass: AssetCrypto, Now: now})
	assert.False(t, res.Approved)
}

func TestEvaluate_ForexFridayBoundary(t *testing.T) {
	res := Evaluate(Request{Bot: baseBot(), AssetClass: AssetForex, Now: fridayAt(21, 59)})
	assert.True(t, res.Approved)

	res = Evaluate(Request{Bot: baseBot(), AssetClass: AssetForex, Now: fridayAt(22, 0)})
	assert.False(t, res.Approved)
	require.NotEmpty(t, res.Reasons)
}

func TestEvaluate_RejectsInactiveBot(t *testing.T) {
	bot := baseBot()
	bot.IsActive = false
	res := Evaluate(Request{Bot: bot, AssetClass: AssetCrypto, Now: time.Now()})
	assert.False(t, res.Approved)
}

func TestEvaluate_RejectsWhenAtMaxOpenTrades(t *testing.T) {
	res := Evaluate(Request{Bot: baseBot(), AssetClass: AssetCrypto, Now: time.Now(), OpenTradesForBot: 2})
	assert.False(t, res.Approved)
}

func TestEvaluate_RejectsPortfolioDrawdown(t *testing.T) {
	res := Evaluate(Request{
		Bot: baseBot(), AssetClass: AssetCrypto, Now: time.Now(),
		Portfolio: Portfolio{CurrentDrawdownPct: 20},
	})
	assert.False(t, res.Approved)
}

func TestEvaluate_CollectsMultipleReasons(t *testing.T) {
	bot := baseBot()
	bot.IsActive = false
	bot.AIEnabled = false
	res := Evaluate(Request{
		Bot: bot, AssetClass: AssetForex, Now: fridayAt(22, 0),
		Portfolio: Portfolio{CurrentDrawdownPct: 99},
	})
	assert.False(t, res.Approved)
	assert.GreaterOrEqual(t, len(res.Reasons), 3)
	assert.Zero(t, res.AdjustedQuantity)
}

func TestMarketOpen_CryptoAlwaysOpen(t *testing.T) {
	assert.True(t, MarketOpen(AssetCrypto, fridayAt(23, 30)))
}

func TestMarketOpen_SundayBoundary(t *testing.T) {
	sunday2159 := time.Date(2026, time.August, 2, 21, 59, 0, 0, time.UTC)
	sunday2200 := time.Date(2026, time.August, 2, 22, 0, 0, 0, time.UTC)
	assert.False(t, MarketOpen(AssetForex, sunday2159))
	assert.True(t, MarketOpen(AssetForex, sunday2200))
}

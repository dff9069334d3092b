package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/domain"
)

func TestParse_CandleCloseRule(t *testing.T) {
	rules, _, err := Parse("Close the trade after 3 candles.", "M15")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.RuleExitAfterCandles, rules[0].Type)
	assert.Equal(t, float64(3), rules[0].Trigger.Value)
	assert.Equal(t, domain.UnitCandles, rules[0].Trigger.Unit)
	assert.Equal(t, 8, rules[0].Priority)
}

func TestParse_PriorityOrdering(t *testing.T) {
	desc := "Close after 3 candles.\nScale out at 2% profit.\nStop loss at 5% exceeds.\nTake profit at 10% reaches."
	rules, _, err := Parse(desc, "M15")
	require.NoError(t, err)
	require.Len(t, rules, 4)
	// descending priority: stop loss(10) > take profit(9) > candles(8) > scale out(5)
	assert.Equal(t, domain.RuleExitOnLoss, rules[0].Type)
	assert.Equal(t, domain.RuleExitOnProfit, rules[1].Type)
	assert.Equal(t, domain.RuleExitAfterCandles, rules[2].Type)
	assert.Equal(t, domain.RuleScaleOut, rules[3].Type)
}

func TestParse_TrailStopDefault(t *testing.T) {
	rules, _, err := Parse("Use a trailing stop.", "H1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.RuleTrailStop, rules[0].Type)
	assert.Equal(t, float64(defaultTrailPct), rules[0].Trigger.Value)
}

func TestParse_RejectsOversizedValues(t *testing.T) {
	_, _, err := Parse("Close the trade after 200 candles.", "M15")
	assert.Error(t, err)

	_, _, err = Parse("Take profit at 80% reaches.", "M15")
	assert.Error(t, err)

	_, _, err = Parse("Stop loss at 30% exceeds.", "M15")
	assert.Error(t, err)
}

func TestParse_RiskDefaults(t *testing.T) {
	_, risk, err := Parse("Risk 2% per trade. Stop loss 5%. Take profit 10%.", "M15")
	require.NoError(t, err)
	assert.Equal(t, 2.0, risk.RiskPerTradePct)
	assert.Equal(t, 5.0, risk.StopLossPct)
	assert.Equal(t, 10.0, risk.TakeProfitPct)
}

func TestParse_Idempotent(t *testing.T) {
	desc := "Close after 4 candles.\nTrailing stop of 3%.\nScale out at 2% when reached."
	rules1, risk1, err1 := Parse(desc, "M5")
	require.NoError(t, err1)
	rules2, risk2, err2 := Parse(desc, "M5")
	require.NoError(t, err2)
	assert.Equal(t, rules1, rules2)
	assert.Equal(t, risk1, risk2)
}

func TestParse_UnknownTimeframeRejectsCandleRule(t *testing.T) {
	_, _, err := Parse("Close after 2 candles.", "M3")
	assert.Error(t, err)
}

func TestCandleMinutes(t *testing.T) {
	m, ok := CandleMinutes("m15")
	require.True(t, ok)
	assert.Equal(t, 15, m)

	_, ok = CandleMinutes("M3")
	assert.False(t, ok)
}

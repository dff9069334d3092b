package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
)

func TestRecord_DirectMatchThenOwnerLookup(t *testing.T) {
	l := New()
	l.Record("deal-1", "bot-a", domain.ProvenanceDealIDMatch)
	owner, ok := l.Owner("deal-1")
	require.True(t, ok)
	assert.Equal(t, "bot-a", owner)
}

func TestRecord_NeverOverwritesOwner(t *testing.T) {
	l := New()
	l.Record("deal-1", "bot-a", domain.ProvenanceDealIDMatch)
	l.Record("deal-1", "bot-b", domain.ProvenanceDealIDMatch)
	owner, _ := l.Owner("deal-1")
	assert.Equal(t, "bot-a", owner)
}

func TestAttribute_TimeSymbolSizeMatch(t *testing.T) {
	l := New()
	now := time.Now()
	pos := broker.BrokerPosition{
		DealID:      "deal-2",
		Symbol:      "GBPUSD",
		Direction:   broker.DirectionBuy,
		Quantity:    1000,
		CreatedDate: now.Add(-2 * time.Minute),
	}
	candidates := []TradeCandidate{
		{BotID: "bot-b", Symbol: "GBPUSD", Direction: domain.DirectionBuy, Quantity: 1000, Status: domain.TradeStatusPending, CreatedAt: now.Add(-3 * time.Minute)},
	}
	owner, ok := l.Attribute(pos, candidates, func(string) bool { return true })
	require.True(t, ok)
	assert.Equal(t, "bot-b", owner)
}

func TestAttribute_OrphanWhenOutsideWindow(t *testing.T) {
	l := New()
	now := time.Now()
	pos := broker.BrokerPosition{
		DealID:      "deal-3",
		Symbol:      "GBPUSD",
		Direction:   broker.DirectionBuy,
		Quantity:    1000,
		CreatedDate: now.Add(-12 * time.Minute),
	}
	candidates := []TradeCandidate{
		{BotID: "bot-b", Symbol: "GBPUSD", Direction: domain.DirectionBuy, Quantity: 1000, Status: domain.TradeStatusPending, CreatedAt: now.Add(-12 * time.Minute)},
	}
	_, ok := l.Attribute(pos, candidates, func(string) bool { return true })
	assert.False(t, ok)
	assert.Equal(t, 1, l.OrphanCount())
}

// TestAttribute_SharedCredentialOrphan: the broker reports an unfamiliar
// position created 12 minutes ago, outside the 5 minute match window. No
// attribution is made and the candidate bot is not debited a slot.
func TestAttribute_SharedCredentialOrphan(t *testing.T) {
	l := New()
	now := time.Now()
	pos := broker.BrokerPosition{
		DealID:      "deal-4",
		Symbol:      "GBPUSD",
		Direction:   broker.DirectionBuy,
		Quantity:    500,
		CreatedDate: now.Add(-12 * time.Minute),
	}
	candidates := []TradeCandidate{
		{BotID: "bot-b", Symbol: "GBPUSD", Direction: domain.DirectionBuy, Quantity: 500, Status: domain.TradeStatusPending, CreatedAt: now},
	}
	capacityCalled := false
	_, ok := l.Attribute(pos, candidates, func(string) bool { capacityCalled = true; return true })
	assert.False(t, ok)
	assert.False(t, capacityCalled, "recovery must not even consult capacity outside the recovery window")
}

func TestAttribute_RefusesWhenBotAtCapacity(t *testing.T) {
	l := New()
	now := time.Now()
	pos := broker.BrokerPosition{
		DealID:      "deal-5",
		Symbol:      "EURUSD",
		Direction:   broker.DirectionSell,
		Quantity:    2000,
		CreatedDate: now.Add(-1 * time.Minute),
	}
	candidates := []TradeCandidate{
		{BotID: "bot-c", Symbol: "EURUSD", Direction: domain.DirectionSell, Quantity: 2000, Status: domain.TradeStatusOpen, CreatedAt: now},
	}
	_, ok := l.Attribute(pos, candidates, func(string) bool { return false })
	assert.False(t, ok)
}

func TestAttribute_AlreadyOwnedReturnsExisting(t *testing.T) {
	l := New()
	l.Record("deal-6", "bot-z", domain.ProvenanceDealIDMatch)
	owner, ok := l.Attribute(broker.BrokerPosition{DealID: "deal-6", CreatedDate: time.Now()}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "bot-z", owner)
}

package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
	"botfleet/pkg/ledger"
	"botfleet/pkg/marketcache"
	"botfleet/pkg/ratecoord"
)

// quoteProvider is a deterministic broker.Provider for monitor tests: fixed
// mid price, recorded close calls.
type quoteProvider struct {
	mu     sync.Mutex
	price  float64
	closes []struct {
		dealID string
		size   float64
	}
	positions []broker.BrokerPosition
}

func (p *quoteProvider) setPrice(px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = px
}

func (p *quoteProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return symbol, nil
}

func (p *quoteProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return broker.Quote{Bid: p.price, Ask: p.price, TS: time.Now()}, nil
}

func (p *quoteProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	return nil, nil
}

func (p *quoteProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	return broker.OpenResult{DealID: "deal-open", Status: broker.StatusAccepted}, nil
}

func (p *quoteProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes = append(p.closes, struct {
		dealID string
		size   float64
	}{dealID, size})
	return broker.StatusAccepted, nil
}

func (p *quoteProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions, nil
}

func (p *quoteProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	return broker.MarketDetail{Tradeable: true, MinDealSize: 1}, nil
}

// memTrades is an in-memory TradeRepo.
type memTrades struct {
	mu     sync.Mutex
	trades map[string]domain.Trade
}

func newMemTrades(seed ...domain.Trade) *memTrades {
	m := &memTrades{trades: make(map[string]domain.Trade)}
	for _, t := range seed {
		m.trades[t.ID] = t
	}
	return m
}

func (m *memTrades) get(id string) domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades[id]
}

func (m *memTrades) HasOpenOnSymbol(ctx context.Context, botID, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.BotID == botID && t.Symbol == symbol && t.Status == domain.TradeStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTrades) HasPendingOnSymbol(ctx context.Context, botID, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.BotID == botID && t.Symbol == symbol && t.Status == domain.TradeStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTrades) CreateTrade(ctx context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[t.ID] = t
	return nil
}

func (m *memTrades) UpdateTrade(ctx context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[t.ID] = t
	return nil
}

func (m *memTrades) OpenTradesForCredential(ctx context.Context, credentialID string) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if t.CredentialID == credentialID && t.Status == domain.TradeStatusOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTrades) PendingAndRecentOpen(ctx context.Context, credentialID string) ([]ledger.TradeCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.TradeCandidate
	for _, t := range m.trades {
		if t.CredentialID != credentialID {
			continue
		}
		if t.Status == domain.TradeStatusPending || t.Status == domain.TradeStatusOpen {
			out = append(out, ledger.TradeCandidate{
				BotID:        t.BotID,
				Symbol:       t.Symbol,
				Direction:    t.Direction,
				Quantity:     t.Quantity,
				Status:       t.Status,
				CreatedAt:    t.OpenedAt,
				BrokerDealID: t.BrokerDealID,
			})
		}
	}
	return out, nil
}

func (m *memTrades) HasPartialFor(ctx context.Context, brokerDealID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if strings.HasPrefix(t.BrokerDealID, brokerDealID+"-part-") {
			return true, nil
		}
	}
	return false, nil
}

// memBots is an in-memory BotRepo.
type memBots struct {
	bots       map[string]domain.Bot
	strategies map[string]domain.Strategy
	creds      map[string]broker.CredentialConfig
	openCount  map[string]int
}

func (m *memBots) LoadBot(ctx context.Context, botID string) (domain.Bot, error) {
	return m.bots[botID], nil
}

func (m *memBots) LoadStrategy(ctx context.Context, strategyID string) (domain.Strategy, error) {
	return m.strategies[strategyID], nil
}

func (m *memBots) LoadCredential(ctx context.Context, credentialID string) (broker.CredentialConfig, error) {
	return m.creds[credentialID], nil
}

func (m *memBots) MarkEvaluated(ctx context.Context, botID string, at time.Time) error { return nil }
func (m *memBots) MarkTraded(ctx context.Context, botID string, at time.Time) error    { return nil }

func (m *memBots) ActiveBotsForCredential(ctx context.Context, credentialID string) ([]domain.Bot, error) {
	var out []domain.Bot
	for _, b := range m.bots {
		if b.CredentialID == credentialID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBots) OpenTradeCountForBot(ctx context.Context, botID string) (int, error) {
	return m.openCount[botID], nil
}

// staticRules serves a fixed rule list.
type staticRules []domain.ParsedRule

func (r staticRules) RulesFor(ctx context.Context, s domain.Strategy) ([]domain.ParsedRule, error) {
	return r, nil
}

func newMonitorHarness(t *testing.T, provider broker.Provider, trades *memTrades, bots *memBots, rules StrategyRules) (*Monitor, *Runtimes) {
	t.Helper()
	rc := ratecoord.New()
	rc.Configure("cred-1", ratecoord.Config{MaxConcurrent: 4, MinGap: time.Microsecond})

	gw := broker.NewGateway(provider)
	runtimes := NewRuntimes(bots)
	runtimes.live["cred-1"] = &credentialRuntime{
		gateway: gw,
		cache:   marketcache.New(gw).WithFreshness(time.Nanosecond, time.Nanosecond),
		ledger:  ledger.New(),
	}
	return &Monitor{
		Bots:     bots,
		Trades:   trades,
		Rules:    rules,
		Runtimes: runtimes,
		Rate:     rc,
	}, runtimes
}

func openTrade(id string, dir domain.Direction, entry float64, sl *float64, openedAgo time.Duration) domain.Trade {
	return domain.Trade{
		ID:           id,
		BotID:        "bot-1",
		CredentialID: "cred-1",
		Symbol:       "EURUSD",
		Direction:    dir,
		Quantity:     1000,
		EntryPrice:   entry,
		StopLoss:     sl,
		Status:       domain.TradeStatusOpen,
		OpenedAt:     time.Now().Add(-openedAgo),
		BrokerDealID: "deal-" + id,
	}
}

func floatPtr(v float64) *float64 { return &v }

func defaultBots() *memBots {
	return &memBots{
		bots: map[string]domain.Bot{
			"bot-1": {ID: "bot-1", CredentialID: "cred-1", StrategyID: "strat-1", Symbol: "EURUSD", Timeframe: "M15", IsActive: true, MaxOpenTrades: 2},
		},
		strategies: map[string]domain.Strategy{
			"strat-1": {ID: "strat-1"},
		},
		creds:     map[string]broker.CredentialConfig{"cred-1": {Kind: "sim"}},
		openCount: map[string]int{},
	}
}

// TestMonitor_TrailingStop: BUY at 1.1000 with SL
// 1.0950, minProfit 20 pts, trailDistance 10 pts. At 1.1025 the stop moves
// to 1.1015; at 1.1015 the trade closes with PnL (1.1015-1.1000)×qty.
func TestMonitor_TrailingStop(t *testing.T) {
	provider := &quoteProvider{price: 1.1025}
	trades := newMemTrades(openTrade("t1", domain.DirectionBuy, 1.1000, floatPtr(1.0950), time.Minute))
	m, _ := newMonitorHarness(t, provider, trades, defaultBots(), staticRules(nil))
	m.Trailing = TrailingConfig{MinProfit: 0.0020, TrailDistance: 0.0010}

	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	got := trades.get("t1")
	require.NotNil(t, got.StopLoss)
	assert.InDelta(t, 1.1015, *got.StopLoss, 1e-9)
	assert.Equal(t, domain.TradeStatusOpen, got.Status)

	provider.setPrice(1.1015)
	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	got = trades.get("t1")
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	require.NotNil(t, got.ProfitLoss)
	assert.InDelta(t, (1.1015-1.1000)*1000, *got.ProfitLoss, 1e-6)
}

// TestMonitor_CandleRuleBeatsScaleOut: "close after
// 3 candles" on M15 does not fire at T+44min, fires at T+45min, and wins
// over the lower-priority SCALE_OUT even though the 2% target is also met.
func TestMonitor_CandleRuleBeatsScaleOut(t *testing.T) {
	rules := staticRules{
		{Type: domain.RuleExitAfterCandles, Trigger: domain.Trigger{Value: 3, Unit: domain.UnitCandles}, Action: domain.ActionCloseFull, Priority: 8, Enabled: true},
		{Type: domain.RuleScaleOut, Trigger: domain.Trigger{Value: 2, Unit: domain.UnitPercent}, Action: domain.ActionClosePartial, Parameters: map[string]float64{"fraction": 0.5}, Priority: 5, Enabled: true},
	}

	// T+44min, price below the 2% scale-out target: nothing fires.
	provider := &quoteProvider{price: 1.0}
	trades := newMemTrades(openTrade("t1", domain.DirectionBuy, 1.0, nil, 44*time.Minute))
	m, _ := newMonitorHarness(t, provider, trades, defaultBots(), rules)
	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	assert.Equal(t, domain.TradeStatusOpen, trades.get("t1").Status)

	// T+45min with the 2% target also met: the candle rule closes the full
	// position first; no partial-close row exists.
	provider.setPrice(1.03)
	trades2 := newMemTrades(openTrade("t2", domain.DirectionBuy, 1.0, nil, 45*time.Minute))
	m2, _ := newMonitorHarness(t, provider, trades2, defaultBots(), rules)
	require.NoError(t, m2.Sweep(context.Background(), "cred-1"))

	got := trades2.get("t2")
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	assert.InDelta(t, 1000.0, got.Quantity, 1e-9, "full close, not a scale out")
	partial, err := trades2.HasPartialFor(context.Background(), "deal-t2")
	require.NoError(t, err)
	assert.False(t, partial)
}

func TestMonitor_ScaleOutSplitsTrade(t *testing.T) {
	rules := staticRules{
		{Type: domain.RuleScaleOut, Trigger: domain.Trigger{Value: 2, Unit: domain.UnitPercent}, Action: domain.ActionClosePartial, Parameters: map[string]float64{"fraction": 0.5}, Priority: 5, Enabled: true},
	}
	provider := &quoteProvider{price: 1.03}
	trades := newMemTrades(openTrade("t1", domain.DirectionBuy, 1.0, nil, time.Minute))
	m, _ := newMonitorHarness(t, provider, trades, defaultBots(), rules)

	require.NoError(t, m.Sweep(context.Background(), "cred-1"))

	original := trades.get("t1")
	assert.Equal(t, domain.TradeStatusOpen, original.Status)
	assert.InDelta(t, 500.0, original.Quantity, 1e-9)

	partial, err := trades.HasPartialFor(context.Background(), "deal-t1")
	require.NoError(t, err)
	assert.True(t, partial)

	// A second tick at the same price must not scale out again.
	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	assert.InDelta(t, 500.0, trades.get("t1").Quantity, 1e-9)
}

func TestMonitor_EmergencyStop(t *testing.T) {
	provider := &quoteProvider{price: 0.88}
	trades := newMemTrades(openTrade("t1", domain.DirectionBuy, 1.0, nil, time.Minute))
	m, _ := newMonitorHarness(t, provider, trades, defaultBots(), staticRules(nil))

	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	got := trades.get("t1")
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	assert.Equal(t, emergencyStopReason, got.Rationale)
}

func TestMonitor_SellStopLossMirrored(t *testing.T) {
	provider := &quoteProvider{price: 1.0110}
	trades := newMemTrades(openTrade("t1", domain.DirectionSell, 1.0, floatPtr(1.0100), time.Minute))
	m, _ := newMonitorHarness(t, provider, trades, defaultBots(), staticRules(nil))

	require.NoError(t, m.Sweep(context.Background(), "cred-1"))
	got := trades.get("t1")
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	assert.Equal(t, "stop_loss", got.Rationale)
}

// TestMonitor_OrphanSyncDoesNotAttribute: a broker-side position 12
// minutes old with no matching candidate stays an orphan and creates no
// Trade row.
func TestMonitor_OrphanSyncDoesNotAttribute(t *testing.T) {
	provider := &quoteProvider{price: 1.0}
	provider.positions = []broker.BrokerPosition{{
		DealID:      "deal-foreign",
		Symbol:      "GBPUSD",
		Direction:   broker.DirectionBuy,
		Quantity:    500,
		CreatedDate: time.Now().Add(-12 * time.Minute),
	}}
	trades := newMemTrades()
	m, runtimes := newMonitorHarness(t, provider, trades, defaultBots(), staticRules(nil))

	require.NoError(t, m.Sweep(context.Background(), "cred-1"))

	rt := runtimes.live["cred-1"]
	_, owned := rt.ledger.Owner("deal-foreign")
	assert.False(t, owned)
	assert.Equal(t, 1, rt.ledger.OrphanCount())
	open, err := trades.OpenTradesForCredential(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

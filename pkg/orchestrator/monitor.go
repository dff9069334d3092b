// The position Monitor runs one loop per credential on a 30s tick,
// marking every OPEN trade to market and firing stop-loss/take-profit,
// parsed strategy rules, trailing stops, the time guard, and the emergency
// stop, in that order.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
	"botfleet/pkg/ledger"
	"botfleet/pkg/ratecoord"
	"botfleet/pkg/strategy"
)

const (
	defaultMonitorTick       = 30 * time.Second
	defaultMaxTimeInPosition = 24 * time.Hour
	emergencyStopLossPct     = -10.0
	monitorAdmissionPriority = 40 // mark-to-market reads sit below evaluations
	closeAdmissionPriority   = 70 // position exits outrank evaluations
	emergencyStopReason      = "Emergency stop - excessive loss"
)

// TrailingConfig tunes the trailing-stop behaviour in price points. When
// zero, the per-strategy TRAIL_STOP rule's percent value is converted to
// points against the trade's entry price.
type TrailingConfig struct {
	MinProfit     float64 // unrealised gain (points) before the stop starts trailing
	TrailDistance float64 // distance (points) kept between price and stop
}

// Monitor watches open positions. One RunLoop per credential.
type Monitor struct {
	Bots     BotRepo
	Trades   TradeRepo
	Rules    StrategyRules
	Runtimes *Runtimes
	Rate     *ratecoord.Coordinator

	Tick              time.Duration  // default 30s
	MaxTimeInPosition time.Duration  // default 24h
	Trailing          TrailingConfig // overrides rule-derived trailing when set
}

// RunLoop ticks until ctx is cancelled. Each cycle is cancellable between
// trades; each trade's actions are atomic at the rule level.
func (m *Monitor) RunLoop(ctx context.Context, credentialID string) {
	tick := m.Tick
	if tick <= 0 {
		tick = defaultMonitorTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx, credentialID); err != nil {
				logx.WithContext(ctx).Errorf("monitor: credential=%s sweep error=%v", credentialID, err)
			}
		}
	}
}

// Sweep runs one monitor cycle for credentialID: sync broker positions for
// orphan attribution, then evaluate every OPEN trade.
func (m *Monitor) Sweep(ctx context.Context, credentialID string) error {
	rt, err := m.Runtimes.get(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	m.syncOwnership(ctx, rt, credentialID)

	trades, err := m.Trades.OpenTradesForCredential(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("monitor: list open trades: %w", err)
	}
	for i := range trades {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.checkTrade(ctx, rt, credentialID, trades[i]); err != nil {
			logx.WithContext(ctx).Errorf("monitor: trade=%s check error=%v", trades[i].ID, err)
		}
	}
	return nil
}

// syncOwnership lists broker-side positions and attributes any with no known
// owner through the Position Ledger. Ambiguous positions are
// logged as orphans and never debit a bot's capacity.
func (m *Monitor) syncOwnership(ctx context.Context, rt *credentialRuntime, credentialID string) {
	positions, err := withAdmission(ctx, m.Rate, credentialID, monitorAdmissionPriority, deadlineFor(ctx, defaultMonitorTick), func(c context.Context) ([]broker.BrokerPosition, error) {
		return rt.gateway.ListPositions(c)
	})
	if err != nil {
		logx.WithContext(ctx).Slowf("monitor: credential=%s list positions failed: %v", credentialID, err)
		return
	}

	var candidates []ledger.TradeCandidate
	loaded := false
	for _, pos := range positions {
		if _, owned := rt.ledger.Owner(pos.DealID); owned {
			continue
		}
		if !loaded {
			candidates, err = m.Trades.PendingAndRecentOpen(ctx, credentialID)
			if err != nil {
				logx.WithContext(ctx).Errorf("monitor: credential=%s load candidates: %v", credentialID, err)
				return
			}
			loaded = true
		}
		rt.ledger.Attribute(pos, candidates, func(botID string) bool {
			bot, berr := m.Bots.LoadBot(ctx, botID)
			if berr != nil {
				return false
			}
			open, cerr := m.Bots.OpenTradeCountForBot(ctx, botID)
			if cerr != nil {
				return false
			}
			return open < bot.MaxOpenTrades
		})
	}
}

// checkTrade applies the per-trade sequence. Lock ordering for
// row mutation is Trade → Bot; this function only ever touches the Trade row
// plus read-only bot/strategy state, so the ordering holds trivially.
func (m *Monitor) checkTrade(ctx context.Context, rt *credentialRuntime, credentialID string, trade domain.Trade) error {
	quote, err := withAdmission(ctx, m.Rate, credentialID, monitorAdmissionPriority, deadlineFor(ctx, defaultMonitorTick), func(c context.Context) (broker.Quote, error) {
		epic, eerr := rt.gateway.ResolveEpic(c, trade.Symbol)
		if eerr != nil && epic == "" {
			return broker.Quote{}, eerr
		}
		q, _, perr := rt.cache.Price(c, epic)
		return q, perr
	})
	if err != nil || quote.Bid <= 0 {
		// No price, no action: never fire a rule off stale or missing data.
		return nil
	}
	price := (quote.Bid + quote.Ask) / 2
	trade.CurrentPrice = &price

	pnlPct := unrealisedPnLPercent(trade, price)
	timeIn := time.Since(trade.OpenedAt)

	// 2. Stop-loss / take-profit crossing.
	if crossedStopLoss(trade, price) {
		return m.closeTrade(ctx, rt, credentialID, trade, price, "stop_loss")
	}
	if crossedTakeProfit(trade, price) {
		return m.closeTrade(ctx, rt, credentialID, trade, price, "take_profit")
	}

	// 3. Parsed strategy rules, descending priority; first hit wins the tick.
	bot, botErr := m.Bots.LoadBot(ctx, trade.BotID)
	var rules []domain.ParsedRule
	var strat domain.Strategy
	if botErr == nil {
		if s, serr := m.Bots.LoadStrategy(ctx, bot.StrategyID); serr == nil {
			strat = s
			if m.Rules != nil {
				rules, _ = m.Rules.RulesFor(ctx, strat)
			}
		}
	}
	for _, rule := range rules {
		if !rule.Enabled || rule.Type == domain.RuleTrailStop {
			continue
		}
		fired, ferr := m.applyRule(ctx, rt, credentialID, trade, rule, bot.Timeframe, pnlPct, timeIn, price)
		if ferr != nil {
			return ferr
		}
		if fired {
			return nil
		}
	}

	// 4. Trailing stop, favourable direction only.
	if updated, moved := m.maybeTrail(trade, rules, price); moved {
		trade = updated
		if err := m.Trades.UpdateTrade(ctx, trade); err != nil {
			return fmt.Errorf("monitor: persist trailed stop: %w", err)
		}
		return nil
	}

	// 5. Time guard.
	maxTime := m.MaxTimeInPosition
	if maxTime <= 0 {
		maxTime = defaultMaxTimeInPosition
	}
	if timeIn >= maxTime {
		return m.closeTrade(ctx, rt, credentialID, trade, price, "max_time_in_position")
	}

	// 6. Emergency stop.
	if pnlPct <= emergencyStopLossPct {
		logx.WithContext(ctx).Errorf("monitor: CRITICAL trade=%s pnl=%.2f%% emergency stop", trade.ID, pnlPct)
		return m.closeTrade(ctx, rt, credentialID, trade, price, emergencyStopReason)
	}

	// No rule fired; persist the refreshed mark only.
	if err := m.Trades.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("monitor: persist mark: %w", err)
	}
	return nil
}

// applyRule evaluates one rule's trigger and executes its action when it
// holds. Returns fired=true when the rule
// consumed the tick.
func (m *Monitor) applyRule(ctx context.Context, rt *credentialRuntime, credentialID string, trade domain.Trade, rule domain.ParsedRule, timeframe string, pnlPct float64, timeIn time.Duration, price float64) (bool, error) {
	switch rule.Type {
	case domain.RuleExitAfterCandles:
		minutes, ok := strategy.CandleMinutes(timeframe)
		if !ok {
			return false, nil
		}
		if timeIn >= time.Duration(rule.Trigger.Value*float64(minutes))*time.Minute {
			return true, m.closeTrade(ctx, rt, credentialID, trade, price, fmt.Sprintf("exit_after_%d_candles", int(rule.Trigger.Value)))
		}
	case domain.RuleExitAfterTime:
		limit := time.Duration(rule.Trigger.Value) * time.Minute
		if rule.Trigger.Unit == domain.UnitHours {
			limit = time.Duration(rule.Trigger.Value * float64(time.Hour))
		}
		if timeIn >= limit {
			return true, m.closeTrade(ctx, rt, credentialID, trade, price, "exit_after_time")
		}
	case domain.RuleExitOnProfit:
		if pnlPct >= rule.Trigger.Value {
			return true, m.closeTrade(ctx, rt, credentialID, trade, price, "profit_target")
		}
	case domain.RuleExitOnLoss:
		if pnlPct <= rule.Trigger.Value {
			return true, m.closeTrade(ctx, rt, credentialID, trade, price, "loss_limit")
		}
	case domain.RuleScaleOut:
		if pnlPct >= rule.Trigger.Value {
			return m.scaleOut(ctx, rt, credentialID, trade, rule, price)
		}
	}
	return false, nil
}

// maybeTrail implements step 4: once unrealised profit reaches
// the trailing threshold, move the stop by the trail distance in the
// favourable direction only — never widen. Returns the updated trade and
// whether the stop actually moved.
func (m *Monitor) maybeTrail(trade domain.Trade, rules []domain.ParsedRule, price float64) (domain.Trade, bool) {
	cfg := m.Trailing
	if cfg.TrailDistance <= 0 {
		for _, rule := range rules {
			if rule.Type == domain.RuleTrailStop && rule.Enabled {
				cfg.TrailDistance = trade.EntryPrice * rule.Trigger.Value / 100
				cfg.MinProfit = 2 * cfg.TrailDistance
				break
			}
		}
	}
	if cfg.TrailDistance <= 0 || trade.StopLoss == nil {
		return trade, false
	}

	switch trade.Direction {
	case domain.DirectionBuy:
		if price-trade.EntryPrice < cfg.MinProfit {
			return trade, false
		}
		candidate := price - cfg.TrailDistance
		if candidate > *trade.StopLoss {
			trade.StopLoss = &candidate
			return trade, true
		}
	case domain.DirectionSell:
		if trade.EntryPrice-price < cfg.MinProfit {
			return trade, false
		}
		candidate := price + cfg.TrailDistance
		if candidate < *trade.StopLoss {
			trade.StopLoss = &candidate
			return trade, true
		}
	}
	return trade, false
}

// closeTrade closes the full position at the broker and marks the Trade row
// CLOSED with its realised P&L.
func (m *Monitor) closeTrade(ctx context.Context, rt *credentialRuntime, credentialID string, trade domain.Trade, price float64, reason string) error {
	_, err := withAdmission(ctx, m.Rate, credentialID, closeAdmissionPriority, deadlineFor(ctx, defaultMonitorTick), func(c context.Context) (broker.Status, error) {
		return rt.gateway.ClosePosition(c, trade.BrokerDealID, closingDirection(trade.Direction), trade.Quantity)
	})
	if err != nil {
		return fmt.Errorf("monitor: close position deal=%s: %w", trade.BrokerDealID, err)
	}

	now := time.Now()
	pl := realisedPnL(trade, price, trade.Quantity)
	trade.Status = domain.TradeStatusClosed
	trade.ClosedAt = now
	trade.CurrentPrice = &price
	trade.ProfitLoss = &pl
	trade.Rationale = reason
	if err := m.Trades.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("monitor: persist close: %w", err)
	}
	logx.WithContext(ctx).Infof("monitor: closed trade=%s deal=%s reason=%s pnl=%.4f", trade.ID, trade.BrokerDealID, reason, pl)
	return nil
}

// scaleOut performs the partial close: reduce the open
// Trade's quantity by the scaled fraction and create a second CLOSED Trade
// for the scaled portion with its own deal-id suffix and a Partial
// rationale. The broker-side call is the full-position close API applied to
// the portion; a native partial-close binding is future work
func (m *Monitor) scaleOut(ctx context.Context, rt *credentialRuntime, credentialID string, trade domain.Trade, rule domain.ParsedRule, price float64) (bool, error) {
	if done, err := m.Trades.HasPartialFor(ctx, trade.BrokerDealID); err == nil && done {
		return false, nil
	}
	fraction := 0.5
	if f, ok := rule.Parameters["fraction"]; ok && f > 0 && f < 1 {
		fraction = f
	}
	portion := trade.Quantity * fraction

	_, err := withAdmission(ctx, m.Rate, credentialID, closeAdmissionPriority, deadlineFor(ctx, defaultMonitorTick), func(c context.Context) (broker.Status, error) {
		return rt.gateway.ClosePosition(c, trade.BrokerDealID, closingDirection(trade.Direction), portion)
	})
	if err != nil {
		return false, fmt.Errorf("monitor: scale out deal=%s: %w", trade.BrokerDealID, err)
	}

	now := time.Now()
	pl := realisedPnL(trade, price, portion)
	closed := domain.Trade{
		ID:           uuid.NewString(),
		BotID:        trade.BotID,
		CredentialID: trade.CredentialID,
		Symbol:       trade.Symbol,
		Direction:    trade.Direction,
		Quantity:     portion,
		EntryPrice:   trade.EntryPrice,
		CurrentPrice: &price,
		Status:       domain.TradeStatusClosed,
		OpenedAt:     trade.OpenedAt,
		ClosedAt:     now,
		BrokerDealID: partialDealID(trade.BrokerDealID),
		ProfitLoss:   &pl,
		Rationale:    fmt.Sprintf("Partial close at %.1f%%", rule.Trigger.Value),
		AIConfidence: trade.AIConfidence,
		EvaluationID: trade.EvaluationID,
	}
	if err := m.Trades.CreateTrade(ctx, closed); err != nil {
		return false, fmt.Errorf("monitor: persist partial close: %w", err)
	}

	trade.Quantity -= portion
	trade.CurrentPrice = &price
	if err := m.Trades.UpdateTrade(ctx, trade); err != nil {
		return false, fmt.Errorf("monitor: persist reduced quantity: %w", err)
	}
	logx.WithContext(ctx).Infof("monitor: scaled out trade=%s portion=%.4f pnl=%.4f", trade.ID, portion, pl)
	return true, nil
}

// unrealisedPnLPercent is signed relative P&L: positive when the position is
// in profit, for BUY and SELL alike.
func unrealisedPnLPercent(trade domain.Trade, price float64) float64 {
	if trade.EntryPrice == 0 {
		return 0
	}
	switch trade.Direction {
	case domain.DirectionSell:
		return (trade.EntryPrice - price) / trade.EntryPrice * 100
	default:
		return (price - trade.EntryPrice) / trade.EntryPrice * 100
	}
}

func realisedPnL(trade domain.Trade, price, quantity float64) float64 {
	switch trade.Direction {
	case domain.DirectionSell:
		return (trade.EntryPrice - price) * quantity
	default:
		return (price - trade.EntryPrice) * quantity
	}
}

func crossedStopLoss(trade domain.Trade, price float64) bool {
	if trade.StopLoss == nil {
		return false
	}
	if trade.Direction == domain.DirectionSell {
		return price >= *trade.StopLoss
	}
	return price <= *trade.StopLoss
}

func crossedTakeProfit(trade domain.Trade, price float64) bool {
	if trade.TakeProfit == nil {
		return false
	}
	if trade.Direction == domain.DirectionSell {
		return price <= *trade.TakeProfit
	}
	return price >= *trade.TakeProfit
}

func closingDirection(d domain.Direction) broker.Direction {
	if d == domain.DirectionBuy {
		return broker.DirectionSell
	}
	return broker.DirectionBuy
}

func partialDealID(dealID string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return dealID + "-part-" + suffix
}

func deadlineFor(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

// Package riskgate implements the risk gate: per-trade and portfolio
// limit checks (market hours, trade caps, interval floors,
// drawdown/exposure/consecutive-losses) gating every EXECUTE_TRADE
// decision before a position is opened.
package riskgate

import (
	"fmt"
	"strings"
	"time"

	"botfleet/pkg/domain"
)

// Defaults mirror the named defaults.
const (
	DefaultMaxRiskPerTradePct   = 2
	DefaultMaxTotalExposurePct  = 20
	DefaultMaxDrawdownPct       = 15
	DefaultMaxOpenPositions     = 5
	DefaultMaxDailyLossPct      = 5
	DefaultMaxConsecutiveLosses = 3
	DefaultMinIntervalBetween   = 5 * time.Minute
)

// Limits is the portfolio-level configuration checked on every trade.
type Limits struct {
	MaxRiskPerTradePct   float64
	MaxTotalExposurePct  float64
	MaxDrawdownPct       float64
	MaxOpenPositions     int
	MaxDailyLossPct      float64
	MaxConsecutiveLosses int
}

// WithDefaults fills zero fields with the defaults.
func (l Limits) WithDefaults() Limits {
	if l.MaxRiskPerTradePct <= 0 {
		l.MaxRiskPerTradePct = DefaultMaxRiskPerTradePct
	}
	if l.MaxTotalExposurePct <= 0 {
		l.MaxTotalExposurePct = DefaultMaxTotalExposurePct
	}
	if l.MaxDrawdownPct <= 0 {
		l.MaxDrawdownPct = DefaultMaxDrawdownPct
	}
	if l.MaxOpenPositions <= 0 {
		l.MaxOpenPositions = DefaultMaxOpenPositions
	}
	if l.MaxDailyLossPct <= 0 {
		l.MaxDailyLossPct = DefaultMaxDailyLossPct
	}
	if l.MaxConsecutiveLosses <= 0 {
		l.MaxConsecutiveLosses = DefaultMaxConsecutiveLosses
	}
	return l
}

// Portfolio is the live snapshot the gate checks limits against.
type Portfolio struct {
	CurrentRiskPct     float64
	TotalExposurePct   float64
	CurrentDrawdownPct float64
	OpenPositions      int
	DailyPnLPct        float64 // negative is a loss
	ConsecutiveLosses  int
}

// Request bundles everything the gate needs to evaluate one candidate trade.
type Request struct {
	Bot                domain.Bot
	AssetClass         AssetClass
	Now                time.Time
	OpenTradesForBot   int
	HasOpenOnSymbol    bool
	HasPendingOnSymbol bool
	Limits             Limits
	Portfolio          Portfolio
	RequestedQty       float64
}

// Result is the gate's verdict
type Result struct {
	Approved         bool
	AdjustedQuantity float64
	RiskScore        int // 1..10, higher is riskier
	Reasons          []string
}

func (r *Result) reject(format string, args ...any) {
	r.Approved = false
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// Evaluate runs every check in order, collecting all
// failing reasons (not just the first) so the caller can surface a complete
// explanation "a refused trade returns a clear reason".
func Evaluate(req Request) Result {
	limits := req.Limits.WithDefaults()
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := Result{Approved: true, AdjustedQuantity: req.RequestedQty, RiskScore: baseRiskScore(req.Portfolio, limits)}

	// Active-bot preconditions.
	if !req.Bot.IsActive {
		result.reject("bot is not active")
	}
	if !req.Bot.AIEnabled {
		result.reject("AI trading is not enabled for this bot")
	}
	if strings.TrimSpace(req.Bot.Symbol) == "" || strings.TrimSpace(req.Bot.Timeframe) == "" {
		result.reject("bot has no symbol/timeframe configured")
	}
	if strings.TrimSpace(req.Bot.CredentialID) == "" {
		result.reject("bot has no credential configured")
	}

	// Bot-local checks.
	maxOpen := req.Bot.MaxOpenTrades
	if maxOpen <= 0 {
		maxOpen = 1
	}
	if req.OpenTradesForBot >= maxOpen {
		result.reject("bot already has %d open trades (max %d)", req.OpenTradesForBot, maxOpen)
	}
	if req.HasOpenOnSymbol {
		result.reject("bot already has an open trade on %s", req.Bot.Symbol)
	}
	if req.HasPendingOnSymbol {
		result.reject("bot already has a pending trade on %s", req.Bot.Symbol)
	}
	minInterval := req.Bot.MinIntervalBetweenTrades
	if minInterval <= 0 {
		minInterval = DefaultMinIntervalBetween
	}
	if !req.Bot.LastTradeAt.IsZero() {
		elapsed := now.Sub(req.Bot.LastTradeAt)
		if elapsed < minInterval {
			result.reject("min interval between trades not elapsed (%s remaining)", (minInterval - elapsed).Truncate(time.Second))
		}
	}

	// Market timing.
	if !MarketOpen(req.AssetClass, now) {
		result.reject("market closed for %s at %s", req.AssetClass, now.UTC().Format(time.RFC3339))
	}

	// Portfolio-level checks.
	if req.Portfolio.CurrentRiskPct > limits.MaxRiskPerTradePct {
		result.reject("current risk %.2f%% exceeds max per-trade risk %.2f%%", req.Portfolio.CurrentRiskPct, limits.MaxRiskPerTradePct)
	}
	if req.Portfolio.TotalExposurePct > limits.MaxTotalExposurePct {
		result.reject("total exposure %.2f%% exceeds max %.2f%%", req.Portfolio.TotalExposurePct, limits.MaxTotalExposurePct)
	}
	if req.Portfolio.CurrentDrawdownPct > limits.MaxDrawdownPct {
		result.reject("drawdown %.2f%% exceeds max %.2f%%", req.Portfolio.CurrentDrawdownPct, limits.MaxDrawdownPct)
	}
	if req.Portfolio.OpenPositions > limits.MaxOpenPositions {
		result.reject("open positions %d exceeds max %d", req.Portfolio.OpenPositions, limits.MaxOpenPositions)
	}
	if req.Portfolio.DailyPnLPct < -limits.MaxDailyLossPct {
		result.reject("daily pnl %.2f%% breaches max daily loss %.2f%%", req.Portfolio.DailyPnLPct, limits.MaxDailyLossPct)
	}
	if req.Portfolio.ConsecutiveLosses > limits.MaxConsecutiveLosses {
		result.reject("consecutive losses %d exceeds max %d", req.Portfolio.ConsecutiveLosses, limits.MaxConsecutiveLosses)
	}

	if !result.Approved {
		result.AdjustedQuantity = 0
	}
	return result
}

// baseRiskScore is a coarse 1..10 estimate from portfolio strain, used as a
// starting point even on approval so callers can log a trend over time.
func baseRiskScore(p Portfolio, l Limits) int {
	score := 1
	if l.MaxDrawdownPct > 0 {
		score += int(p.CurrentDrawdownPct / l.MaxDrawdownPct * 4)
	}
	if l.MaxTotalExposurePct > 0 {
		score += int(p.TotalExposurePct / l.MaxTotalExposurePct * 4)
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

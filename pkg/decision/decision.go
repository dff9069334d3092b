// Package decision implements the trading-decision chain: pure
// orchestration over an LLM call — render prompt, ChatStructured, map,
// validate — over the {symbol, price, market conditions, side panels,
// chart} input contract.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/domain"
	"botfleet/pkg/htf"
	"botfleet/pkg/llm"
	"botfleet/pkg/orcherr"
	"botfleet/pkg/prompt"
)

const callBudget = 60 * time.Second

// fallbackBase is the static base-price table used when both the live price
// and recent OHLC close are unavailable
var fallbackBase = map[string]float64{
	"BTCUSD": 60000,
	"ETHUSD": 3000,
	"EURUSD": 1.08,
	"GBPUSD": 1.27,
}

// Input aggregates everything the decision chain needs
type Input struct {
	Symbol            string
	CurrentPrice      *float64 // nil when no live price was available (marketcache degraded mode)
	RecentClose       *float64 // most recent OHLC close, used as a price fallback
	HigherTimeframe   htf.Context
	RiskPanel         string
	TechnicalsPanel   string
	PortfolioPanel    string
	ChartImageBase64  string // empty when the chart pipeline reported Unavailable
	ConfidenceCeiling int    // strategy's confidence threshold; Decide does not read it, and riskgate has no confidence check
}

// Output is the validated, mapped decision
type Output struct {
	Decision     domain.EvalDecision
	Confidence   int
	Reasoning    string
	TradeParams  *domain.TradeParams
	UsedPrice    float64 // the price actually used to size tradeParams, whichever source it came from
	PromptDigest string  // sha256 of the rendered prompt, for the audit journal
	TimedOut     bool
}

// contract is the structured shape the LLM must fill; json tags double as
// the generated-schema property names (pkg/llm.GenerateSchema).
type contract struct {
	Decision   string  `json:"decision"`
	Confidence int     `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Symbol     string  `json:"symbol,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	OrderType  string  `json:"order_type,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// Chain wires an LLM client into the decision contract.
type Chain struct {
	client llm.LLMClient
	model  string
	tmpl   *prompt.Template
}

// New constructs a Chain. model may be empty to use the client's default.
func New(client llm.LLMClient, model string) *Chain {
	return &Chain{client: client, model: model}
}

// WithTemplate renders the system prompt through an operator-supplied
// template file instead of the built-in prompt. A render failure (e.g. the
// template referencing a field that no longer exists) falls back to the
// built-in prompt rather than skipping the evaluation.
func (c *Chain) WithTemplate(t *prompt.Template) *Chain {
	c.tmpl = t
	return c
}

// Decide runs one decision cycle. A timeout (the call budget or the parent
// context expiring) returns a HOLD Output with TimedOut set together with an
// error wrapping ErrAnalysisTimedOut; any other LLM failure returns a zero
// Output and the error.
func (c *Chain) Decide(ctx context.Context, in Input) (Output, error) {
	if c == nil || c.client == nil {
		return Output{}, errors.New("decision: chain not initialised")
	}

	rendered := c.renderSystemPrompt(in)
	digest := prompt.Digest(rendered)

	callCtx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	var out contract
	req := &llm.ChatRequest{
		Model:    c.model,
		Messages: []llm.Message{{Role: "system", Content: rendered}},
	}
	_, err := c.client.ChatStructured(callCtx, req, &out)
	if callCtx.Err() != nil {
		logx.Slowf("decision: analysis timed out symbol=%s", in.Symbol)
		return Output{Decision: domain.DecisionHold, Reasoning: "analysis timed out", PromptDigest: digest, TimedOut: true}, fmt.Errorf("decision: %w", orcherr.ErrAnalysisTimedOut)
	}
	if err != nil {
		return Output{}, fmt.Errorf("decision: llm call: %w", err)
	}

	result, err := mapAndValidate(in, out)
	result.PromptDigest = digest
	return result, err
}

func mapAndValidate(in Input, out contract) (Output, error) {
	result := Output{
		Confidence: clamp(out.Confidence, 0, 100),
		Reasoning:  strings.TrimSpace(out.Reasoning),
	}

	switch strings.ToUpper(strings.TrimSpace(out.Decision)) {
	case string(domain.DecisionExecuteTrade):
		result.Decision = domain.DecisionExecuteTrade
	case string(domain.DecisionAbort):
		result.Decision = domain.DecisionAbort
		return result, nil
	default:
		result.Decision = domain.DecisionHold
		return result, nil
	}

	price, usedFallback := resolvePrice(in)
	result.UsedPrice = price
	if price <= 0 {
		result.Decision = domain.DecisionHold
		result.Reasoning = "no price available to size trade"
		return result, nil
	}
	if usedFallback && result.Confidence > 65 {
		result.Confidence = 65
	}

	dir := domain.DirectionBuy
	if strings.EqualFold(out.Direction, string(domain.DirectionSell)) {
		dir = domain.DirectionSell
	}
	tp := &domain.TradeParams{
		Symbol:    in.Symbol,
		Direction: dir,
		OrderType: strings.TrimSpace(out.OrderType),
		Quantity:  out.Quantity,
	}
	if out.StopLoss > 0 {
		sl := out.StopLoss
		tp.StopLoss = &sl
	}
	if out.TakeProfit > 0 {
		tpv := out.TakeProfit
		tp.TakeProfit = &tpv
	}
	result.TradeParams = tp
	return result, nil
}

// resolvePrice implements the fallback chain: live price, then
// recent OHLC close, then the static base table, with usedFallback=true
// whenever the live price was unavailable (triggers the confidence cap).
func resolvePrice(in Input) (price float64, usedFallback bool) {
	if in.CurrentPrice != nil && *in.CurrentPrice > 0 {
		return *in.CurrentPrice, false
	}
	if in.RecentClose != nil && *in.RecentClose > 0 {
		return *in.RecentClose, true
	}
	if base, ok := fallbackBase[strings.ToUpper(in.Symbol)]; ok {
		return base, true
	}
	return 0, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// renderSystemPrompt prefers the operator template when one is configured.
func (c *Chain) renderSystemPrompt(in Input) string {
	if c.tmpl != nil {
		rendered, err := c.tmpl.Render(templateData(in))
		if err == nil {
			return rendered
		}
		logx.Errorf("decision: prompt template render failed, using built-in prompt: %v", err)
	}
	return renderPrompt(in)
}

// templateData is the stable field set exposed to operator templates.
func templateData(in Input) map[string]any {
	price := ""
	if in.CurrentPrice != nil {
		price = fmt.Sprintf("%.6f", *in.CurrentPrice)
	}
	return map[string]any{
		"Symbol":          in.Symbol,
		"CurrentPrice":    price,
		"MarketSummary":   in.HigherTimeframe.Summary(),
		"RiskPanel":       orEmpty(in.RiskPanel),
		"TechnicalsPanel": orEmpty(in.TechnicalsPanel),
		"PortfolioPanel":  orEmpty(in.PortfolioPanel),
		"HasChart":        in.ChartImageBase64 != "",
	}
}

// renderPrompt builds the system prompt embedding the market-conditions
// text (which itself embeds the higher-timeframe summary) and the three
// side panels as plain-text sections rather than a templating engine.
func renderPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the trading-decision chain for %s.\n", in.Symbol)
	if in.CurrentPrice != nil {
		fmt.Fprintf(&b, "Current price: %.6f\n", *in.CurrentPrice)
	} else {
		b.WriteString("Current price: unavailable (degraded mode)\n")
	}
	fmt.Fprintf(&b, "Market conditions: %s\n", in.HigherTimeframe.Summary())
	fmt.Fprintf(&b, "Risk panel: %s\n", orEmpty(in.RiskPanel))
	fmt.Fprintf(&b, "Technicals panel: %s\n", orEmpty(in.TechnicalsPanel))
	fmt.Fprintf(&b, "Portfolio panel: %s\n", orEmpty(in.PortfolioPanel))
	if in.ChartImageBase64 != "" {
		b.WriteString("A chart image is attached.\n")
	} else {
		b.WriteString("No chart image is available; decide on text context alone.\n")
	}
	b.WriteString("Respond with decision (HOLD, EXECUTE_TRADE, or ABORT), confidence (0-100), reasoning, and trade parameters when executing.\n")
	return b.String()
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

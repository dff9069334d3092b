// The bot Evaluator orchestrates one evaluation attempt end to end:
// market-data fetch, chart render, higher-timeframe context, LLM decision,
// risk gate, trade execution, recording an Evaluation in every outcome.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/broker"
	"botfleet/pkg/chart"
	"botfleet/pkg/decision"
	"botfleet/pkg/domain"
	"botfleet/pkg/htf"
	"botfleet/pkg/journal"
	"botfleet/pkg/orcherr"
	"botfleet/pkg/ratecoord"
	"botfleet/pkg/riskgate"
)

// defaultAdmissionPriority is the priority an evaluation requests admission
// at..
const defaultAdmissionPriority = 50

// evaluationBudget bounds one attempt end to end: the worst-case
// sum of stage budgets is ~150s (45s chart + 60s decision + slack for
// market-data/risk/broker calls).
const evaluationBudget = 150 * time.Second

// Evaluator runs one bot evaluation attempt.
type Evaluator struct {
	Bots       BotRepo
	Trades     TradeRepo
	Evals      EvaluationRepo
	Portfolio  PortfolioSource
	Rules      StrategyRules
	Runtimes   *Runtimes
	Rate       *ratecoord.Coordinator
	Coord      *Coordinator
	Decisions  *decision.Chain
	Renderer   chart.Renderer
	Store      chart.ObjectStore
	Journal    *journal.Writer // optional file-based audit trail
	ChartLocal string
	OHLCCount  int // candles requested for the chart; defaults to 120
}

// stage names the evaluation state machine. Purely transient and
// observable via logs; never persisted.
type stage string

const (
	stageIdle     stage = "IDLE"
	stageAdmitted stage = "ADMITTED"
	stageMarket   stage = "MARKET_DATA"
	stageChart    stage = "CHART"
	stageAnalysis stage = "ANALYSIS"
	stageReported stage = "REPORTED"
)

// Run executes one evaluation attempt for botID. It always returns a
// non-nil Evaluation (even on early-return paths); the error return is
// non-nil only for conditions the caller should treat as a retryable
// scheduling failure (not a trading decision).
func (e *Evaluator) Run(ctx context.Context, botID string) (domain.Evaluation, error) {
	started := time.Now()
	st := stageIdle
	eval := domain.Evaluation{
		ID:        uuid.NewString(),
		BotID:     botID,
		StartedAt: started,
		Decision:  domain.DecisionHold,
	}

	bot, err := e.Bots.LoadBot(ctx, botID)
	if err != nil {
		return eval, fmt.Errorf("evaluator: load bot %s: %w", botID, err)
	}
	if !bot.IsActive {
		eval.Reason = "bot_inactive"
		e.persist(ctx, eval)
		return eval, nil
	}

	strategy, err := e.Bots.LoadStrategy(ctx, bot.StrategyID)
	if err != nil {
		eval.Reason = "strategy_unavailable"
		e.persist(ctx, eval)
		return eval, fmt.Errorf("evaluator: load strategy %s: %w", bot.StrategyID, err)
	}

	// Step 2: Coordinator admission.
	if !e.Coord.RequestBotExecution(bot.ID, bot.CredentialID, defaultAdmissionPriority) {
		eval.Reason = "queued"
		return eval, nil
	}
	st = stageAdmitted
	success := false
	defer func() { e.Coord.CompleteBotExecution(bot.ID, success) }()

	ctx, cancel := context.WithTimeout(ctx, evaluationBudget)
	defer cancel()

	rt, err := e.Runtimes.get(ctx, bot.CredentialID)
	if err != nil {
		eval.Reason = "credential_unavailable"
		e.persist(ctx, eval)
		return eval, fmt.Errorf("evaluator: %w", err)
	}

	// Step 3: market-hours check.
	credCfg, credErr := e.Bots.LoadCredential(ctx, bot.CredentialID)
	assetClass := riskgate.AssetIndices
	if credErr == nil {
		assetClass = classifyAsset(bot.Symbol, domain.BrokerKind(credCfg.Kind))
	}
	if !riskgate.MarketOpen(assetClass, time.Now()) {
		eval.Reason = "market_closed"
		e.markEvaluated(ctx, bot.ID, started)
		e.persist(ctx, eval)
		success = true
		return eval, nil
	}

	st = stageMarket
	epic, epicErr := withAdmission(ctx, e.Rate, bot.CredentialID, defaultAdmissionPriority, deadlineFor(ctx, evaluationBudget), func(c context.Context) (string, error) {
		return rt.gateway.ResolveEpic(c, bot.Symbol)
	})
	if epicErr != nil && epic == "" {
		eval.Reason = "data_unavailable"
		e.persist(ctx, eval)
		return eval, fmt.Errorf("evaluator: resolve epic: %w", orcherr.ErrDataUnavailable)
	}

	var currentPrice *float64
	quote, quoteErr := withAdmission(ctx, e.Rate, bot.CredentialID, defaultAdmissionPriority, deadlineFor(ctx, evaluationBudget), func(c context.Context) (broker.Quote, error) {
		q, _, perr := rt.cache.Price(c, epic)
		return q, perr
	})
	if quoteErr == nil && quote.Bid > 0 {
		mid := (quote.Bid + quote.Ask) / 2
		currentPrice = &mid
	}

	resolution := primaryResolution(bot.Timeframe)
	candleCount := e.OHLCCount
	if candleCount <= 0 {
		candleCount = 120
	}
	var recentClose *float64
	if candles, ohlcErr := withAdmission(ctx, e.Rate, bot.CredentialID, defaultAdmissionPriority, deadlineFor(ctx, evaluationBudget), func(c context.Context) ([]broker.Candle, error) {
		return rt.cache.OHLC(c, epic, resolution, time.Time{}, time.Time{}, candleCount)
	}); ohlcErr == nil && len(candles) > 0 {
		last := candles[len(candles)-1].Close
		recentClose = &last
	}

	// Step 5: chart pipeline, 45s-budgeted internally.
	st = stageChart
	var chartImage string
	if e.Renderer != nil && e.Store != nil {
		pipeline := chart.New(func(c context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
			return withAdmission(c, e.Rate, bot.CredentialID, defaultAdmissionPriority, deadlineFor(c, evaluationBudget), func(cc context.Context) ([]broker.Candle, error) {
				return rt.cache.OHLC(cc, epic, resolution, from, to, count)
			})
		}, e.Renderer, e.Store, e.ChartLocal)
		result, chartErr := pipeline.Run(ctx, chart.Request{
			BotID:      bot.ID,
			BotOwner:   bot.UserID,
			Symbol:     bot.Symbol,
			Epic:       epic,
			Timeframe:  bot.Timeframe,
			Resolution: resolution,
			Indicators: strategy.Indicators,
			Count:      candleCount,
		})
		if chartErr != nil {
			logx.WithContext(ctx).Errorf("evaluator: bot=%s chart pipeline error=%v", bot.ID, chartErr)
		} else if !result.Unavailable {
			eval.ChartRef = result.URL
			chartImage = result.ImageBase64
		}
		// A placeholder/timeout result is unacceptable input to the decision;
		// evaluation proceeds without an image rather than aborting. The
		// missing chart neither lowers the decision's confidence nor sets a Reason.
	}

	// Step 6: portfolio context.
	var portfolio riskgate.Portfolio
	if e.Portfolio != nil {
		if p, perr := e.Portfolio.Snapshot(ctx, bot.CredentialID); perr == nil {
			portfolio = p
		}
	}

	// Step 7: higher-timeframe analysis, best-effort, never blocks.
	st = stageAnalysis
	higherCtx := htf.Analyse(ctx, func(c context.Context, epic, resolution string, count int) ([]broker.Candle, error) {
		return withAdmission(c, e.Rate, bot.CredentialID, defaultAdmissionPriority, deadlineFor(c, evaluationBudget), func(cc context.Context) ([]broker.Candle, error) {
			return rt.cache.OHLC(cc, epic, resolution, time.Time{}, time.Time{}, count)
		})
	}, epic, bot.Timeframe)

	// Step 8: LLM decision chain, 60s-budgeted internally.
	out, decErr := e.Decisions.Decide(ctx, decision.Input{
		Symbol:            bot.Symbol,
		CurrentPrice:      currentPrice,
		RecentClose:       recentClose,
		HigherTimeframe:   higherCtx,
		RiskPanel:         riskPanelText(portfolio),
		TechnicalsPanel:   higherCtx.Summary(),
		PortfolioPanel:    portfolioPanelText(bot),
		ChartImageBase64:  chartImage,
		ConfidenceCeiling: strategy.ConfidenceThreshold,
	})
	if decErr != nil && !out.TimedOut {
		eval.Reason = "analysis_failed"
		e.markEvaluated(ctx, bot.ID, started)
		e.persist(ctx, eval)
		return eval, fmt.Errorf("evaluator: decide: %w", decErr)
	}

	eval.Decision = out.Decision
	eval.Confidence = out.Confidence
	eval.Reasoning = out.Reasoning
	if out.TimedOut {
		eval.Reason = "analysis_timed_out"
	}

	// Step 10: execute when approved.
	if out.Decision == domain.DecisionExecuteTrade && bot.AIEnabled && out.TradeParams != nil {
		if trade, execErr := e.execute(ctx, rt, bot, strategy, portfolio, assetClass, out); execErr != nil {
			eval.Reason = execErr.Error()
		} else {
			eval.TradeParams = out.TradeParams
			_ = trade
		}
	}

	st = stageReported
	_ = st
	e.markEvaluated(ctx, bot.ID, started)
	e.persist(ctx, eval)
	e.writeJournal(bot, eval, out.PromptDigest)
	success = true
	return eval, nil
}

// journal writes the file-based audit record, best-effort.
func (e *Evaluator) writeJournal(bot domain.Bot, eval domain.Evaluation, promptDigest string) {
	if e.Journal == nil {
		return
	}
	rec := &journal.EvaluationRecord{
		BotID:        bot.ID,
		EvaluationID: eval.ID,
		Symbol:       bot.Symbol,
		Timeframe:    bot.Timeframe,
		Decision:     string(eval.Decision),
		Confidence:   eval.Confidence,
		Reasoning:    eval.Reasoning,
		Reason:       eval.Reason,
		ChartRef:     eval.ChartRef,
		PromptDigest: promptDigest,
		Success:      eval.Reason == "",
	}
	if eval.TradeParams != nil {
		if raw, err := json.Marshal(eval.TradeParams); err == nil {
			rec.TradeJSON = string(raw)
		}
	}
	if _, err := e.Journal.WriteEvaluation(rec); err != nil {
		logx.Errorf("evaluator: journal write bot=%s err=%v", bot.ID, err)
	}
}

// execute runs the risk gate then, on approval, opens the position at the
// broker and registers ownership in the position ledger.
func (e *Evaluator) execute(ctx context.Context, rt *credentialRuntime, bot domain.Bot, strategy domain.Strategy, portfolio riskgate.Portfolio, assetClass riskgate.AssetClass, out decision.Output) (domain.Trade, error) {
	openTrades, _ := e.Bots.OpenTradeCountForBot(ctx, bot.ID)
	hasOpen, _ := e.Trades.HasOpenOnSymbol(ctx, bot.ID, bot.Symbol)
	hasPending, _ := e.Trades.HasPendingOnSymbol(ctx, bot.ID, bot.Symbol)

	limits := riskgate.Limits{
		MaxRiskPerTradePct: strategy.MaxRiskPerTrade,
		MaxDrawdownPct:     strategy.RiskControls.MaxDrawdown,
	}
	result := riskgate.Evaluate(riskgate.Request{
		Bot:                bot,
		AssetClass:         assetClass,
		Now:                time.Now(),
		OpenTradesForBot:   openTrades,
		HasOpenOnSymbol:    hasOpen,
		HasPendingOnSymbol: hasPending,
		Limits:             limits,
		Portfolio:          portfolio,
		RequestedQty:       out.TradeParams.Quantity,
	})
	if !result.Approved {
		return domain.Trade{}, fmt.Errorf("%w: %v", orcherr.ErrRiskRejected, result.Reasons)
	}

	epic, err := rt.gateway.ResolveEpic(ctx, bot.Symbol)
	if err != nil && epic == "" {
		return domain.Trade{}, fmt.Errorf("evaluator: resolve epic for execution: %w", orcherr.ErrDataUnavailable)
	}

	dir := broker.Direction(out.TradeParams.Direction)
	openResult, err := withAdmission(ctx, e.Rate, bot.CredentialID, defaultAdmissionPriority+10, deadlineFor(ctx, evaluationBudget), func(c context.Context) (broker.OpenResult, error) {
		return rt.gateway.OpenPosition(c, epic, dir, result.AdjustedQuantity, out.TradeParams.StopLoss, out.TradeParams.TakeProfit)
	})
	if err != nil {
		return domain.Trade{}, fmt.Errorf("evaluator: open position: %w", err)
	}

	trade := domain.Trade{
		ID:           uuid.NewString(),
		BotID:        bot.ID,
		CredentialID: bot.CredentialID,
		Symbol:       bot.Symbol,
		Direction:    out.TradeParams.Direction,
		Quantity:     result.AdjustedQuantity,
		EntryPrice:   out.UsedPrice,
		StopLoss:     out.TradeParams.StopLoss,
		TakeProfit:   out.TradeParams.TakeProfit,
		Status:       domain.TradeStatusOpen,
		OpenedAt:     time.Now(),
		BrokerDealID: openResult.DealID,
		Rationale:    out.Reasoning,
		AIConfidence: out.Confidence,
	}
	if err := e.Trades.CreateTrade(ctx, trade); err != nil {
		return trade, fmt.Errorf("evaluator: persist trade: %w", err)
	}
	rt.ledger.Record(openResult.DealID, bot.ID, domain.ProvenanceDealIDMatch)
	if err := e.Bots.MarkTraded(ctx, bot.ID, trade.OpenedAt); err != nil {
		logx.WithContext(ctx).Errorf("evaluator: mark traded bot=%s err=%v", bot.ID, err)
	}
	return trade, nil
}

func (e *Evaluator) markEvaluated(ctx context.Context, botID string, at time.Time) {
	if err := e.Bots.MarkEvaluated(ctx, botID, at); err != nil {
		logx.WithContext(ctx).Errorf("evaluator: mark evaluated bot=%s err=%v", botID, err)
	}
}

func (e *Evaluator) persist(ctx context.Context, eval domain.Evaluation) {
	if e.Evals == nil {
		return
	}
	if err := e.Evals.SaveEvaluation(ctx, eval); err != nil {
		logx.WithContext(ctx).Errorf("evaluator: save evaluation bot=%s err=%v", eval.BotID, err)
	}
}

// primaryResolution maps a bot timeframe to the broker's resolution string.
// The orchestration core treats timeframe and resolution as the same
// vocabulary (M1/M5/M15/.../D1); brokers needing translation do so in their
// own provider (pkg/broker/providers).
func primaryResolution(timeframe string) string {
	return timeframe
}

func riskPanelText(p riskgate.Portfolio) string {
	return fmt.Sprintf("risk=%.2f%% exposure=%.2f%% drawdown=%.2f%% open=%d daily_pnl=%.2f%% consec_losses=%d",
		p.CurrentRiskPct, p.TotalExposurePct, p.CurrentDrawdownPct, p.OpenPositions, p.DailyPnLPct, p.ConsecutiveLosses)
}

func portfolioPanelText(bot domain.Bot) string {
	return fmt.Sprintf("bot=%s max_open=%d min_interval=%s", bot.ID, bot.MaxOpenTrades, bot.MinIntervalBetweenTrades)
}

// Package domain holds the persistence-agnostic shapes shared across the
// bot orchestration core: Bot, Strategy, Credential, Trade and
// Evaluation. Components depend on these value types rather than on
// internal/model directly, so the orchestration core stays decoupled from
// the concrete ORM/schema "out of scope" boundary.
package domain

import "time"

// BrokerKind mirrors the tagged broker-kind variant used by pkg/broker's
// provider registry.
type BrokerKind string

const (
	BrokerCapital  BrokerKind = "capital"
	BrokerBinance  BrokerKind = "binance"
	BrokerCoinbase BrokerKind = "coinbase"
	BrokerCustom   BrokerKind = "custom"
)

// Bot is the identity of one recurring evaluation.
type Bot struct {
	ID                       string
	UserID                   string
	CredentialID             string
	StrategyID               string
	Symbol                   string
	Timeframe                string
	IsActive                 bool
	AIEnabled                bool
	MaxOpenTrades            int
	MinIntervalBetweenTrades time.Duration
	LastEvalAt               time.Time
	LastTradeAt              time.Time
}

// RiskControls is the strategy-level risk configuration.
type RiskControls struct {
	MaxDrawdown      float64
	TrailingStopLoss float64
	TakeProfitLevel  float64
}

// Strategy is the user-authored trading strategy, including free prose
// parsed by pkg/strategy into ParsedRules.
type Strategy struct {
	ID                  string
	UserID              string
	Name                string
	DescriptionText     string
	Timeframes          []string
	Indicators          []string
	EntryConditions     []string
	ExitConditions      []string
	RiskControls        RiskControls
	MinRiskPerTrade     float64
	MaxRiskPerTrade     float64
	ConfidenceThreshold int
}

// RuleType enumerates the ParsedRule variants names.
type RuleType string

const (
	RuleExitAfterCandles RuleType = "EXIT_AFTER_CANDLES"
	RuleExitAfterTime    RuleType = "EXIT_AFTER_TIME"
	RuleExitOnProfit     RuleType = "EXIT_ON_PROFIT"
	RuleExitOnLoss       RuleType = "EXIT_ON_LOSS"
	RuleTrailStop        RuleType = "TRAIL_STOP"
	RuleScaleOut         RuleType = "SCALE_OUT"
)

// TriggerUnit enumerates trigger value units.
type TriggerUnit string

const (
	UnitCandles TriggerUnit = "candles"
	UnitMinutes TriggerUnit = "minutes"
	UnitHours   TriggerUnit = "hours"
	UnitPercent TriggerUnit = "percent"
	UnitPips    TriggerUnit = "pips"
)

// RuleAction enumerates the action a fired rule performs.
type RuleAction string

const (
	ActionCloseFull    RuleAction = "close_full"
	ActionClosePartial RuleAction = "close_partial"
	ActionModifySL     RuleAction = "modify_sl"
	ActionModifyTP     RuleAction = "modify_tp"
)

// Trigger is a ParsedRule's firing condition.
type Trigger struct {
	Value     float64
	Unit      TriggerUnit
	Condition string // "greater_than" | "less_than", optional
}

// ParsedRule is one compiled exit/management rule.
type ParsedRule struct {
	Type       RuleType
	Trigger    Trigger
	Action     RuleAction
	Parameters map[string]float64
	Priority   int // 1..10, higher fires first
	Enabled    bool
}

// Direction mirrors broker.Direction without importing pkg/broker, so
// domain stays a leaf package.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// TradeStatus enumerates a Trade's lifecycle state.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusOpen      TradeStatus = "OPEN"
	TradeStatusClosed    TradeStatus = "CLOSED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Trade is one broker position lifecycle record. The invariant
// status=OPEN ⇔ openedAt≠∅ ∧ closedAt=∅ is enforced by callers mutating
// through Ledger/Monitor, not by this struct itself.
type Trade struct {
	ID           string
	BotID        string
	CredentialID string
	Symbol       string
	Direction    Direction
	Quantity     float64
	EntryPrice   float64
	StopLoss     *float64
	TakeProfit   *float64
	CurrentPrice *float64
	Status       TradeStatus
	OpenedAt     time.Time
	ClosedAt     time.Time
	BrokerDealID string
	ProfitLoss   *float64
	Rationale    string
	AIConfidence int
	EvaluationID string
}

// EvalDecision enumerates an Evaluation's outcome.
type EvalDecision string

const (
	DecisionHold         EvalDecision = "HOLD"
	DecisionExecuteTrade EvalDecision = "EXECUTE_TRADE"
	DecisionAbort        EvalDecision = "ABORT"
)

// TradeParams is the LLM-proposed trade shape, present only when
// Decision=EXECUTE_TRADE.
type TradeParams struct {
	Symbol     string
	Direction  Direction
	OrderType  string
	Quantity   float64
	StopLoss   *float64
	TakeProfit *float64
}

// Evaluation is an append-only record of one decision cycle.
type Evaluation struct {
	ID          string
	BotID       string
	StartedAt   time.Time
	ChartRef    string
	Decision    EvalDecision
	Confidence  int
	Reasoning   string
	TradeParams *TradeParams
	Reason      string // populated on HOLD/ABORT (e.g. "market_closed", "data_unavailable", "analysis_timed_out"); a missing chart or a cancelled context sets no reason of its own
}

// OwnerProvenance records how a broker deal id was attributed to a bot.
type OwnerProvenance string

const (
	ProvenanceDealIDMatch    OwnerProvenance = "DEAL_ID_MATCH"
	ProvenanceTimeSymbolSize OwnerProvenance = "TIME_SYMBOL_SIZE_MATCH"
)

// PositionOwnership is one materialised row of the Position Ledger.
type PositionOwnership struct {
	BrokerDealID string
	BotID        string
	Provenance   OwnerProvenance
	AttributedAt time.Time
}

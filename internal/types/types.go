// Package types holds the HTTP request/response shapes for the CRUD
// surface (strategies, bots, credentials, trading pairs). Business errors
// carry a structured {message, code} body.
package types

// APIError is the structured business-error body.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// IDPath is the common /:id path parameter.
type IDPath struct {
	Id string `path:"id"`
}

// --- Strategies -------------------------------------------------------------

type RiskControls struct {
	MaxDrawdown      float64 `json:"maxDrawdown,optional"`
	TrailingStopLoss float64 `json:"trailingStopLoss,optional"`
	TakeProfitLevel  float64 `json:"takeProfitLevel,optional"`
}

type StrategyRequest struct {
	Name                string       `json:"name"`
	DescriptionText     string       `json:"descriptionText"`
	Timeframes          []string     `json:"timeframes,optional"`
	Indicators          []string     `json:"indicators,optional"`
	EntryConditions     []string     `json:"entryConditions,optional"`
	ExitConditions      []string     `json:"exitConditions,optional"`
	RiskControls        RiskControls `json:"riskControls,optional"`
	MinRiskPerTrade     float64      `json:"minRiskPerTrade,optional"`
	MaxRiskPerTrade     float64      `json:"maxRiskPerTrade,optional"`
	ConfidenceThreshold int          `json:"confidenceThreshold,optional"`
}

type UpdateStrategyRequest struct {
	Id string `path:"id"`
	StrategyRequest
}

type ParsedRuleView struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Condition string  `json:"condition,omitempty"`
	Action    string  `json:"action"`
	Priority  int     `json:"priority"`
	Enabled   bool    `json:"enabled"`
}

type StrategyResponse struct {
	Id                  string           `json:"id"`
	Name                string           `json:"name"`
	DescriptionText     string           `json:"descriptionText"`
	Timeframes          []string         `json:"timeframes"`
	Indicators          []string         `json:"indicators"`
	EntryConditions     []string         `json:"entryConditions"`
	ExitConditions      []string         `json:"exitConditions"`
	RiskControls        RiskControls     `json:"riskControls"`
	MinRiskPerTrade     float64          `json:"minRiskPerTrade"`
	MaxRiskPerTrade     float64          `json:"maxRiskPerTrade"`
	ConfidenceThreshold int              `json:"confidenceThreshold"`
	ParsedRules         []ParsedRuleView `json:"parsedRules,omitempty"`
}

type StrategyListResponse struct {
	Strategies []StrategyResponse `json:"strategies"`
}

// --- Bots -------------------------------------------------------------------

type BotRequest struct {
	CredentialId       string `json:"credentialId"`
	StrategyId         string `json:"strategyId"`
	Symbol             string `json:"symbol"`
	Timeframe          string `json:"timeframe"`
	MaxOpenTrades      int    `json:"maxOpenTrades,optional"`
	MinIntervalSeconds int    `json:"minIntervalSeconds,optional"`
}

type UpdateBotRequest struct {
	Id string `path:"id"`
	BotRequest
}

type BotResponse struct {
	Id                 string `json:"id"`
	CredentialId       string `json:"credentialId"`
	StrategyId         string `json:"strategyId"`
	Symbol             string `json:"symbol"`
	Timeframe          string `json:"timeframe"`
	IsActive           bool   `json:"isActive"`
	AiEnabled          bool   `json:"aiEnabled"`
	MaxOpenTrades      int    `json:"maxOpenTrades"`
	MinIntervalSeconds int    `json:"minIntervalSeconds"`
	LastEvalAt         string `json:"lastEvalAt,omitempty"`
	LastTradeAt        string `json:"lastTradeAt,omitempty"`
}

type BotListResponse struct {
	Bots []BotResponse `json:"bots"`
}

type ToggleResponse struct {
	Id      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type RunEvaluationRequest struct {
	Id           string `path:"id"`
	ChartData    string `json:"chartData,optional"`
	PositionData string `json:"positionData,optional"`
}

type TradeParamsView struct {
	Symbol     string   `json:"symbol"`
	Direction  string   `json:"direction"`
	OrderType  string   `json:"orderType,omitempty"`
	Quantity   float64  `json:"quantity"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type EvaluationResponse struct {
	Id          string           `json:"id"`
	BotId       string           `json:"botId"`
	StartedAt   string           `json:"startedAt"`
	ChartRef    string           `json:"chartRef,omitempty"`
	Decision    string           `json:"decision"`
	Confidence  int              `json:"confidence"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	TradeParams *TradeParamsView `json:"tradeParams,omitempty"`
}

type EvaluationListRequest struct {
	Id    string `path:"id"`
	Limit int    `form:"limit,default=20"`
}

type EvaluationListResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
}

// --- Credentials ------------------------------------------------------------

type CredentialRequest struct {
	Name   string            `json:"name"`
	Broker string            `json:"broker"`
	IsDemo bool              `json:"isDemo,optional"`
	Fields map[string]string `json:"fields"`
}

type UpdateCredentialRequest struct {
	Id string `path:"id"`
	CredentialRequest
}

type CredentialResponse struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Broker string `json:"broker"`
	IsDemo bool   `json:"isDemo"`
	// Secrets are never echoed back; only which fields are present.
	FieldNames []string `json:"fieldNames"`
}

type CredentialListResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
}

type VerifyCredentialResponse struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// --- Trading pairs ----------------------------------------------------------

type TradingPairResponse struct {
	Id        string `json:"id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Broker    string `json:"broker"`
	Category  string `json:"category"`
	IsPopular bool   `json:"isPopular"`
}

type TradingPairListResponse struct {
	Pairs []TradingPairResponse `json:"pairs"`
}

type BrokerPath struct {
	Broker string `path:"broker"`
}

type CategoryPath struct {
	Category string `path:"category"`
}

type SearchRequest struct {
	Query string `form:"q"`
	Limit int    `form:"limit,default=50"`
}

package orchestrator

import (
	"context"
	"time"

	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
	"botfleet/pkg/ledger"
	"botfleet/pkg/riskgate"
)

// BotRepo resolves the persistence-layer state an evaluation attempt needs.
// It is the thin collaborator boundary around the ORM: the
// orchestration core depends on this interface, never on internal/repo or
// internal/model directly.
type BotRepo interface {
	LoadBot(ctx context.Context, botID string) (domain.Bot, error)
	LoadStrategy(ctx context.Context, strategyID string) (domain.Strategy, error)
	LoadCredential(ctx context.Context, credentialID string) (broker.CredentialConfig, error)
	MarkEvaluated(ctx context.Context, botID string, at time.Time) error
	MarkTraded(ctx context.Context, botID string, at time.Time) error
	ActiveBotsForCredential(ctx context.Context, credentialID string) ([]domain.Bot, error)
	OpenTradeCountForBot(ctx context.Context, botID string) (int, error)
}

// TradeRepo is the Trade persistence boundary the evaluator and monitor use.
type TradeRepo interface {
	HasOpenOnSymbol(ctx context.Context, botID, symbol string) (bool, error)
	HasPendingOnSymbol(ctx context.Context, botID, symbol string) (bool, error)
	CreateTrade(ctx context.Context, t domain.Trade) error
	UpdateTrade(ctx context.Context, t domain.Trade) error
	OpenTradesForCredential(ctx context.Context, credentialID string) ([]domain.Trade, error)
	// HasPartialFor reports whether a partial-close Trade already exists in
	// brokerDealID's deal-id family, so SCALE_OUT fires at most once per
	// position.
	HasPartialFor(ctx context.Context, brokerDealID string) (bool, error)
	// PendingAndRecentOpen returns PENDING/recently-OPEN trades for
	// credentialID, as ledger.TradeCandidate, for orphan-position
	// attribution.
	PendingAndRecentOpen(ctx context.Context, credentialID string) ([]ledger.TradeCandidate, error)
}

// EvaluationRepo persists the append-only Evaluation record written for
// every evaluation attempt, whether or not a trade followed.
type EvaluationRepo interface {
	SaveEvaluation(ctx context.Context, e domain.Evaluation) error
}

// PortfolioSource supplies the Risk Gate's portfolio-level snapshot
// (balance, exposure, drawdown, consecutive losses); callers typically back
// this with internal/repo.
type PortfolioSource interface {
	Snapshot(ctx context.Context, credentialID string) (riskgate.Portfolio, error)
}

// StrategyRules resolves a strategy's parsed rules, caching pkg/strategy's
// deterministic compilation so a strategy isn't re-parsed on every
// evaluation/monitor tick.
type StrategyRules interface {
	RulesFor(ctx context.Context, strategy domain.Strategy) ([]domain.ParsedRule, error)
}

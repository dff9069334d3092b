// Package repo backs the orchestration core's persistence boundaries
// (pkg/orchestrator's BotRepo/TradeRepo/EvaluationRepo/PortfolioSource/
// StrategyRules) with the goctl-style models in internal/model. The core
// never imports internal/model directly; everything crosses through the
// domain value types.
package repo

import (
	"errors"

	"botfleet/internal/model"
	"botfleet/pkg/crypto"
)

// Repo bundles the models plus the credential crypto box.
type Repo struct {
	Users      model.UsersModel
	Creds      model.CredentialsModel
	Strategies model.StrategiesModel
	Bots       model.BotsModel
	Trades     model.TradesModel
	Evals      model.EvaluationsModel
	Pairs      model.TradingPairsModel
	Ownership  model.PositionOwnershipModel
	Snapshots  model.PerformanceSnapshotsModel

	box   *crypto.Box
	rules *ruleCache
}

// New constructs the repository over the given models. box may not be nil;
// pass a passthrough Box when no encryption key is configured.
func New(models Models, box *crypto.Box) (*Repo, error) {
	if box == nil {
		return nil, errors.New("repo: missing crypto box")
	}
	if models.Bots == nil || models.Trades == nil {
		return nil, errors.New("repo: missing required models")
	}
	return &Repo{
		Users:      models.Users,
		Creds:      models.Creds,
		Strategies: models.Strategies,
		Bots:       models.Bots,
		Trades:     models.Trades,
		Evals:      models.Evals,
		Pairs:      models.Pairs,
		Ownership:  models.Ownership,
		Snapshots:  models.Snapshots,
		box:        box,
		rules:      newRuleCache(),
	}, nil
}

// Models bundles the constructed model set for New.
type Models struct {
	Users      model.UsersModel
	Creds      model.CredentialsModel
	Strategies model.StrategiesModel
	Bots       model.BotsModel
	Trades     model.TradesModel
	Evals      model.EvaluationsModel
	Pairs      model.TradingPairsModel
	Ownership  model.PositionOwnershipModel
	Snapshots  model.PerformanceSnapshotsModel
}

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"botfleet/internal/model"
	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
)

// defaultMinInterval is applied when a bot row carries no explicit floor
// between trades (spec default: 5 minutes).
const defaultMinInterval = 5 * time.Minute

// LoadBot implements orchestrator.BotRepo.
func (r *Repo) LoadBot(ctx context.Context, botID string) (domain.Bot, error) {
	row, err := r.Bots.FindOne(ctx, botID)
	if err != nil {
		return domain.Bot{}, fmt.Errorf("repo: load bot %s: %w", botID, err)
	}
	return botFromRow(row), nil
}

func botFromRow(row *model.Bots) domain.Bot {
	b := domain.Bot{
		ID:                       row.Id,
		UserID:                   row.UserId,
		CredentialID:             row.CredentialId,
		StrategyID:               row.StrategyId,
		Symbol:                   row.Symbol,
		Timeframe:                row.Timeframe,
		IsActive:                 row.IsActive,
		AIEnabled:                row.AiEnabled,
		MaxOpenTrades:            int(row.MaxOpenTrades),
		MinIntervalBetweenTrades: time.Duration(row.MinIntervalSeconds) * time.Second,
	}
	if b.MinIntervalBetweenTrades <= 0 {
		b.MinIntervalBetweenTrades = defaultMinInterval
	}
	if row.LastEvalAt.Valid {
		b.LastEvalAt = row.LastEvalAt.Time
	}
	if row.LastTradeAt.Valid {
		b.LastTradeAt = row.LastTradeAt.Time
	}
	return b
}

// LoadStrategy implements orchestrator.BotRepo.
func (r *Repo) LoadStrategy(ctx context.Context, strategyID string) (domain.Strategy, error) {
	row, err := r.Strategies.FindOne(ctx, strategyID)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("repo: load strategy %s: %w", strategyID, err)
	}
	return domain.Strategy{
		ID:              row.Id,
		UserID:          row.UserId,
		Name:            row.Name,
		DescriptionText: row.DescriptionText,
		Timeframes:      row.Timeframes,
		Indicators:      row.Indicators,
		EntryConditions: row.EntryConditions,
		ExitConditions:  row.ExitConditions,
		RiskControls: domain.RiskControls{
			MaxDrawdown:      row.MaxDrawdown,
			TrailingStopLoss: row.TrailingStopLoss,
			TakeProfitLevel:  row.TakeProfitLevel,
		},
		MinRiskPerTrade:     row.MinRiskPerTrade,
		MaxRiskPerTrade:     row.MaxRiskPerTrade,
		ConfidenceThreshold: int(row.ConfidenceThreshold),
	}, nil
}

// credentialPayload is the decrypted JSON shape stored in the credentials
// payload column. brokerName is accepted as an alias for broker on ingest.
type credentialPayload struct {
	Broker     string            `json:"broker"`
	BrokerName string            `json:"brokerName"`
	APIKey     string            `json:"apiKey"`
	Identifier string            `json:"identifier"`
	Password   string            `json:"password"`
	SecretKey  string            `json:"secretKey"`
	APISecret  string            `json:"apiSecret"`
	Passphrase string            `json:"passphrase"`
	Custom     map[string]string `json:"custom"`
	Demo       bool              `json:"demo"`
}

// LoadCredential implements orchestrator.BotRepo: opens the sealed payload
// and maps it onto the broker-agnostic CredentialConfig.
func (r *Repo) LoadCredential(ctx context.Context, credentialID string) (broker.CredentialConfig, error) {
	row, err := r.Creds.FindOne(ctx, credentialID)
	if err != nil {
		return broker.CredentialConfig{}, fmt.Errorf("repo: load credential %s: %w", credentialID, err)
	}

	plain, err := r.box.Open(row.Payload)
	if err != nil {
		return broker.CredentialConfig{}, fmt.Errorf("repo: open credential %s: %w", credentialID, err)
	}
	var payload credentialPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return broker.CredentialConfig{}, fmt.Errorf("repo: decode credential %s: %w", credentialID, err)
	}

	kind := row.Broker
	if kind == "" {
		kind = payload.Broker
	}
	if kind == "" {
		kind = payload.BrokerName
	}
	return broker.CredentialConfig{
		Kind:       kind,
		APIKey:     payload.APIKey,
		Identifier: payload.Identifier,
		Password:   payload.Password,
		SecretKey:  payload.SecretKey,
		APISecret:  payload.APISecret,
		Passphrase: payload.Passphrase,
		Custom:     payload.Custom,
		Testnet:    row.IsDemo || payload.Demo,
	}, nil
}

// MarkEvaluated implements orchestrator.BotRepo.
func (r *Repo) MarkEvaluated(ctx context.Context, botID string, at time.Time) error {
	return r.Bots.UpdateLastEval(ctx, botID, at)
}

// MarkTraded implements orchestrator.BotRepo.
func (r *Repo) MarkTraded(ctx context.Context, botID string, at time.Time) error {
	return r.Bots.UpdateLastTrade(ctx, botID, at)
}

// ActiveBotsForCredential implements orchestrator.BotRepo.
func (r *Repo) ActiveBotsForCredential(ctx context.Context, credentialID string) ([]domain.Bot, error) {
	rows, err := r.Bots.ActiveByCredential(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("repo: active bots for %s: %w", credentialID, err)
	}
	out := make([]domain.Bot, 0, len(rows))
	for i := range rows {
		out = append(out, botFromRow(&rows[i]))
	}
	return out, nil
}

// AllActiveBots returns every active bot, used by the orchestrator process
// to seed the Scheduler's timer wheel at startup.
func (r *Repo) AllActiveBots(ctx context.Context) ([]domain.Bot, error) {
	rows, err := r.Bots.ActiveAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo: all active bots: %w", err)
	}
	out := make([]domain.Bot, 0, len(rows))
	for i := range rows {
		out = append(out, botFromRow(&rows[i]))
	}
	return out, nil
}

// OpenTradeCountForBot implements orchestrator.BotRepo.
func (r *Repo) OpenTradeCountForBot(ctx context.Context, botID string) (int, error) {
	return r.Trades.OpenCountByBot(ctx, botID)
}

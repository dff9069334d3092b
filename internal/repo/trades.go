package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"botfleet/internal/model"
	"botfleet/pkg/domain"
	"botfleet/pkg/ledger"
)

// recentOpenWindow bounds which OPEN trades remain orphan-attribution
// candidates, matching the ledger's 10-minute recovery window.
const recentOpenWindow = 10 * time.Minute

// HasOpenOnSymbol implements orchestrator.TradeRepo.
func (r *Repo) HasOpenOnSymbol(ctx context.Context, botID, symbol string) (bool, error) {
	n, err := r.Trades.CountOnSymbol(ctx, botID, symbol, string(domain.TradeStatusOpen))
	return n > 0, err
}

// HasPendingOnSymbol implements orchestrator.TradeRepo.
func (r *Repo) HasPendingOnSymbol(ctx context.Context, botID, symbol string) (bool, error) {
	n, err := r.Trades.CountOnSymbol(ctx, botID, symbol, string(domain.TradeStatusPending))
	return n > 0, err
}

// CreateTrade implements orchestrator.TradeRepo.
func (r *Repo) CreateTrade(ctx context.Context, t domain.Trade) error {
	row := tradeToRow(t)
	if err := r.Trades.Insert(ctx, row); err != nil {
		return fmt.Errorf("repo: create trade %s: %w", t.ID, err)
	}
	if r.Ownership != nil && t.BrokerDealID != "" {
		_ = r.Ownership.Record(ctx, &model.PositionOwnership{
			BrokerDealId: t.BrokerDealID,
			BotId:        t.BotID,
			Provenance:   string(domain.ProvenanceDealIDMatch),
			AttributedAt: time.Now(),
		})
	}
	return nil
}

// UpdateTrade implements orchestrator.TradeRepo.
func (r *Repo) UpdateTrade(ctx context.Context, t domain.Trade) error {
	if err := r.Trades.Update(ctx, tradeToRow(t)); err != nil {
		return fmt.Errorf("repo: update trade %s: %w", t.ID, err)
	}
	return nil
}

// OpenTradesForCredential implements orchestrator.TradeRepo.
func (r *Repo) OpenTradesForCredential(ctx context.Context, credentialID string) ([]domain.Trade, error) {
	rows, err := r.Trades.OpenByCredential(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("repo: open trades for %s: %w", credentialID, err)
	}
	out := make([]domain.Trade, 0, len(rows))
	for i := range rows {
		out = append(out, tradeFromRow(&rows[i]))
	}
	return out, nil
}

// PendingAndRecentOpen implements orchestrator.TradeRepo.
func (r *Repo) PendingAndRecentOpen(ctx context.Context, credentialID string) ([]ledger.TradeCandidate, error) {
	rows, err := r.Trades.PendingAndRecentOpen(ctx, credentialID, time.Now().Add(-recentOpenWindow))
	if err != nil {
		return nil, fmt.Errorf("repo: candidates for %s: %w", credentialID, err)
	}
	out := make([]ledger.TradeCandidate, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		created := row.CreatedAt
		if row.OpenedAt.Valid {
			created = row.OpenedAt.Time
		}
		out = append(out, ledger.TradeCandidate{
			BotID:        row.BotId,
			Symbol:       row.Symbol,
			Direction:    domain.Direction(row.Direction),
			Quantity:     row.Quantity,
			Status:       domain.TradeStatus(row.Status),
			CreatedAt:    created,
			BrokerDealID: row.BrokerDealId.String,
		})
	}
	return out, nil
}

// HasPartialFor implements orchestrator.TradeRepo.
func (r *Repo) HasPartialFor(ctx context.Context, brokerDealID string) (bool, error) {
	return r.Trades.HasDealIdPrefix(ctx, brokerDealID+"-part-")
}

func tradeToRow(t domain.Trade) *model.Trades {
	row := &model.Trades{
		Id:           t.ID,
		BotId:        t.BotID,
		CredentialId: t.CredentialID,
		Symbol:       t.Symbol,
		Direction:    string(t.Direction),
		Quantity:     t.Quantity,
		EntryPrice:   t.EntryPrice,
		Status:       string(t.Status),
		Rationale:    t.Rationale,
		AiConfidence: int64(t.AIConfidence),
		CreatedAt:    time.Now(),
	}
	if t.StopLoss != nil {
		row.StopLoss = sql.NullFloat64{Float64: *t.StopLoss, Valid: true}
	}
	if t.TakeProfit != nil {
		row.TakeProfit = sql.NullFloat64{Float64: *t.TakeProfit, Valid: true}
	}
	if t.CurrentPrice != nil {
		row.CurrentPrice = sql.NullFloat64{Float64: *t.CurrentPrice, Valid: true}
	}
	if !t.OpenedAt.IsZero() {
		row.OpenedAt = sql.NullTime{Time: t.OpenedAt, Valid: true}
	}
	if !t.ClosedAt.IsZero() {
		row.ClosedAt = sql.NullTime{Time: t.ClosedAt, Valid: true}
	}
	if t.BrokerDealID != "" {
		row.BrokerDealId = sql.NullString{String: t.BrokerDealID, Valid: true}
	}
	if t.ProfitLoss != nil {
		row.ProfitLoss = sql.NullFloat64{Float64: *t.ProfitLoss, Valid: true}
	}
	if t.EvaluationID != "" {
		row.EvaluationId = sql.NullString{String: t.EvaluationID, Valid: true}
	}
	return row
}

func tradeFromRow(row *model.Trades) domain.Trade {
	t := domain.Trade{
		ID:           row.Id,
		BotID:        row.BotId,
		CredentialID: row.CredentialId,
		Symbol:       row.Symbol,
		Direction:    domain.Direction(row.Direction),
		Quantity:     row.Quantity,
		EntryPrice:   row.EntryPrice,
		Status:       domain.TradeStatus(row.Status),
		Rationale:    row.Rationale,
		AIConfidence: int(row.AiConfidence),
	}
	if row.StopLoss.Valid {
		v := row.StopLoss.Float64
		t.StopLoss = &v
	}
	if row.TakeProfit.Valid {
		v := row.TakeProfit.Float64
		t.TakeProfit = &v
	}
	if row.CurrentPrice.Valid {
		v := row.CurrentPrice.Float64
		t.CurrentPrice = &v
	}
	if row.OpenedAt.Valid {
		t.OpenedAt = row.OpenedAt.Time
	}
	if row.ClosedAt.Valid {
		t.ClosedAt = row.ClosedAt.Time
	}
	if row.BrokerDealId.Valid {
		t.BrokerDealID = row.BrokerDealId.String
	}
	if row.ProfitLoss.Valid {
		v := row.ProfitLoss.Float64
		t.ProfitLoss = &v
	}
	if row.EvaluationId.Valid {
		t.EvaluationID = row.EvaluationId.String
	}
	return t
}

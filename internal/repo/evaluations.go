package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"botfleet/internal/model"
	"botfleet/pkg/domain"
)

// SaveEvaluation implements orchestrator.EvaluationRepo. The table is
// append-only: there is deliberately no update path.
func (r *Repo) SaveEvaluation(ctx context.Context, e domain.Evaluation) error {
	row := &model.Evaluations{
		Id:         e.ID,
		BotId:      e.BotID,
		StartedAt:  e.StartedAt,
		Decision:   string(e.Decision),
		Confidence: int64(e.Confidence),
		Reasoning:  e.Reasoning,
		CreatedAt:  time.Now(),
	}
	if e.ChartRef != "" {
		row.ChartRef = sql.NullString{String: e.ChartRef, Valid: true}
	}
	if e.Reason != "" {
		row.Reason = sql.NullString{String: e.Reason, Valid: true}
	}
	if e.TradeParams != nil {
		raw, err := json.Marshal(e.TradeParams)
		if err != nil {
			return fmt.Errorf("repo: encode trade params: %w", err)
		}
		row.TradeParams = raw
	}
	if err := r.Evals.Insert(ctx, row); err != nil {
		return fmt.Errorf("repo: save evaluation %s: %w", e.ID, err)
	}
	return nil
}

// RecentEvaluations returns the latest evaluations for a bot, newest first,
// mapped back to the domain shape for the HTTP surface.
func (r *Repo) RecentEvaluations(ctx context.Context, botID string, limit int) ([]domain.Evaluation, error) {
	rows, err := r.Evals.RecentByBot(ctx, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: recent evaluations for %s: %w", botID, err)
	}
	out := make([]domain.Evaluation, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		e := domain.Evaluation{
			ID:         row.Id,
			BotID:      row.BotId,
			StartedAt:  row.StartedAt,
			Decision:   domain.EvalDecision(row.Decision),
			Confidence: int(row.Confidence),
			Reasoning:  row.Reasoning,
		}
		if row.ChartRef.Valid {
			e.ChartRef = row.ChartRef.String
		}
		if row.Reason.Valid {
			e.Reason = row.Reason.String
		}
		if len(row.TradeParams) > 0 {
			var tp domain.TradeParams
			if err := json.Unmarshal(row.TradeParams, &tp); err == nil {
				e.TradeParams = &tp
			}
		}
		out = append(out, e)
	}
	return out, nil
}

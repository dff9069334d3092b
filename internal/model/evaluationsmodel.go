package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Evaluations is one row of public.evaluations. The table is append-only;
// TradeParams is a JSON blob present only for EXECUTE_TRADE decisions.
type Evaluations struct {
	Id          string         `db:"id"`
	BotId       string         `db:"bot_id"`
	StartedAt   time.Time      `db:"started_at"`
	ChartRef    sql.NullString `db:"chart_ref"`
	Decision    string         `db:"decision"`
	Confidence  int64          `db:"confidence"`
	Reasoning   string         `db:"reasoning"`
	Reason      sql.NullString `db:"reason"`
	TradeParams []byte         `db:"trade_params"`
	CreatedAt   time.Time      `db:"created_at"`
}

type EvaluationsModel interface {
	Insert(ctx context.Context, data *Evaluations) error
	RecentByBot(ctx context.Context, botID string, limit int) ([]Evaluations, error)
}

type defaultEvaluationsModel struct {
	conn sqlx.SqlConn
}

func NewEvaluationsModel(conn sqlx.SqlConn) EvaluationsModel {
	return &defaultEvaluationsModel{conn: conn}
}

const evaluationsColumns = `id, bot_id, started_at, chart_ref, decision, confidence, reasoning, reason, trade_params, created_at`

func (m *defaultEvaluationsModel) Insert(ctx context.Context, data *Evaluations) error {
	query := `INSERT INTO public.evaluations (` + evaluationsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.BotId, data.StartedAt, data.ChartRef, data.Decision,
		data.Confidence, data.Reasoning, data.Reason, data.TradeParams, data.CreatedAt)
	if err != nil {
		return fmt.Errorf("evaluations.Insert: %w", err)
	}
	return nil
}

func (m *defaultEvaluationsModel) RecentByBot(ctx context.Context, botID string, limit int) ([]Evaluations, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + evaluationsColumns + ` FROM public.evaluations
WHERE bot_id = $1 ORDER BY started_at DESC LIMIT $2`
	var rows []Evaluations
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, botID, limit); err != nil {
		return nil, fmt.Errorf("evaluations.RecentByBot: %w", err)
	}
	return rows, nil
}

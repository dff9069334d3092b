package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Trades is one row of public.trades.
type Trades struct {
	Id           string          `db:"id"`
	BotId        string          `db:"bot_id"`
	CredentialId string          `db:"credential_id"`
	Symbol       string          `db:"symbol"`
	Direction    string          `db:"direction"`
	Quantity     float64         `db:"quantity"`
	EntryPrice   float64         `db:"entry_price"`
	StopLoss     sql.NullFloat64 `db:"stop_loss"`
	TakeProfit   sql.NullFloat64 `db:"take_profit"`
	CurrentPrice sql.NullFloat64 `db:"current_price"`
	Status       string          `db:"status"`
	OpenedAt     sql.NullTime    `db:"opened_at"`
	ClosedAt     sql.NullTime    `db:"closed_at"`
	BrokerDealId sql.NullString  `db:"broker_deal_id"`
	ProfitLoss   sql.NullFloat64 `db:"profit_loss"`
	Rationale    string          `db:"rationale"`
	AiConfidence int64           `db:"ai_confidence"`
	EvaluationId sql.NullString  `db:"evaluation_id"`
	CreatedAt    time.Time       `db:"created_at"`
}

type TradesModel interface {
	Insert(ctx context.Context, data *Trades) error
	FindOne(ctx context.Context, id string) (*Trades, error)
	Update(ctx context.Context, data *Trades) error
	OpenByCredential(ctx context.Context, credentialID string) ([]Trades, error)
	OpenCountByBot(ctx context.Context, botID string) (int, error)
	CountOnSymbol(ctx context.Context, botID, symbol, status string) (int, error)
	PendingAndRecentOpen(ctx context.Context, credentialID string, since time.Time) ([]Trades, error)
	HasDealIdPrefix(ctx context.Context, prefix string) (bool, error)
	RecentByBot(ctx context.Context, botID string, limit int) ([]Trades, error)
	ClosedSince(ctx context.Context, credentialID string, since time.Time) ([]Trades, error)
}

type defaultTradesModel struct {
	conn sqlx.SqlConn
}

func NewTradesModel(conn sqlx.SqlConn) TradesModel {
	return &defaultTradesModel{conn: conn}
}

const tradesColumns = `id, bot_id, credential_id, symbol, direction, quantity, entry_price,
stop_loss, take_profit, current_price, status, opened_at, closed_at, broker_deal_id,
profit_loss, rationale, ai_confidence, evaluation_id, created_at`

func (m *defaultTradesModel) Insert(ctx context.Context, data *Trades) error {
	query := `INSERT INTO public.trades (` + tradesColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.BotId, data.CredentialId, data.Symbol, data.Direction,
		data.Quantity, data.EntryPrice, data.StopLoss, data.TakeProfit,
		data.CurrentPrice, data.Status, data.OpenedAt, data.ClosedAt,
		data.BrokerDealId, data.ProfitLoss, data.Rationale, data.AiConfidence,
		data.EvaluationId, data.CreatedAt)
	if err != nil {
		return fmt.Errorf("trades.Insert: %w", err)
	}
	return nil
}

func (m *defaultTradesModel) FindOne(ctx context.Context, id string) (*Trades, error) {
	query := `SELECT ` + tradesColumns + ` FROM public.trades WHERE id = $1 LIMIT 1`
	var row Trades
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("trades.FindOne: %w", err)
	}
}

func (m *defaultTradesModel) Update(ctx context.Context, data *Trades) error {
	query := `UPDATE public.trades
SET quantity = $2, stop_loss = $3, take_profit = $4, current_price = $5,
    status = $6, opened_at = $7, closed_at = $8, broker_deal_id = $9,
    profit_loss = $10, rationale = $11
WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.Quantity, data.StopLoss, data.TakeProfit, data.CurrentPrice,
		data.Status, data.OpenedAt, data.ClosedAt, data.BrokerDealId,
		data.ProfitLoss, data.Rationale)
	if err != nil {
		return fmt.Errorf("trades.Update: %w", err)
	}
	return nil
}

func (m *defaultTradesModel) OpenByCredential(ctx context.Context, credentialID string) ([]Trades, error) {
	query := `SELECT ` + tradesColumns + ` FROM public.trades
WHERE credential_id = $1 AND status = 'OPEN' ORDER BY opened_at`
	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, credentialID); err != nil {
		return nil, fmt.Errorf("trades.OpenByCredential: %w", err)
	}
	return rows, nil
}

func (m *defaultTradesModel) OpenCountByBot(ctx context.Context, botID string) (int, error) {
	var count int
	err := m.conn.QueryRowCtx(ctx, &count,
		`SELECT COUNT(*) FROM public.trades WHERE bot_id = $1 AND status = 'OPEN'`, botID)
	if err != nil {
		return 0, fmt.Errorf("trades.OpenCountByBot: %w", err)
	}
	return count, nil
}

func (m *defaultTradesModel) CountOnSymbol(ctx context.Context, botID, symbol, status string) (int, error) {
	var count int
	err := m.conn.QueryRowCtx(ctx, &count,
		`SELECT COUNT(*) FROM public.trades WHERE bot_id = $1 AND symbol = $2 AND status = $3`,
		botID, symbol, status)
	if err != nil {
		return 0, fmt.Errorf("trades.CountOnSymbol: %w", err)
	}
	return count, nil
}

func (m *defaultTradesModel) PendingAndRecentOpen(ctx context.Context, credentialID string, since time.Time) ([]Trades, error) {
	query := `SELECT ` + tradesColumns + ` FROM public.trades
WHERE credential_id = $1
  AND (status = 'PENDING' OR (status = 'OPEN' AND opened_at >= $2))
ORDER BY created_at DESC`
	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, credentialID, since); err != nil {
		return nil, fmt.Errorf("trades.PendingAndRecentOpen: %w", err)
	}
	return rows, nil
}

func (m *defaultTradesModel) HasDealIdPrefix(ctx context.Context, prefix string) (bool, error) {
	var count int
	err := m.conn.QueryRowCtx(ctx, &count,
		`SELECT COUNT(*) FROM public.trades WHERE broker_deal_id LIKE $1`, prefix+"%")
	if err != nil {
		return false, fmt.Errorf("trades.HasDealIdPrefix: %w", err)
	}
	return count > 0, nil
}

func (m *defaultTradesModel) RecentByBot(ctx context.Context, botID string, limit int) ([]Trades, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + tradesColumns + ` FROM public.trades
WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2`
	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, botID, limit); err != nil {
		return nil, fmt.Errorf("trades.RecentByBot: %w", err)
	}
	return rows, nil
}

func (m *defaultTradesModel) ClosedSince(ctx context.Context, credentialID string, since time.Time) ([]Trades, error) {
	query := `SELECT ` + tradesColumns + ` FROM public.trades
WHERE credential_id = $1 AND status = 'CLOSED' AND closed_at >= $2
ORDER BY closed_at DESC`
	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, credentialID, since); err != nil {
		return nil, fmt.Errorf("trades.ClosedSince: %w", err)
	}
	return rows, nil
}

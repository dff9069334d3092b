package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Bots is one row of public.bots. MinIntervalSeconds is the floor between
// two trades by the same bot, stored in seconds.
type Bots struct {
	Id                 string       `db:"id"`
	UserId             string       `db:"user_id"`
	CredentialId       string       `db:"credential_id"`
	StrategyId         string       `db:"strategy_id"`
	Symbol             string       `db:"symbol"`
	Timeframe          string       `db:"timeframe"`
	IsActive           bool         `db:"is_active"`
	AiEnabled          bool         `db:"ai_enabled"`
	MaxOpenTrades      int64        `db:"max_open_trades"`
	MinIntervalSeconds int64        `db:"min_interval_seconds"`
	LastEvalAt         sql.NullTime `db:"last_eval_at"`
	LastTradeAt        sql.NullTime `db:"last_trade_at"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

type BotsModel interface {
	Insert(ctx context.Context, data *Bots) error
	FindOne(ctx context.Context, id string) (*Bots, error)
	Update(ctx context.Context, data *Bots) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]Bots, error)
	ActiveByCredential(ctx context.Context, credentialID string) ([]Bots, error)
	ActiveAll(ctx context.Context) ([]Bots, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetAiEnabled(ctx context.Context, id string, enabled bool) error
	UpdateLastEval(ctx context.Context, id string, at time.Time) error
	UpdateLastTrade(ctx context.Context, id string, at time.Time) error
}

type defaultBotsModel struct {
	conn sqlx.SqlConn
}

func NewBotsModel(conn sqlx.SqlConn) BotsModel {
	return &defaultBotsModel{conn: conn}
}

const botsColumns = `id, user_id, credential_id, strategy_id, symbol, timeframe, is_active,
ai_enabled, max_open_trades, min_interval_seconds, last_eval_at, last_trade_at, created_at, updated_at`

func (m *defaultBotsModel) Insert(ctx context.Context, data *Bots) error {
	query := `INSERT INTO public.bots (` + botsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.UserId, data.CredentialId, data.StrategyId, data.Symbol,
		data.Timeframe, data.IsActive, data.AiEnabled, data.MaxOpenTrades,
		data.MinIntervalSeconds, data.LastEvalAt, data.LastTradeAt,
		data.CreatedAt, data.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bots.Insert: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) FindOne(ctx context.Context, id string) (*Bots, error) {
	query := `SELECT ` + botsColumns + ` FROM public.bots WHERE id = $1 LIMIT 1`
	var row Bots
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("bots.FindOne: %w", err)
	}
}

func (m *defaultBotsModel) Update(ctx context.Context, data *Bots) error {
	query := `UPDATE public.bots
SET credential_id = $2, strategy_id = $3, symbol = $4, timeframe = $5,
    is_active = $6, ai_enabled = $7, max_open_trades = $8,
    min_interval_seconds = $9, updated_at = $10
WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.CredentialId, data.StrategyId, data.Symbol, data.Timeframe,
		data.IsActive, data.AiEnabled, data.MaxOpenTrades, data.MinIntervalSeconds, time.Now())
	if err != nil {
		return fmt.Errorf("bots.Update: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) Delete(ctx context.Context, id string) error {
	_, err := m.conn.ExecCtx(ctx, `DELETE FROM public.bots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bots.Delete: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) ListByUser(ctx context.Context, userID string) ([]Bots, error) {
	query := `SELECT ` + botsColumns + ` FROM public.bots WHERE user_id = $1 ORDER BY created_at`
	var rows []Bots
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("bots.ListByUser: %w", err)
	}
	return rows, nil
}

func (m *defaultBotsModel) ActiveByCredential(ctx context.Context, credentialID string) ([]Bots, error) {
	query := `SELECT ` + botsColumns + ` FROM public.bots WHERE credential_id = $1 AND is_active ORDER BY created_at`
	var rows []Bots
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, credentialID); err != nil {
		return nil, fmt.Errorf("bots.ActiveByCredential: %w", err)
	}
	return rows, nil
}

func (m *defaultBotsModel) ActiveAll(ctx context.Context) ([]Bots, error) {
	query := `SELECT ` + botsColumns + ` FROM public.bots WHERE is_active ORDER BY created_at`
	var rows []Bots
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("bots.ActiveAll: %w", err)
	}
	return rows, nil
}

func (m *defaultBotsModel) SetActive(ctx context.Context, id string, active bool) error {
	_, err := m.conn.ExecCtx(ctx, `UPDATE public.bots SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, time.Now())
	if err != nil {
		return fmt.Errorf("bots.SetActive: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) SetAiEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := m.conn.ExecCtx(ctx, `UPDATE public.bots SET ai_enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("bots.SetAiEnabled: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) UpdateLastEval(ctx context.Context, id string, at time.Time) error {
	_, err := m.conn.ExecCtx(ctx, `UPDATE public.bots SET last_eval_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("bots.UpdateLastEval: %w", err)
	}
	return nil
}

func (m *defaultBotsModel) UpdateLastTrade(ctx context.Context, id string, at time.Time) error {
	_, err := m.conn.ExecCtx(ctx, `UPDATE public.bots SET last_trade_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("bots.UpdateLastTrade: %w", err)
	}
	return nil
}

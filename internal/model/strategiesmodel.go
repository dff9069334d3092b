package model

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Strategies is one row of public.strategies. The array columns use
// Postgres text[]; DescriptionText is the free prose the rule parser
// compiles.
type Strategies struct {
	Id                  string         `db:"id"`
	UserId              string         `db:"user_id"`
	Name                string         `db:"name"`
	DescriptionText     string         `db:"description_text"`
	Timeframes          pq.StringArray `db:"timeframes"`
	Indicators          pq.StringArray `db:"indicators"`
	EntryConditions     pq.StringArray `db:"entry_conditions"`
	ExitConditions      pq.StringArray `db:"exit_conditions"`
	MaxDrawdown         float64        `db:"max_drawdown"`
	TrailingStopLoss    float64        `db:"trailing_stop_loss"`
	TakeProfitLevel     float64        `db:"take_profit_level"`
	MinRiskPerTrade     float64        `db:"min_risk_per_trade"`
	MaxRiskPerTrade     float64        `db:"max_risk_per_trade"`
	ConfidenceThreshold int64          `db:"confidence_threshold"`
	RulesVersion        int64          `db:"rules_version"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

type StrategiesModel interface {
	Insert(ctx context.Context, data *Strategies) error
	FindOne(ctx context.Context, id string) (*Strategies, error)
	Update(ctx context.Context, data *Strategies) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]Strategies, error)
}

type defaultStrategiesModel struct {
	conn sqlx.SqlConn
}

func NewStrategiesModel(conn sqlx.SqlConn) StrategiesModel {
	return &defaultStrategiesModel{conn: conn}
}

const strategiesColumns = `id, user_id, name, description_text, timeframes, indicators,
entry_conditions, exit_conditions, max_drawdown, trailing_stop_loss, take_profit_level,
min_risk_per_trade, max_risk_per_trade, confidence_threshold, rules_version, created_at, updated_at`

func (m *defaultStrategiesModel) Insert(ctx context.Context, data *Strategies) error {
	query := `INSERT INTO public.strategies (` + strategiesColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.UserId, data.Name, data.DescriptionText,
		data.Timeframes, data.Indicators, data.EntryConditions, data.ExitConditions,
		data.MaxDrawdown, data.TrailingStopLoss, data.TakeProfitLevel,
		data.MinRiskPerTrade, data.MaxRiskPerTrade, data.ConfidenceThreshold,
		data.RulesVersion, data.CreatedAt, data.UpdatedAt)
	if err != nil {
		return fmt.Errorf("strategies.Insert: %w", err)
	}
	return nil
}

func (m *defaultStrategiesModel) FindOne(ctx context.Context, id string) (*Strategies, error) {
	query := `SELECT ` + strategiesColumns + ` FROM public.strategies WHERE id = $1 LIMIT 1`
	var row Strategies
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("strategies.FindOne: %w", err)
	}
}

func (m *defaultStrategiesModel) Update(ctx context.Context, data *Strategies) error {
	query := `UPDATE public.strategies
SET name = $2, description_text = $3, timeframes = $4, indicators = $5,
    entry_conditions = $6, exit_conditions = $7, max_drawdown = $8,
    trailing_stop_loss = $9, take_profit_level = $10, min_risk_per_trade = $11,
    max_risk_per_trade = $12, confidence_threshold = $13, rules_version = $14, updated_at = $15
WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.Name, data.DescriptionText, data.Timeframes, data.Indicators,
		data.EntryConditions, data.ExitConditions, data.MaxDrawdown,
		data.TrailingStopLoss, data.TakeProfitLevel, data.MinRiskPerTrade,
		data.MaxRiskPerTrade, data.ConfidenceThreshold, data.RulesVersion, time.Now())
	if err != nil {
		return fmt.Errorf("strategies.Update: %w", err)
	}
	return nil
}

func (m *defaultStrategiesModel) Delete(ctx context.Context, id string) error {
	_, err := m.conn.ExecCtx(ctx, `DELETE FROM public.strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("strategies.Delete: %w", err)
	}
	return nil
}

func (m *defaultStrategiesModel) ListByUser(ctx context.Context, userID string) ([]Strategies, error) {
	query := `SELECT ` + strategiesColumns + ` FROM public.strategies WHERE user_id = $1 ORDER BY created_at`
	var rows []Strategies
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("strategies.ListByUser: %w", err)
	}
	return rows, nil
}

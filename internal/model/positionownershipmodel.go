package model

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// PositionOwnership is the persisted ownership log backing pkg/ledger: each
// row binds one broker deal id to the bot that owns it, with provenance.
// broker_deal_id is the primary key; the ON CONFLICT DO NOTHING insert
// preserves the "at most one owner forever" invariant at the database level
// too.
type PositionOwnership struct {
	BrokerDealId string    `db:"broker_deal_id"`
	BotId        string    `db:"bot_id"`
	Provenance   string    `db:"provenance"`
	AttributedAt time.Time `db:"attributed_at"`
}

type PositionOwnershipModel interface {
	Record(ctx context.Context, data *PositionOwnership) error
	FindByDeal(ctx context.Context, brokerDealID string) (*PositionOwnership, error)
	ListByCredentialBots(ctx context.Context, botIDs []string) ([]PositionOwnership, error)
}

type defaultPositionOwnershipModel struct {
	conn sqlx.SqlConn
}

func NewPositionOwnershipModel(conn sqlx.SqlConn) PositionOwnershipModel {
	return &defaultPositionOwnershipModel{conn: conn}
}

const positionOwnershipColumns = `broker_deal_id, bot_id, provenance, attributed_at`

func (m *defaultPositionOwnershipModel) Record(ctx context.Context, data *PositionOwnership) error {
	query := `INSERT INTO public.position_ownership (` + positionOwnershipColumns + `)
VALUES ($1, $2, $3, $4)
ON CONFLICT (broker_deal_id) DO NOTHING`
	_, err := m.conn.ExecCtx(ctx, query, data.BrokerDealId, data.BotId, data.Provenance, data.AttributedAt)
	if err != nil {
		return fmt.Errorf("positionownership.Record: %w", err)
	}
	return nil
}

func (m *defaultPositionOwnershipModel) FindByDeal(ctx context.Context, brokerDealID string) (*PositionOwnership, error) {
	query := `SELECT ` + positionOwnershipColumns + ` FROM public.position_ownership WHERE broker_deal_id = $1 LIMIT 1`
	var row PositionOwnership
	err := m.conn.QueryRowCtx(ctx, &row, query, brokerDealID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("positionownership.FindByDeal: %w", err)
	}
}

func (m *defaultPositionOwnershipModel) ListByCredentialBots(ctx context.Context, botIDs []string) ([]PositionOwnership, error) {
	if len(botIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + positionOwnershipColumns + ` FROM public.position_ownership WHERE bot_id = ANY($1)`
	var rows []PositionOwnership
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, pq.Array(botIDs)); err != nil {
		return nil, fmt.Errorf("positionownership.ListByCredentialBots: %w", err)
	}
	return rows, nil
}

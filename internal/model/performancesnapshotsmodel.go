package model

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// PerformanceSnapshots is one row of public.performance_snapshots: a
// periodic mark of a credential's account state, feeding the Risk Gate's
// drawdown and daily-loss checks.
type PerformanceSnapshots struct {
	Id            string    `db:"id"`
	UserId        string    `db:"user_id"`
	CredentialId  string    `db:"credential_id"`
	TakenAt       time.Time `db:"taken_at"`
	Balance       float64   `db:"balance"`
	Equity        float64   `db:"equity"`
	OpenPositions int64     `db:"open_positions"`
	DailyPnl      float64   `db:"daily_pnl"`
	DrawdownPct   float64   `db:"drawdown_pct"`
}

type PerformanceSnapshotsModel interface {
	Insert(ctx context.Context, data *PerformanceSnapshots) error
	LatestByCredential(ctx context.Context, credentialID string) (*PerformanceSnapshots, error)
}

type defaultPerformanceSnapshotsModel struct {
	conn sqlx.SqlConn
}

func NewPerformanceSnapshotsModel(conn sqlx.SqlConn) PerformanceSnapshotsModel {
	return &defaultPerformanceSnapshotsModel{conn: conn}
}

const performanceSnapshotsColumns = `id, user_id, credential_id, taken_at, balance, equity, open_positions, daily_pnl, drawdown_pct`

func (m *defaultPerformanceSnapshotsModel) Insert(ctx context.Context, data *PerformanceSnapshots) error {
	query := `INSERT INTO public.performance_snapshots (` + performanceSnapshotsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.UserId, data.CredentialId, data.TakenAt, data.Balance,
		data.Equity, data.OpenPositions, data.DailyPnl, data.DrawdownPct)
	if err != nil {
		return fmt.Errorf("performancesnapshots.Insert: %w", err)
	}
	return nil
}

func (m *defaultPerformanceSnapshotsModel) LatestByCredential(ctx context.Context, credentialID string) (*PerformanceSnapshots, error) {
	query := `SELECT ` + performanceSnapshotsColumns + ` FROM public.performance_snapshots
WHERE credential_id = $1 ORDER BY taken_at DESC LIMIT 1`
	var row PerformanceSnapshots
	err := m.conn.QueryRowCtx(ctx, &row, query, credentialID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("performancesnapshots.LatestByCredential: %w", err)
	}
}

package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// TradingPairs is one row of public.trading_pairs.
type TradingPairs struct {
	Id        string `db:"id"`
	Symbol    string `db:"symbol"`
	Name      string `db:"name"`
	Broker    string `db:"broker"`
	Category  string `db:"category"`
	IsPopular bool   `db:"is_popular"`
}

type TradingPairsModel interface {
	List(ctx context.Context) ([]TradingPairs, error)
	ByBroker(ctx context.Context, broker string) ([]TradingPairs, error)
	Search(ctx context.Context, query string, limit int) ([]TradingPairs, error)
	ByCategory(ctx context.Context, category string) ([]TradingPairs, error)
	Popular(ctx context.Context) ([]TradingPairs, error)
}

type defaultTradingPairsModel struct {
	conn sqlx.SqlConn
}

func NewTradingPairsModel(conn sqlx.SqlConn) TradingPairsModel {
	return &defaultTradingPairsModel{conn: conn}
}

const tradingPairsColumns = `id, symbol, name, broker, category, is_popular`

func (m *defaultTradingPairsModel) List(ctx context.Context) ([]TradingPairs, error) {
	var rows []TradingPairs
	query := `SELECT ` + tradingPairsColumns + ` FROM public.trading_pairs ORDER BY symbol`
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("tradingpairs.List: %w", err)
	}
	return rows, nil
}

func (m *defaultTradingPairsModel) ByBroker(ctx context.Context, broker string) ([]TradingPairs, error) {
	var rows []TradingPairs
	query := `SELECT ` + tradingPairsColumns + ` FROM public.trading_pairs WHERE broker = $1 ORDER BY symbol`
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, broker); err != nil {
		return nil, fmt.Errorf("tradingpairs.ByBroker: %w", err)
	}
	return rows, nil
}

func (m *defaultTradingPairsModel) Search(ctx context.Context, query string, limit int) ([]TradingPairs, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []TradingPairs
	stmt := `SELECT ` + tradingPairsColumns + ` FROM public.trading_pairs
WHERE symbol ILIKE $1 OR name ILIKE $1 ORDER BY symbol LIMIT $2`
	if err := m.conn.QueryRowsCtx(ctx, &rows, stmt, "%"+query+"%", limit); err != nil {
		return nil, fmt.Errorf("tradingpairs.Search: %w", err)
	}
	return rows, nil
}

func (m *defaultTradingPairsModel) ByCategory(ctx context.Context, category string) ([]TradingPairs, error) {
	var rows []TradingPairs
	query := `SELECT ` + tradingPairsColumns + ` FROM public.trading_pairs WHERE category = $1 ORDER BY symbol`
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, category); err != nil {
		return nil, fmt.Errorf("tradingpairs.ByCategory: %w", err)
	}
	return rows, nil
}

func (m *defaultTradingPairsModel) Popular(ctx context.Context) ([]TradingPairs, error) {
	var rows []TradingPairs
	query := `SELECT ` + tradingPairsColumns + ` FROM public.trading_pairs WHERE is_popular ORDER BY symbol`
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("tradingpairs.Popular: %w", err)
	}
	return rows, nil
}

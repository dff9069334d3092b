package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/internal/model"
	"botfleet/internal/svc"
	"botfleet/internal/types"
)

type TradingPairLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewTradingPairLogic(ctx context.Context, svcCtx *svc.ServiceContext) *TradingPairLogic {
	return &TradingPairLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *TradingPairLogic) List() (*types.TradingPairListResponse, error) {
	rows, err := l.svcCtx.Repo.Pairs.List(l.ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return pairList(rows), nil
}

func (l *TradingPairLogic) ByBroker(broker string) (*types.TradingPairListResponse, error) {
	rows, err := l.svcCtx.Repo.Pairs.ByBroker(l.ctx, strings.ToLower(broker))
	if err != nil {
		return nil, mapError(err)
	}
	return pairList(rows), nil
}

// Search requires at least two characters of query.
func (l *TradingPairLogic) Search(req *types.SearchRequest) (*types.TradingPairListResponse, error) {
	query := strings.TrimSpace(req.Query)
	if len(query) < 2 {
		return nil, errBadRequest("query must be at least 2 characters")
	}
	rows, err := l.svcCtx.Repo.Pairs.Search(l.ctx, query, req.Limit)
	if err != nil {
		return nil, mapError(err)
	}
	return pairList(rows), nil
}

func (l *TradingPairLogic) ByCategory(category string) (*types.TradingPairListResponse, error) {
	rows, err := l.svcCtx.Repo.Pairs.ByCategory(l.ctx, strings.ToLower(category))
	if err != nil {
		return nil, mapError(err)
	}
	return pairList(rows), nil
}

func (l *TradingPairLogic) Popular() (*types.TradingPairListResponse, error) {
	rows, err := l.svcCtx.Repo.Pairs.Popular(l.ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return pairList(rows), nil
}

func pairList(rows []model.TradingPairs) *types.TradingPairListResponse {
	out := &types.TradingPairListResponse{Pairs: make([]types.TradingPairResponse, 0, len(rows))}
	for i := range rows {
		row := &rows[i]
		out.Pairs = append(out.Pairs, types.TradingPairResponse{
			Id:        row.Id,
			Symbol:    row.Symbol,
			Name:      row.Name,
			Broker:    row.Broker,
			Category:  row.Category,
			IsPopular: row.IsPopular,
		})
	}
	return out
}

package logic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/internal/model"
	"botfleet/internal/svc"
	"botfleet/internal/types"
	"botfleet/pkg/strategy"
)

type StrategyLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewStrategyLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StrategyLogic {
	return &StrategyLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *StrategyLogic) Create(userID string, req *types.StrategyRequest) (*types.StrategyResponse, error) {
	if req.Name == "" {
		return nil, errBadRequest("name is required")
	}

	row := strategyRowFromRequest(userID, req)
	row.Id = uuid.NewString()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt

	if _, err := l.parseRules(row); err != nil {
		return nil, err
	}
	if err := l.svcCtx.Repo.Strategies.Insert(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	return l.respond(row)
}

func (l *StrategyLogic) Get(userID, id string) (*types.StrategyResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	return l.respond(row)
}

func (l *StrategyLogic) List(userID string) (*types.StrategyListResponse, error) {
	rows, err := l.svcCtx.Repo.Strategies.ListByUser(l.ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := &types.StrategyListResponse{Strategies: make([]types.StrategyResponse, 0, len(rows))}
	for i := range rows {
		resp, err := l.respond(&rows[i])
		if err != nil {
			return nil, err
		}
		out.Strategies = append(out.Strategies, *resp)
	}
	return out, nil
}

func (l *StrategyLogic) Update(userID string, req *types.UpdateStrategyRequest) (*types.StrategyResponse, error) {
	existing, err := l.owned(userID, req.Id)
	if err != nil {
		return nil, err
	}

	row := strategyRowFromRequest(userID, &req.StrategyRequest)
	row.Id = existing.Id
	row.CreatedAt = existing.CreatedAt
	if _, err := l.parseRules(row); err != nil {
		return nil, err
	}
	if err := l.svcCtx.Repo.Strategies.Update(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	return l.respond(row)
}

func (l *StrategyLogic) Delete(userID, id string) error {
	if _, err := l.owned(userID, id); err != nil {
		return err
	}
	return mapError(l.svcCtx.Repo.Strategies.Delete(l.ctx, id))
}

// Duplicate copies a strategy under a new id, re-parsing descriptionText so
// the copy carries rules from the current parser version.
func (l *StrategyLogic) Duplicate(userID, id string) (*types.StrategyResponse, error) {
	existing, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}

	clone := *existing
	clone.Id = uuid.NewString()
	clone.Name = existing.Name + " (copy)"
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	if _, err := l.parseRules(&clone); err != nil {
		return nil, err
	}
	if err := l.svcCtx.Repo.Strategies.Insert(l.ctx, &clone); err != nil {
		return nil, mapError(err)
	}
	return l.respond(&clone)
}

func (l *StrategyLogic) owned(userID, id string) (*model.Strategies, error) {
	row, err := l.svcCtx.Repo.Strategies.FindOne(l.ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if row.UserId != userID {
		return nil, errNotFound("strategy not found")
	}
	return row, nil
}

// parseRules validates the description compiles and stamps the parser
// version onto the row.
func (l *StrategyLogic) parseRules(row *model.Strategies) ([]types.ParsedRuleView, error) {
	timeframe := ""
	if len(row.Timeframes) > 0 {
		timeframe = row.Timeframes[0]
	}
	rules, _, err := strategy.Parse(row.DescriptionText, timeframe)
	if err != nil {
		return nil, errBadRequest(err.Error())
	}
	row.RulesVersion = strategy.Version

	views := make([]types.ParsedRuleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, types.ParsedRuleView{
			Type:      string(r.Type),
			Value:     r.Trigger.Value,
			Unit:      string(r.Trigger.Unit),
			Condition: r.Trigger.Condition,
			Action:    string(r.Action),
			Priority:  r.Priority,
			Enabled:   r.Enabled,
		})
	}
	return views, nil
}

func (l *StrategyLogic) respond(row *model.Strategies) (*types.StrategyResponse, error) {
	views, err := l.parseRules(row)
	if err != nil {
		return nil, err
	}
	return &types.StrategyResponse{
		Id:              row.Id,
		Name:            row.Name,
		DescriptionText: row.DescriptionText,
		Timeframes:      row.Timeframes,
		Indicators:      row.Indicators,
		EntryConditions: row.EntryConditions,
		ExitConditions:  row.ExitConditions,
		RiskControls: types.RiskControls{
			MaxDrawdown:      row.MaxDrawdown,
			TrailingStopLoss: row.TrailingStopLoss,
			TakeProfitLevel:  row.TakeProfitLevel,
		},
		MinRiskPerTrade:     row.MinRiskPerTrade,
		MaxRiskPerTrade:     row.MaxRiskPerTrade,
		ConfidenceThreshold: int(row.ConfidenceThreshold),
		ParsedRules:         views,
	}, nil
}

func strategyRowFromRequest(userID string, req *types.StrategyRequest) *model.Strategies {
	return &model.Strategies{
		UserId:              userID,
		Name:                req.Name,
		DescriptionText:     req.DescriptionText,
		Timeframes:          req.Timeframes,
		Indicators:          req.Indicators,
		EntryConditions:     req.EntryConditions,
		ExitConditions:      req.ExitConditions,
		MaxDrawdown:         req.RiskControls.MaxDrawdown,
		TrailingStopLoss:    req.RiskControls.TrailingStopLoss,
		TakeProfitLevel:     req.RiskControls.TakeProfitLevel,
		MinRiskPerTrade:     req.MinRiskPerTrade,
		MaxRiskPerTrade:     req.MaxRiskPerTrade,
		ConfidenceThreshold: int64(req.ConfidenceThreshold),
		UpdatedAt:           time.Now(),
	}
}

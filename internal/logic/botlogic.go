package logic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/internal/model"
	"botfleet/internal/svc"
	"botfleet/internal/types"
	"botfleet/pkg/domain"
	"botfleet/pkg/strategy"
)

type BotLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewBotLogic(ctx context.Context, svcCtx *svc.ServiceContext) *BotLogic {
	return &BotLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *BotLogic) Create(userID string, req *types.BotRequest) (*types.BotResponse, error) {
	if req.CredentialId == "" || req.StrategyId == "" || req.Symbol == "" {
		return nil, errBadRequest("credentialId, strategyId and symbol are required")
	}
	if _, ok := strategy.CandleMinutes(req.Timeframe); !ok {
		return nil, errBadRequest("unrecognised timeframe " + req.Timeframe)
	}
	if cred, err := l.svcCtx.Repo.Creds.FindOne(l.ctx, req.CredentialId); err != nil || cred.UserId != userID {
		return nil, errNotFound("credential not found")
	}
	if strat, err := l.svcCtx.Repo.Strategies.FindOne(l.ctx, req.StrategyId); err != nil || strat.UserId != userID {
		return nil, errNotFound("strategy not found")
	}

	row := &model.Bots{
		Id:                 uuid.NewString(),
		UserId:             userID,
		CredentialId:       req.CredentialId,
		StrategyId:         req.StrategyId,
		Symbol:             req.Symbol,
		Timeframe:          req.Timeframe,
		IsActive:           false,
		AiEnabled:          false,
		MaxOpenTrades:      int64(orDefault(req.MaxOpenTrades, 1)),
		MinIntervalSeconds: int64(orDefault(req.MinIntervalSeconds, 300)),
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := l.svcCtx.Repo.Bots.Insert(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	return botResponse(row), nil
}

func (l *BotLogic) Get(userID, id string) (*types.BotResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	return botResponse(row), nil
}

func (l *BotLogic) List(userID string) (*types.BotListResponse, error) {
	rows, err := l.svcCtx.Repo.Bots.ListByUser(l.ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := &types.BotListResponse{Bots: make([]types.BotResponse, 0, len(rows))}
	for i := range rows {
		out.Bots = append(out.Bots, *botResponse(&rows[i]))
	}
	return out, nil
}

func (l *BotLogic) Update(userID string, req *types.UpdateBotRequest) (*types.BotResponse, error) {
	row, err := l.owned(userID, req.Id)
	if err != nil {
		return nil, err
	}
	if req.Timeframe != "" {
		if _, ok := strategy.CandleMinutes(req.Timeframe); !ok {
			return nil, errBadRequest("unrecognised timeframe " + req.Timeframe)
		}
		row.Timeframe = req.Timeframe
	}
	if req.CredentialId != "" {
		row.CredentialId = req.CredentialId
	}
	if req.StrategyId != "" {
		row.StrategyId = req.StrategyId
	}
	if req.Symbol != "" {
		row.Symbol = req.Symbol
	}
	if req.MaxOpenTrades > 0 {
		row.MaxOpenTrades = int64(req.MaxOpenTrades)
	}
	if req.MinIntervalSeconds > 0 {
		row.MinIntervalSeconds = int64(req.MinIntervalSeconds)
	}
	if err := l.svcCtx.Repo.Bots.Update(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	l.refreshSchedule(row)
	return botResponse(row), nil
}

// Delete refuses while the bot still has open positions.
func (l *BotLogic) Delete(userID, id string) error {
	if _, err := l.owned(userID, id); err != nil {
		return err
	}
	open, err := l.svcCtx.Repo.Trades.OpenCountByBot(l.ctx, id)
	if err != nil {
		return mapError(err)
	}
	if open > 0 {
		return errConflict("bot has open positions", "OPEN_POSITIONS")
	}
	if err := l.svcCtx.Repo.Bots.Delete(l.ctx, id); err != nil {
		return mapError(err)
	}
	l.svcCtx.Scheduler.Unregister(id)
	return nil
}

func (l *BotLogic) ToggleActive(userID, id string) (*types.ToggleResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	next := !row.IsActive
	if err := l.svcCtx.Repo.Bots.SetActive(l.ctx, id, next); err != nil {
		return nil, mapError(err)
	}
	row.IsActive = next
	l.refreshSchedule(row)
	return &types.ToggleResponse{Id: id, Enabled: next}, nil
}

func (l *BotLogic) ToggleAiTrading(userID, id string) (*types.ToggleResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	next := !row.AiEnabled
	if err := l.svcCtx.Repo.Bots.SetAiEnabled(l.ctx, id, next); err != nil {
		return nil, mapError(err)
	}
	return &types.ToggleResponse{Id: id, Enabled: next}, nil
}

// RunEvaluation triggers one on-demand evaluation attempt, synchronous to
// the request.
func (l *BotLogic) RunEvaluation(userID string, req *types.RunEvaluationRequest) (*types.EvaluationResponse, error) {
	if _, err := l.owned(userID, req.Id); err != nil {
		return nil, err
	}
	eval, err := l.svcCtx.Evaluator.Run(l.ctx, req.Id)
	if err != nil {
		l.Errorf("bot %s manual evaluation: %v", req.Id, err)
	}
	return evaluationResponse(eval.ID, eval.BotID, eval.StartedAt.Format(time.RFC3339), string(eval.Decision),
		eval.Confidence, eval.Reasoning, eval.Reason, eval.ChartRef, eval.TradeParams), nil
}

func (l *BotLogic) GetEvaluations(userID string, req *types.EvaluationListRequest) (*types.EvaluationListResponse, error) {
	if _, err := l.owned(userID, req.Id); err != nil {
		return nil, err
	}
	evals, err := l.svcCtx.Repo.RecentEvaluations(l.ctx, req.Id, req.Limit)
	if err != nil {
		return nil, mapError(err)
	}
	out := &types.EvaluationListResponse{Evaluations: make([]types.EvaluationResponse, 0, len(evals))}
	for _, e := range evals {
		out.Evaluations = append(out.Evaluations, *evaluationResponse(e.ID, e.BotID,
			e.StartedAt.Format(time.RFC3339), string(e.Decision), e.Confidence, e.Reasoning, e.Reason, e.ChartRef, e.TradeParams))
	}
	return out, nil
}

func (l *BotLogic) owned(userID, id string) (*model.Bots, error) {
	row, err := l.svcCtx.Repo.Bots.FindOne(l.ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if row.UserId != userID {
		return nil, errNotFound("bot not found")
	}
	return row, nil
}

// refreshSchedule keeps the Scheduler's wheel aligned with the bot row.
func (l *BotLogic) refreshSchedule(row *model.Bots) {
	if l.svcCtx.Scheduler == nil {
		return
	}
	if !row.IsActive {
		l.svcCtx.Scheduler.Unregister(row.Id)
		return
	}
	bot, err := l.svcCtx.Repo.LoadBot(l.ctx, row.Id)
	if err != nil {
		l.Errorf("refresh schedule for bot %s: %v", row.Id, err)
		return
	}
	l.svcCtx.Scheduler.Register(bot)
}

func botResponse(row *model.Bots) *types.BotResponse {
	resp := &types.BotResponse{
		Id:                 row.Id,
		CredentialId:       row.CredentialId,
		StrategyId:         row.StrategyId,
		Symbol:             row.Symbol,
		Timeframe:          row.Timeframe,
		IsActive:           row.IsActive,
		AiEnabled:          row.AiEnabled,
		MaxOpenTrades:      int(row.MaxOpenTrades),
		MinIntervalSeconds: int(row.MinIntervalSeconds),
	}
	if row.LastEvalAt.Valid {
		resp.LastEvalAt = row.LastEvalAt.Time.Format(time.RFC3339)
	}
	if row.LastTradeAt.Valid {
		resp.LastTradeAt = row.LastTradeAt.Time.Format(time.RFC3339)
	}
	return resp
}

func evaluationResponse(id, botID, startedAt, decision string, confidence int, reasoning, reason, chartRef string, tp *domain.TradeParams) *types.EvaluationResponse {
	resp := &types.EvaluationResponse{
		Id:         id,
		BotId:      botID,
		StartedAt:  startedAt,
		ChartRef:   chartRef,
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reasoning,
		Reason:     reason,
	}
	if tp != nil {
		resp.TradeParams = &types.TradeParamsView{
			Symbol:     tp.Symbol,
			Direction:  string(tp.Direction),
			OrderType:  tp.OrderType,
			Quantity:   tp.Quantity,
			StopLoss:   tp.StopLoss,
			TakeProfit: tp.TakeProfit,
		}
	}
	return resp
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

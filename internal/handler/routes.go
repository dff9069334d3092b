package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"botfleet/internal/svc"
)

// RegisterHandlers wires the CRUD surface onto the rest server.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{Method: http.MethodPost, Path: "/api/strategies", Handler: createStrategyHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/strategies", Handler: listStrategiesHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/strategies/:id", Handler: getStrategyHandler(svcCtx)},
		{Method: http.MethodPut, Path: "/api/strategies/:id", Handler: updateStrategyHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/api/strategies/:id", Handler: deleteStrategyHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/strategies/:id/duplicate", Handler: duplicateStrategyHandler(svcCtx)},
	})

	server.AddRoutes([]rest.Route{
		{Method: http.MethodPost, Path: "/api/bots", Handler: createBotHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/bots", Handler: listBotsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/bots/:id", Handler: getBotHandler(svcCtx)},
		{Method: http.MethodPut, Path: "/api/bots/:id", Handler: updateBotHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/api/bots/:id", Handler: deleteBotHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/bots/:id/toggle-active", Handler: toggleBotActiveHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/bots/:id/toggle-ai", Handler: toggleBotAiHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/bots/:id/evaluate", Handler: runEvaluationHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/bots/:id/evaluations", Handler: getEvaluationsHandler(svcCtx)},
	})

	server.AddRoutes([]rest.Route{
		{Method: http.MethodPost, Path: "/api/credentials", Handler: createCredentialHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/credentials", Handler: listCredentialsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/credentials/:id", Handler: getCredentialHandler(svcCtx)},
		{Method: http.MethodPut, Path: "/api/credentials/:id", Handler: updateCredentialHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/api/credentials/:id", Handler: deleteCredentialHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/credentials/:id/verify", Handler: verifyCredentialHandler(svcCtx)},
	})

	server.AddRoutes([]rest.Route{
		{Method: http.MethodGet, Path: "/api/trading-pairs", Handler: listTradingPairsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/trading-pairs/popular", Handler: popularTradingPairsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/trading-pairs/search", Handler: searchTradingPairsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/trading-pairs/broker/:broker", Handler: tradingPairsByBrokerHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/trading-pairs/category/:category", Handler: tradingPairsByCategoryHandler(svcCtx)},
	})
}

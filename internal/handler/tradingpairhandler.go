package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"botfleet/internal/logic"
	"botfleet/internal/svc"
	"botfleet/internal/types"
)

func listTradingPairsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := logic.NewTradingPairLogic(r.Context(), svcCtx).List()
		respond(w, r, resp, err)
	}
}

func tradingPairsByBrokerHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.BrokerPath
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewTradingPairLogic(r.Context(), svcCtx).ByBroker(req.Broker)
		respond(w, r, resp, err)
	}
}

func searchTradingPairsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SearchRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewTradingPairLogic(r.Context(), svcCtx).Search(&req)
		respond(w, r, resp, err)
	}
}

func tradingPairsByCategoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CategoryPath
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewTradingPairLogic(r.Context(), svcCtx).ByCategory(req.Category)
		respond(w, r, resp, err)
	}
}

func popularTradingPairsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := logic.NewTradingPairLogic(r.Context(), svcCtx).Popular()
		respond(w, r, resp, err)
	}
}

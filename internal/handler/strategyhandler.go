package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"botfleet/internal/logic"
	"botfleet/internal/svc"
	"botfleet/internal/types"
)

func createStrategyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.StrategyRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewStrategyLogic(r.Context(), svcCtx).Create(userID, &req)
		respondCreated(w, r, resp, err)
	}
}

func getStrategyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.IDPath
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewStrategyLogic(r.Context(), svcCtx).Get(userID, req.Id)
		respond(w, r, resp, err)
	}
}

func listStrategiesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		resp, err := logic.NewStrategyLogic(r.Context(), svcCtx).List(userID)
		respond(w, r, resp, err)
	}
}

func updateStrategyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.UpdateStrategyRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewStrategyLogic(r.Context(), svcCtx).Update(userID, &req)
		respond(w, r, resp, err)
	}
}

func deleteStrategyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.IDPath
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		err := logic.NewStrategyLogic(r.Context(), svcCtx).Delete(userID, req.Id)
		respond(w, r, struct{}{}, err)
	}
}

func duplicateStrategyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.IDPath
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewStrategyLogic(r.Context(), svcCtx).Duplicate(userID, req.Id)
		respondCreated(w, r, resp, err)
	}
}

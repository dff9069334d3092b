package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"botfleet/internal/logic"
	"botfleet/internal/svc"
	"botfleet/internal/types"
)

func createBotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.BotRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).Create(userID, &req)
		respondCreated(w, r, resp, err)
	}
}

func getBotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).Get(userID, req.Id)
		respond(w, r, resp, err)
	}
}

func listBotsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).List(userID)
		respond(w, r, resp, err)
	}
}

func updateBotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.UpdateBotRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).Update(userID, &req)
		respond(w, r, resp, err)
	}
}

func deleteBotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		err := logic.NewBotLogic(r.Context(), svcCtx).Delete(userID, req.Id)
		respond(w, r, struct{}{}, err)
	}
}

func toggleBotActiveHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).ToggleActive(userID, req.Id)
		respond(w, r, resp, err)
	}
}

func toggleBotAiHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).ToggleAiTrading(userID, req.Id)
		respond(w, r, resp, err)
	}
}

func runEvaluationHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.RunEvaluationRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).RunEvaluation(userID, &req)
		respond(w, r, resp, err)
	}
}

func getEvaluationsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.EvaluationListRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewBotLogic(r.Context(), svcCtx).GetEvaluations(userID, &req)
		respond(w, r, resp, err)
	}
}

package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"botfleet/internal/logic"
	"botfleet/internal/svc"
	"botfleet/internal/types"
)

func createCredentialHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.CredentialRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewCredentialLogic(r.Context(), svcCtx).Create(userID, &req)
		respondCreated(w, r, resp, err)
	}
}

func getCredentialHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		resp, err := logic.NewCredentialLogic(r.Context(), svcCtx).Get(userID, req.Id)
		respond(w, r, resp, err)
	}
}

func listCredentialsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		resp, err := logic.NewCredentialLogic(r.Context(), svcCtx).List(userID)
		respond(w, r, resp, err)
	}
}

func updateCredentialHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req types.UpdateCredentialRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := logic.NewCredentialLogic(r.Context(), svcCtx).Update(userID, &req)
		respond(w, r, resp, err)
	}
}

func deleteCredentialHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		err := logic.NewCredentialLogic(r.Context(), svcCtx).Delete(userID, req.Id)
		respond(w, r, struct{}{}, err)
	}
}

func verifyCredentialHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
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
		resp, err := logic.NewCredentialLogic(r.Context(), svcCtx).Verify(userID, req.Id)
		respond(w, r, resp, err)
	}
}

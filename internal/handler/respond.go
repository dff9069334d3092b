package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"botfleet/internal/logic"
	"botfleet/internal/types"
)

// respond writes either the success payload or the structured error body.
func respond(w http.ResponseWriter, r *http.Request, resp any, err error) {
	if err == nil {
		httpx.OkJsonCtx(r.Context(), w, resp)
		return
	}
	var coded *logic.CodedError
	if errors.As(err, &coded) {
		httpx.WriteJsonCtx(r.Context(), w, coded.Status, coded.Body)
		return
	}
	httpx.WriteJsonCtx(r.Context(), w, http.StatusInternalServerError,
		types.APIError{Message: "internal error", Code: "INTERNAL"})
}

// respondCreated is respond with a 201 on success.
func respondCreated(w http.ResponseWriter, r *http.Request, resp any, err error) {
	if err == nil {
		httpx.WriteJsonCtx(r.Context(), w, http.StatusCreated, resp)
		return
	}
	respond(w, r, nil, err)
}

// requireUser extracts the user id or writes a 401, returning ok=false.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := userIDFromRequest(r)
	if userID == "" {
		httpx.WriteJsonCtx(r.Context(), w, http.StatusUnauthorized,
			types.APIError{Message: "missing or invalid bearer token", Code: "UNAUTHORIZED"})
		return "", false
	}
	return userID, true
}

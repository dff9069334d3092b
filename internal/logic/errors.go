// Package logic implements the CRUD surface behind internal/handler. Each
// logic type follows the goctl shape: {logx.Logger, ctx, svcCtx}, one method
// per endpoint.
package logic

import (
	"errors"
	"net/http"

	"botfleet/internal/model"
	"botfleet/internal/types"
	"botfleet/pkg/orcherr"
)

// CodedError pairs an HTTP status with the structured body the API
// contract requires.
type CodedError struct {
	Status int
	Body   types.APIError
}

func (e *CodedError) Error() string { return e.Body.Message }

func errBadRequest(msg string) error {
	return &CodedError{Status: http.StatusBadRequest, Body: types.APIError{Message: msg, Code: "INVALID_INPUT"}}
}

func errNotFound(msg string) error {
	return &CodedError{Status: http.StatusNotFound, Body: types.APIError{Message: msg, Code: "NOT_FOUND"}}
}

func errUnauthorized(msg string) error {
	return &CodedError{Status: http.StatusUnauthorized, Body: types.APIError{Message: msg, Code: "UNAUTHORIZED"}}
}

func errConflict(msg, code string) error {
	return &CodedError{Status: http.StatusBadRequest, Body: types.APIError{Message: msg, Code: code}}
}

// mapError folds persistence and taxonomy errors onto the wire contract.
func mapError(err error) error {
	var coded *CodedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, model.ErrNotFound), errors.Is(err, orcherr.ErrNotFound):
		return errNotFound("resource not found")
	case errors.Is(err, orcherr.ErrInvalidInput):
		return errBadRequest(err.Error())
	case errors.Is(err, orcherr.ErrUnauthorized):
		return errUnauthorized("unauthorized")
	default:
		return &CodedError{Status: http.StatusInternalServerError, Body: types.APIError{Message: "internal error", Code: "INTERNAL"}}
	}
}

package server

import (
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/labstack/echo/v4"

	"github.com/tailored-agentic-units/datashelf/catalog"
	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/explorer"
	"github.com/tailored-agentic-units/datashelf/loader"
	"github.com/tailored-agentic-units/datashelf/session"
)

// errorMessage is the JSON body of every failed API response.
type errorMessage struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// httpError translates err into an HTTP error carrying err as its cause.
func httpError(err error) *echo.HTTPError {
	msg := errorMessage{Error: err.Error(), Retryable: explorer.IsRetryable(err)}
	return echo.NewHTTPError(httpStatus(err), msg).SetInternal(err)
}

func badRequest(reason string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, errorMessage{Error: reason})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, loader.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrLoadInProgress), errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, dataset.ErrInvalidQuery), errors.Is(err, explorer.ErrNoDateColumn):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// rpcError translates err into a connect error with the matching code.
func rpcError(err error) *connect.Error {
	return connect.NewError(rpcCode(err), err)
}

func rpcCode(err error) connect.Code {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return connect.CodeNotFound
	case errors.Is(err, loader.ErrSourceUnavailable):
		return connect.CodeUnavailable
	case errors.Is(err, loader.ErrSchemaMismatch):
		return connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrLoadInProgress), errors.Is(err, session.ErrInvalidTransition):
		return connect.CodeAborted
	case errors.Is(err, dataset.ErrInvalidQuery), errors.Is(err, explorer.ErrNoDateColumn):
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/boxboard/internal/adapters/repository"
	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/internal/domain/table"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// Error codes of the {code, message} body.
const (
	codeBadRequest           = "bad_request"
	codeUnknownStat          = "unknown_stat"
	codeNotFound             = "not_found"
	codeNoData               = "no_data"
	codeBadSort              = "bad_sort"
	codeBuildFailed          = "build_failed"
	codeInvalidComputeResult = "invalid_compute_result"
	codeUnavailable          = "unavailable"
	codeTimeout              = "timeout"
	codeCanceled             = "canceled"
	codeInternal             = "internal_error"
)

// statusClientClosedRequest is reported when the caller went away first.
const statusClientClosedRequest = 499

// classify maps an error from the service layer to a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, codeCanceled
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, freshness.ErrUnknownStatKey):
		return http.StatusNotFound, codeUnknownStat
	case errors.Is(err, table.ErrUnknownColumn),
		errors.Is(err, table.ErrNotSortable),
		errors.Is(err, table.ErrInvalidDirection):
		return http.StatusBadRequest, codeBadSort
	case errors.Is(err, table.ErrNoData):
		return http.StatusNotFound, codeNoData
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, normalize.ErrInvalidComputeResult):
		return http.StatusBadGateway, codeInvalidComputeResult
	case errors.Is(err, freshness.ErrBuildFailed):
		return http.StatusBadGateway, codeBuildFailed
	case errors.Is(err, ErrBackpressure):
		return http.StatusServiceUnavailable, codeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

package response

import (
	"errors"
	"net/http"

	"larder/entity"
)

type Response struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Used  *int   `json:"used,omitempty"`
	Limit *int   `json:"limit,omitempty"`
}

type Ack struct {
	Ok bool `json:"ok"`
}

type List struct {
	Results interface{} `json:"results"`
}

func Ok() Ack {
	return Ack{Ok: true}
}

func Error(message string) Response {
	return Response{
		Error: message,
	}
}

// FromError renders err as a response body; quota errors carry the ledger state.
func FromError(err error) Response {
	var quotaErr *entity.QuotaExceededError
	if errors.As(err, &quotaErr) {
		used, limit := quotaErr.Used, quotaErr.Limit
		return Response{
			Error: err.Error(),
			Code:  entity.QuotaExceededCode,
			Used:  &used,
			Limit: &limit,
		}
	}
	return Error(err.Error())
}

// StatusFor picks the most specific status code for err, 500 when unclassified.
func StatusFor(err error) int {
	var quotaErr *entity.QuotaExceededError
	var ocrErr *entity.UpstreamOcrError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &quotaErr):
		return http.StatusPaymentRequired
	case errors.As(err, &ocrErr),
		errors.Is(err, entity.ErrUpstreamAuth),
		errors.Is(err, entity.ErrPaymentProvider):
		return http.StatusBadGateway
	case errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrMissingFields),
		errors.Is(err, entity.ErrInviteInvalid),
		errors.Is(err, entity.ErrUserCreateFailed):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrCapacityReached):
		return http.StatusConflict
	case errors.Is(err, entity.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"larder/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing fields", fmt.Errorf("%w: username", entity.ErrMissingFields), http.StatusBadRequest},
		{"invite invalid", entity.ErrInviteInvalid, http.StatusBadRequest},
		{"user create", fmt.Errorf("%w: taken", entity.ErrUserCreateFailed), http.StatusBadRequest},
		{"forbidden", entity.ErrForbidden, http.StatusForbidden},
		{"capacity", fmt.Errorf("register: %w", entity.ErrCapacityReached), http.StatusConflict},
		{"quota", &entity.QuotaExceededError{Used: 40, Limit: 40}, http.StatusPaymentRequired},
		{"anonymous rejected", entity.ErrUnauthorized, http.StatusUnauthorized},
		{"anonymous limited", entity.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream auth", fmt.Errorf("%w: bad client", entity.ErrUpstreamAuth), http.StatusBadGateway},
		{"payment provider", fmt.Errorf("%w: card_error", entity.ErrPaymentProvider), http.StatusBadGateway},
		{"upstream ocr", &entity.UpstreamOcrError{Code: 17, Message: "limit"}, http.StatusBadGateway},
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"unclassified", errors.New("store down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestFromError_Quota(t *testing.T) {
	body := FromError(fmt.Errorf("recognize: %w", &entity.QuotaExceededError{Used: 40, Limit: 40}))
	assert.Equal(t, entity.QuotaExceededCode, body.Code)
	require.NotNil(t, body.Used)
	require.NotNil(t, body.Limit)
	assert.Equal(t, 40, *body.Used)
	assert.Equal(t, 40, *body.Limit)
}

func TestFromError_Plain(t *testing.T) {
	body := FromError(entity.ErrForbidden)
	assert.Equal(t, "forbidden", body.Error)
	assert.Empty(t, body.Code)
	assert.Nil(t, body.Used)
}

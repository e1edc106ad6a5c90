package entity

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid request")
	ErrMissingFields    = errors.New("missing fields")
	ErrInviteInvalid    = errors.New("invite code is invalid or already used")
	ErrCapacityReached  = errors.New("registration capacity reached")
	ErrUserCreateFailed = errors.New("user creation failed")
	ErrUnauthorized     = errors.New("authentication required")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("too many requests")
	ErrConfiguration    = errors.New("service is not configured")
	ErrUpstreamAuth     = errors.New("upstream authorization failed")
	ErrPaymentProvider  = errors.New("payment provider request failed")

	// ErrConflict is returned by stores when a conditional write matched no record
	ErrConflict = errors.New("conditional write not applied")
	// ErrSessionInvalid is returned by stores for unknown or expired session tokens
	ErrSessionInvalid = errors.New("session token is invalid")
)

const QuotaExceededCode = "QUOTA_EXCEEDED"

// QuotaExceededError carries the ledger state so the client can render a paywall.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly OCR quota exceeded: %d of %d used", e.Used, e.Limit)
}

// UpstreamOcrError is a recognition failure reported by the OCR provider.
type UpstreamOcrError struct {
	Code    int
	Message string
}

func (e *UpstreamOcrError) Error() string {
	return fmt.Sprintf("ocr provider error %d: %s", e.Code, e.Message)
}

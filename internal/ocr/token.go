package ocr

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"larder/internal/metrics"
	"larder/lib/sl"
)

const (
	tokenSafetyMargin = 60 * time.Second
	defaultTokenTTL   = 30 * 24 * time.Hour
)

type accessToken struct {
	value     string
	expiresAt time.Time
}

// isValid reports whether the token can still be handed out at now, keeping
// a safety margin before the provider's expiry.
func (t *accessToken) isValid(now time.Time) bool {
	return t != nil && t.value != "" && now.Before(t.expiresAt.Add(-tokenSafetyMargin))
}

// Fetcher obtains a fresh bearer token and the lifetime the provider declared,
// zero when it declared none.
type Fetcher interface {
	FetchToken(ctx context.Context) (string, time.Duration, error)
}

// TokenCache keeps the upstream bearer token for the life of the process.
// It holds no lock: callers racing on a cold or expired cache may each fetch
// a token, and the last one stored wins. Every fetched token is valid, so the
// race only costs a redundant round-trip.
type TokenCache struct {
	current atomic.Pointer[accessToken]
	fetcher Fetcher
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewTokenCache(fetcher Fetcher, m *metrics.Metrics, log *slog.Logger) *TokenCache {
	return &TokenCache{
		fetcher: fetcher,
		now:     time.Now,
		metrics: m,
		log:     log.With(sl.Module("ocr.token")),
	}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok := c.current.Load(); tok.isValid(c.now()) {
		return tok.value, nil
	}

	value, ttl, err := c.fetcher.FetchToken(ctx)
	if err != nil {
		c.metrics.TokenRefresh(metrics.ResultError)
		c.log.Error("token refresh", sl.Err(err))
		return "", err
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	expiresAt := c.now().Add(ttl)
	c.current.Store(&accessToken{value: value, expiresAt: expiresAt})
	c.metrics.TokenRefresh(metrics.ResultOk)
	c.log.With(
		sl.Secret("token", value),
		slog.Time("expires_at", expiresAt),
	).Info("token refreshed")
	return value, nil
}

package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"larder/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	calls atomic.Int32
	ttl   time.Duration
	err   error
}

func (f *fakeFetcher) FetchToken(_ context.Context) (string, time.Duration, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return "", 0, f.err
	}
	return "token-" + string(rune('0'+n)), f.ttl, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newCache(f Fetcher, clock *fakeClock) *TokenCache {
	c := NewTokenCache(f, nil, newTestLogger())
	c.now = clock.Now
	return c
}

func TestAccessToken_IsValid(t *testing.T) {
	now := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

	var empty *accessToken
	assert.False(t, empty.isValid(now))
	assert.False(t, (&accessToken{expiresAt: now.Add(time.Hour)}).isValid(now))
	assert.True(t, (&accessToken{value: "t", expiresAt: now.Add(61 * time.Second)}).isValid(now))
	assert.False(t, (&accessToken{value: "t", expiresAt: now.Add(60 * time.Second)}).isValid(now))
	assert.False(t, (&accessToken{value: "t", expiresAt: now.Add(-time.Second)}).isValid(now))
}

func TestTokenCache_ReusesTokenWithinLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{ttl: time.Hour}
	c := newCache(f, clock)

	first, err := c.Token(context.Background())
	require.NoError(t, err)
	clock.now = clock.now.Add(30 * time.Minute)
	second, err := c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestTokenCache_RefreshesAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{ttl: time.Hour}
	c := newCache(f, clock)

	first, err := c.Token(context.Background())
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour + time.Second)
	second, err := c.Token(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestTokenCache_RefreshesInsideSafetyMargin(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{ttl: time.Hour}
	c := newCache(f, clock)

	_, err := c.Token(context.Background())
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour - 30*time.Second)
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestTokenCache_DefaultTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{}
	c := newCache(f, clock)

	_, err := c.Token(context.Background())
	require.NoError(t, err)

	clock.now = clock.now.Add(29 * 24 * time.Hour)
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())

	clock.now = clock.now.Add(2 * 24 * time.Hour)
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestTokenCache_FetchErrorIsNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	f := &fakeFetcher{err: errors.New("boom")}
	c := newCache(f, clock)

	_, err := c.Token(context.Background())
	require.Error(t, err)
	_, err = c.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestOAuthClient_FetchToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "id", r.URL.Query().Get("client_id"))
		assert.Equal(t, "secret", r.URL.Query().Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","expires_in":2592000}`))
	}))
	defer srv.Close()

	o := NewOAuthClient(srv.Client(), srv.URL, "id", "secret", newTestLogger())
	token, ttl, err := o.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, 30*24*time.Hour, ttl)
}

func TestOAuthClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
	}))
	defer srv.Close()

	o := NewOAuthClient(srv.Client(), srv.URL, "id", "secret", newTestLogger())
	_, _, err := o.FetchToken(context.Background())
	require.ErrorIs(t, err, entity.ErrUpstreamAuth)
	assert.Contains(t, err.Error(), "unknown client id")
}

func TestOAuthClient_MissingCredentials(t *testing.T) {
	o := NewOAuthClient(http.DefaultClient, "http://127.0.0.1:0", "", "", newTestLogger())
	_, _, err := o.FetchToken(context.Background())
	require.ErrorIs(t, err, entity.ErrConfiguration)
}

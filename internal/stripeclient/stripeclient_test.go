package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"larder/entity"
	"larder/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	conf := config.StripeConfig{
		APIKey:     "sk_test_123",
		SuccessURL: "https://larder.example/paid",
		Plans: map[string]config.PlanPrice{
			"pro": {Name: "Larder Pro", Amount: 990, Currency: "usd"},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newWithBackends(conf, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}, logger)
}

func TestPaymentLink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "o1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "990", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "Larder Pro", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("customer_email"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	})

	link, err := c.PaymentLink(&entity.Order{ID: "o1", Plan: "Pro", Contact: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", link)
}

func TestPaymentLinkUnpricedPlan(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	link, err := c.PaymentLink(&entity.Order{ID: "o1", Plan: "enterprise"})
	require.NoError(t, err)
	assert.Empty(t, link)
	assert.False(t, called)
}

func TestPaymentLinkStripeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	})

	_, err := c.PaymentLink(&entity.Order{ID: "o1", Plan: "pro"})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrPaymentProvider)
	assert.Contains(t, err.Error(), "status 400 invalid_request_error: Invalid currency")
}

func signedPayload(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookClient(secret string) *StripeClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newWithBackends(config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: secret}, nil, logger)
}

func TestCheckoutCompleted(t *testing.T) {
	c := newWebhookClient("whsec_test")
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid",` +
		`"client_reference_id":"o1","metadata":{"order_id":"o1"}}}}`)

	confirmation, err := c.CheckoutCompleted(payload, signedPayload(t, "whsec_test", payload))
	require.NoError(t, err)
	require.NotNil(t, confirmation)
	assert.Equal(t, "o1", confirmation.OrderID)
	assert.Equal(t, "cs_1", confirmation.PaymentID)
}

func TestCheckoutCompletedBadSignature(t *testing.T) {
	c := newWebhookClient("whsec_test")
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := c.CheckoutCompleted(payload, signedPayload(t, "whsec_other", payload))
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestCheckoutCompletedIgnoresOtherEvents(t *testing.T) {
	c := newWebhookClient("whsec_test")
	payload := []byte(`{"id":"evt_2","object":"event","type":"invoice.finalized","data":{"object":{"id":"in_1"}}}`)

	confirmation, err := c.CheckoutCompleted(payload, signedPayload(t, "whsec_test", payload))
	require.NoError(t, err)
	assert.Nil(t, confirmation)
}

func TestCheckoutCompletedWithoutSecret(t *testing.T) {
	c := newWebhookClient("")
	_, err := c.CheckoutCompleted([]byte(`{}`), "t=1,v1=00")
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

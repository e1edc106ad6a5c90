package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"larder/entity"
	"larder/impl/auth"
	"larder/impl/core"
	"larder/impl/invite"
	"larder/impl/order"
	"larder/impl/quota"
	"larder/impl/registration"
	"larder/internal/config"
	"larder/internal/memstore"
	"larder/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOcr struct{}

func (stubOcr) Recognize(_ context.Context, _ string, _ entity.OcrMode) (*entity.OcrResult, error) {
	return &entity.OcrResult{WordsResult: []entity.WordsResult{{Words: "milk", Location: json.RawMessage(`{"top":1}`)}}}, nil
}

type testEnv struct {
	store  *memstore.MemStore
	server *httptest.Server
	admin  string
}

func newEnv(t *testing.T, maxUsers, monthlyLimit int) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	conf := &config.Config{
		Listen:  config.Listen{RequestTimeout: 5 * time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	c := core.New(auth.New(store, log), log)
	c.SetInviteService(invite.New(store, maxUsers, m, log))
	c.SetRegistrationService(registration.New(store, maxUsers, m, log))
	c.SetQuotaService(quota.New(store, stubOcr{}, quota.Config{
		MonthlyLimit:    monthlyLimit,
		AnonymousPolicy: entity.AnonymousReject,
	}, m, log))
	orders := order.New(store, log)
	orders.SetPaymentVerifier(signedCheckout{})
	c.SetOrderService(orders)

	admin, err := store.AddUser(t.Context(), "root", "", "pw", entity.RoleAdmin)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(conf, log, c, m, reg))
	t.Cleanup(srv.Close)
	return &testEnv{store: store, server: srv, admin: admin.SessionToken}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.Header.Get("Content-Type") != "" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func TestInviteEndpointsRequireAdmin(t *testing.T) {
	env := newEnv(t, 20, 40)
	sess, err := env.store.SignUp(t.Context(), "alice", "", "pw")
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", sess.SessionToken} {
		status, body := env.do(t, http.MethodPost, "/api/invite", token, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.NotEmpty(t, body["error"])

		status, _ = env.do(t, http.MethodDelete, "/api/invite/does-not-exist", token, nil)
		assert.Equal(t, http.StatusForbidden, status)
	}
}

func TestRegistrationFlow(t *testing.T) {
	env := newEnv(t, 20, 40)

	status, body := env.do(t, http.MethodPost, "/api/invite", env.admin, nil)
	require.Equal(t, http.StatusOK, status)
	code, _ := body["code"].(string)
	require.Len(t, code, 6)
	assert.NotEmpty(t, body["id"])

	status, body = env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "password": "secret", "inviteCode": code,
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["objectId"])
	assert.NotEmpty(t, body["sessionToken"])

	status, body = env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "password": "secret", "inviteCode": code,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, entity.ErrInviteInvalid.Error(), body["error"])

	status, _ = env.do(t, http.MethodPost, "/api/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegistrationCapacity(t *testing.T) {
	env := newEnv(t, 1, 40)

	status, body := env.do(t, http.MethodPost, "/api/invite", env.admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "password": "secret", "inviteCode": body["code"].(string),
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestInvalidateUsedInviteStaysInvalid(t *testing.T) {
	env := newEnv(t, 20, 40)

	_, body := env.do(t, http.MethodPost, "/api/invite", env.admin, nil)
	id, code := body["id"].(string), body["code"].(string)

	status, _ := env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "password": "secret", "inviteCode": code,
	})
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 2; i++ {
		status, body = env.do(t, http.MethodPut, "/api/invite/"+id+"/invalidate", env.admin, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["ok"])
	}
	assert.True(t, env.store.Invite(id).Used)

	status, _ = env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "password": "secret", "inviteCode": code,
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFillListAndDelete(t *testing.T) {
	env := newEnv(t, 4, 40)

	status, body := env.do(t, http.MethodPost, "/api/invite/fill", env.admin, nil)
	require.Equal(t, http.StatusOK, status)
	// the admin already occupies one seat
	assert.Equal(t, float64(3), body["toCreate"])
	assert.Len(t, body["created"], 3)

	status, body = env.do(t, http.MethodPost, "/api/invite/fill", env.admin, map[string]int{"maxUsers": 10})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(6), body["toCreate"])

	status, body = env.do(t, http.MethodGet, "/api/invite", env.admin, nil)
	require.Equal(t, http.StatusOK, status)
	results, _ := body["results"].([]interface{})
	require.Len(t, results, 9)

	first, _ := results[0].(map[string]interface{})
	status, _ = env.do(t, http.MethodDelete, "/api/invite/"+first["objectId"].(string), env.admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, "/api/invite/"+first["objectId"].(string), env.admin, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodGet, "/api/invite/reconciliations", env.admin, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["results"])
}

func TestOcrQuota(t *testing.T) {
	env := newEnv(t, 20, 40)
	sess, err := env.store.SignUp(t.Context(), "alice", "", "pw")
	require.NoError(t, err)
	env.store.SetQuota(entity.OcrQuota{UserID: sess.UserID, MonthKey: time.Now().UTC().Format("200601"), Used: 39, Limit: 40})

	img := map[string]string{"imageBase64": "data:image/png;base64,aGVsbG8="}
	status, body := env.do(t, http.MethodPost, "/api/ocr", sess.SessionToken, img)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["words_result"], 1)

	status, body = env.do(t, http.MethodPost, "/api/ocr", sess.SessionToken, img)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, entity.QuotaExceededCode, body["code"])
	assert.Equal(t, float64(40), body["used"])
	assert.Equal(t, float64(40), body["limit"])

	status, _ = env.do(t, http.MethodPost, "/api/ocr", "", img)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPost, "/api/ocr", sess.SessionToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPlaceOrder(t *testing.T) {
	env := newEnv(t, 20, 40)

	status, body := env.do(t, http.MethodPost, "/api/order/place", "", map[string]string{"plan": "pro"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["id"])
	assert.NotContains(t, body, "paymentLink")

	status, _ = env.do(t, http.MethodPost, "/api/order/place", "", map[string]string{"note": "hi"})
	assert.Equal(t, http.StatusBadRequest, status)
}

// signedCheckout accepts the signature "valid" and reads the order id from
// the payload.
type signedCheckout struct{}

func (signedCheckout) CheckoutCompleted(payload []byte, signature string) (*entity.PaymentConfirmation, error) {
	if signature != "valid" {
		return nil, entity.ErrValidation
	}
	var evt struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, entity.ErrValidation
	}
	return &entity.PaymentConfirmation{OrderID: evt.OrderID, PaymentID: "cs_1"}, nil
}

func TestStripeWebhook(t *testing.T) {
	env := newEnv(t, 20, 40)

	_, body := env.do(t, http.MethodPost, "/api/order/place", "", map[string]string{"plan": "pro"})
	orderID, _ := body["id"].(string)
	require.NotEmpty(t, orderID)

	send := func(signature string) int {
		payload := []byte(`{"order_id":"` + orderID + `"}`)
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhook/stripe", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Stripe-Signature", signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, send("forged"))
	assert.Equal(t, entity.OrderStatusPending, env.store.Orders()[0].Status)
	assert.Equal(t, http.StatusOK, send("valid"))
	assert.Equal(t, entity.OrderStatusPaid, env.store.Orders()[0].Status)
}

func TestServiceRoutes(t *testing.T) {
	env := newEnv(t, 20, 40)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	status, body = env.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])

	status, body = env.do(t, http.MethodGet, "/api/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.NotEmpty(t, body["error"])

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "larder_http_request_duration_seconds")
}

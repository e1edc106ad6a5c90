package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Registration(ResultOk, "")
	m.Registration(ResultRejected, "capacity")
	m.Registration(ResultRejected, "capacity")
	m.OcrCall("known", ResultOk)
	m.TokenRefresh(ResultOk)
	m.Reconciliation("mark_used_failed")
	m.InvitesCreated(3)
	m.InvitesCreated(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues(ResultOk, "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues(ResultRejected, "capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrCalls.WithLabelValues("known", ResultOk)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRefreshes.WithLabelValues(ResultOk)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("mark_used_failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.invitesCreated))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Registration(ResultOk, "")
		m.OcrCall("anonymous", ResultRejected)
		m.TokenRefresh(ResultError)
		m.Reconciliation("x")
		m.InvitesCreated(1)
	})
}

func TestMiddleware_RoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/api/invite/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/invite/abc", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
	assert.Equal(t, uint64(1), histogramCount(t, m, "DELETE", "/api/invite/{id}", "200"))
}

func histogramCount(t *testing.T, m *Metrics, labels ...string) uint64 {
	t.Helper()
	observer, err := m.requestDuration.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	var out dto.Metric
	require.NoError(t, observer.(prometheus.Metric).Write(&out))
	return out.GetHistogram().GetSampleCount()
}

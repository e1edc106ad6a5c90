// Package metrics exposes low-cardinality Prometheus counters for the
// admission and quota paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOk       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Metrics struct {
	registrations   *prometheus.CounterVec
	ocrCalls        *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	invitesCreated  prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "larder_registrations_total",
			Help: "Registration attempts by result and reason.",
		}, []string{"result", "reason"}),
		ocrCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "larder_ocr_requests_total",
			Help: "OCR proxy calls by caller kind and result.",
		}, []string{"caller", "result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "larder_ocr_token_refresh_total",
			Help: "Upstream OAuth token fetches by result.",
		}, []string{"result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "larder_invite_reconciliation_total",
			Help: "Registrations whose invite bookkeeping needs manual repair.",
		}, []string{"reason"}),
		invitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "larder_invites_created_total",
			Help: "Invite codes created by admins or the top-up.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "larder_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),
	}
	registerer.MustRegister(
		m.registrations,
		m.ocrCalls,
		m.tokenRefreshes,
		m.reconciliations,
		m.invitesCreated,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Registration(result, reason string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) OcrCall(caller, result string) {
	if m == nil {
		return
	}
	m.ocrCalls.WithLabelValues(caller, result).Inc()
}

func (m *Metrics) TokenRefresh(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconciliation(reason string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(reason).Inc()
}

func (m *Metrics) InvitesCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invitesCreated.Add(float64(n))
}

// Middleware records request latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t1 := time.Now()
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(t1).Seconds())
	})
}

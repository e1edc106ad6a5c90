package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"larder/internal/config"
	handlerErrors "larder/internal/http-server/handlers/errors"
	"larder/internal/http-server/handlers/invite"
	"larder/internal/http-server/handlers/ocr"
	"larder/internal/http-server/handlers/order"
	"larder/internal/http-server/handlers/payment"
	"larder/internal/http-server/handlers/register"
	"larder/internal/http-server/middleware/authenticate"
	"larder/internal/http-server/middleware/timeout"
	"larder/internal/metrics"
	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	register.Core
	invite.Core
	ocr.Core
	order.Core
	payment.Core
}

// NewRouter builds the complete route tree. gatherer serves /metrics and may
// be nil when metrics are disabled.
func NewRouter(conf *config.Config, log *slog.Logger, handler Handler, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(conf.Listen.RequestTimeout))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(m.Middleware)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(handlerErrors.NotFound(log))
	router.MethodNotAllowed(handlerErrors.NotAllowed(log))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok())
	})
	if conf.Metrics.Enabled && gatherer != nil {
		router.Handle(conf.Metrics.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	router.Post("/webhook/stripe", payment.StripeEvent(log, handler))

	router.Route("/api", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Post("/register", register.Register(log, handler))
		rootApi.Post("/ocr", ocr.Recognize(log, handler))
		rootApi.Post("/order/place", order.Place(log, handler))

		rootApi.Route("/invite", func(inv chi.Router) {
			inv.Use(authenticate.Admin(log, handler))
			inv.Get("/", invite.List(log, handler))
			inv.Post("/", invite.Create(log, handler))
			inv.Post("/fill", invite.Fill(log, handler))
			inv.Get("/reconciliations", invite.Reconciliations(log, handler))
			inv.Put("/{id}/invalidate", invite.Invalidate(log, handler))
			inv.Delete("/{id}", invite.Delete(log, handler))
		})
	})

	return router
}

// New serves the API until ctx is cancelled, then drains in-flight requests.
func New(ctx context.Context, conf *config.Config, log *slog.Logger, handler Handler, m *metrics.Metrics, gatherer prometheus.Gatherer) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(conf, log, handler, m, gatherer),
		ErrorLog:     httpLog,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: conf.Listen.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.httpServer.Serve(listener)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	server.log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err = <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

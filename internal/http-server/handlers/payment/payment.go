package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const maxPayloadBytes = 64 << 10

type Core interface {
	ConfirmPayment(ctx context.Context, payload []byte, signature string) error
}

// StripeEvent accepts Stripe webhook deliveries. Anything past signature
// verification that is not a store failure is acknowledged with 200.
func StripeEvent(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.payment"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			logger.Warn("read request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("read"))
			return
		}

		err = handler.ConfirmPayment(r.Context(), payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			status := response.StatusFor(err)
			if status >= http.StatusInternalServerError {
				logger.Error("stripe event", sl.Err(err))
			} else {
				logger.Warn("stripe event", sl.Err(err))
			}
			render.Status(r, status)
			render.JSON(w, r, response.FromError(err))
			return
		}

		render.JSON(w, r, response.Ok())
	}
}

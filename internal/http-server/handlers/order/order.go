package order

import (
	"context"
	"log/slog"
	"net/http"

	"larder/entity"
	"larder/lib/api/cont"
	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	PlaceOrder(ctx context.Context, caller entity.CallerIdentity, req *entity.OrderRequest) (*entity.OrderReceipt, error)
}

func Place(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.order")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.OrderRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		receipt, err := handler.PlaceOrder(r.Context(), cont.GetCaller(r.Context()), &req)
		if err != nil {
			logger.Error("place order", sl.Err(err))
			render.Status(r, response.StatusFor(err))
			render.JSON(w, r, response.FromError(err))
			return
		}

		render.JSON(w, r, receipt)
	}
}

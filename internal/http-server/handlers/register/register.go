package register

import (
	"context"
	"log/slog"
	"net/http"

	"larder/entity"
	"larder/internal/http-server/middleware/authenticate"
	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	Register(ctx context.Context, req *entity.RegisterRequest, meta entity.RequestMeta) (*entity.Session, error)
}

func Register(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.register")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.RegisterRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger = logger.With(slog.String("username", req.Username))

		meta := entity.RequestMeta{
			UserAgent: r.UserAgent(),
			IP:        authenticate.ClientIP(r),
		}
		session, err := handler.Register(r.Context(), &req, meta)
		if err != nil {
			logger.Warn("register", sl.Err(err))
			render.Status(r, response.StatusFor(err))
			render.JSON(w, r, response.FromError(err))
			return
		}
		logger.With(slog.String("user", session.UserID)).Info("registered")

		render.JSON(w, r, session)
	}
}

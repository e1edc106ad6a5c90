package ocr

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
	Recognize(ctx context.Context, caller entity.CallerIdentity, req *entity.OcrRequest) (*entity.OcrResult, error)
}

func Recognize(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.ocr")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.OcrRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger = logger.With(
			slog.String("mode", string(req.Mode)),
			slog.Int("image_size", len(req.ImageBase64)),
		)

		result, err := handler.Recognize(r.Context(), cont.GetCaller(r.Context()), &req)
		if err != nil {
			status := response.StatusFor(err)
			if status >= http.StatusInternalServerError {
				logger.Error("recognize", sl.Err(err))
			} else {
				logger.Info("recognize rejected", slog.Int("status", status), sl.Err(err))
			}
			render.Status(r, status)
			render.JSON(w, r, response.FromError(err))
			return
		}
		logger.Debug("recognized", slog.Int("regions", len(result.WordsResult)))

		render.JSON(w, r, result)
	}
}

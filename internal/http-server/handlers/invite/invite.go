package invite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"larder/entity"
	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	CreateInvite(ctx context.Context) (*entity.InviteCode, error)
	ListInvites(ctx context.Context) ([]*entity.InviteCode, error)
	InvalidateInvite(ctx context.Context, id string) error
	DeleteInvite(ctx context.Context, id string) error
	FillInvites(ctx context.Context, maxUsers int) (*entity.FillResult, error)
	ListReconciliations(ctx context.Context) ([]*entity.Reconciliation, error)
}

type created struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func reqLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.invite"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, response.StatusFor(err))
	render.JSON(w, r, response.FromError(err))
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invites, err := handler.ListInvites(r.Context())
		if err != nil {
			reqLogger(log, r).Error("list invites", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.List{Results: invites})
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := handler.CreateInvite(r.Context())
		if err != nil {
			reqLogger(log, r).Error("create invite", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, created{ID: inv.ID, Code: inv.Code})
	}
}

func Fill(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := reqLogger(log, r)

		var req entity.FillRequest
		if err := render.Bind(r, &req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		result, err := handler.FillInvites(r.Context(), req.MaxUsers)
		if err != nil {
			logger.Error("fill invites", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, result)
	}
}

func Invalidate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := handler.InvalidateInvite(r.Context(), id); err != nil {
			reqLogger(log, r).Error("invalidate invite", slog.String("id", id), sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok())
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := handler.DeleteInvite(r.Context(), id); err != nil {
			reqLogger(log, r).Error("delete invite", slog.String("id", id), sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok())
	}
}

func Reconciliations(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := handler.ListReconciliations(r.Context())
		if err != nil {
			reqLogger(log, r).Error("list reconciliations", sl.Err(err))
			fail(w, r, err)
			return
		}
		render.JSON(w, r, response.List{Results: list})
	}
}

package authenticate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"larder/entity"
	"larder/lib/api/cont"
	"larder/lib/api/response"
	"larder/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// SessionHeader is accepted when no Authorization header is sent.
const SessionHeader = "X-LC-Session"

type Authenticate interface {
	Identify(ctx context.Context, token, ip string) entity.CallerIdentity
	Authorize(ctx context.Context, token string) (*entity.User, error)
}

// New resolves the caller of every request without rejecting anyone: a
// missing or unresolvable session continues as an anonymous caller.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			remote := ClientIP(r)
			logger := log.With(
				mod,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", remote),
				slog.String("request_id", id),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				logger.With(
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(t1).Seconds()),
				).Info("incoming request")
			}()

			token := Token(r)
			var caller entity.CallerIdentity = entity.AnonymousCaller{IP: remote, Reason: "no session"}
			if auth != nil {
				caller = auth.Identify(r.Context(), token, remote)
			}
			switch c := caller.(type) {
			case entity.KnownCaller:
				logger = logger.With(slog.String("user", c.User.Username))
				ww.Header().Set("X-User", c.User.Username)
			case entity.AnonymousCaller:
				if token != "" {
					logger = logger.With(sl.Secret("token", token), slog.String("anonymous", c.Reason))
				}
			}

			ww.Header().Set("X-Request-ID", id)
			ctx := cont.PutCaller(r.Context(), caller)
			next.ServeHTTP(ww, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

// Admin lets through only callers whose session belongs to an admin. Every
// rejection is a 403, whether the token is missing, invalid or not an admin's.
// A caller already resolved by New is reused; the session is looked up only
// when Admin runs on its own.
func Admin(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.admin")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			user, err := adminUser(r, auth)
			if err != nil {
				log.With(
					mod,
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				).Warn("admin access denied")
				forbidden(w, r)
				return
			}
			ctx := cont.PutCaller(r.Context(), entity.KnownCaller{User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// Token extracts the session from "Authorization: Bearer <token>", falling
// back to the session header.
func Token(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	// if the request is coming from a proxy, use the first X-Forwarded-For entry
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func adminUser(r *http.Request, auth Authenticate) (*entity.User, error) {
	caller, resolved := cont.LookupCaller(r.Context())
	if !resolved {
		if auth == nil {
			return nil, fmt.Errorf("%w: no authenticator", entity.ErrForbidden)
		}
		return auth.Authorize(r.Context(), Token(r))
	}
	switch c := caller.(type) {
	case entity.KnownCaller:
		if c.User.IsAdmin() {
			return c.User, nil
		}
		return nil, fmt.Errorf("%w: not an admin", entity.ErrForbidden)
	case entity.AnonymousCaller:
		return nil, fmt.Errorf("%w: %s", entity.ErrForbidden, c.Reason)
	default:
		return nil, fmt.Errorf("%w: unknown caller %T", entity.ErrForbidden, caller)
	}
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusForbidden)
	render.JSON(w, r, response.Error(entity.ErrForbidden.Error()))
}

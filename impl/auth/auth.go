package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"larder/entity"
	"larder/lib/sl"
)

type Database interface {
	UserBySession(ctx context.Context, token string) (*entity.User, error)
}

type Auth struct {
	db  Database
	log *slog.Logger
}

func New(db Database, log *slog.Logger) *Auth {
	return &Auth{
		db:  db,
		log: log.With(sl.Module("impl.auth")),
	}
}

// Identify resolves a session token to a caller. Any failure to resolve,
// including store errors, yields an anonymous caller.
func (a *Auth) Identify(ctx context.Context, token, ip string) entity.CallerIdentity {
	if token == "" {
		return entity.AnonymousCaller{IP: ip, Reason: "no session"}
	}
	user, err := a.userByToken(ctx, token)
	if err != nil {
		if !errors.Is(err, entity.ErrSessionInvalid) {
			a.log.Warn("session lookup failed", sl.Secret("token", token), sl.Err(err))
		}
		return entity.AnonymousCaller{IP: ip, Reason: err.Error()}
	}
	return entity.KnownCaller{User: user}
}

// Authorize admits only users whose role is admin. Every failure is reported
// as entity.ErrForbidden so callers cannot tell a bad token from a non-admin.
func (a *Auth) Authorize(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no session", entity.ErrForbidden)
	}
	user, err := a.userByToken(ctx, token)
	if err != nil {
		a.log.Debug("admin check failed", sl.Secret("token", token), sl.Err(err))
		return nil, fmt.Errorf("%w: session not resolved", entity.ErrForbidden)
	}
	if !user.IsAdmin() {
		a.log.Info("admin check denied",
			slog.String("user", user.ID),
			slog.String("role", string(user.Role)))
		return nil, fmt.Errorf("%w: admin role required", entity.ErrForbidden)
	}
	return user, nil
}

func (a *Auth) userByToken(ctx context.Context, token string) (*entity.User, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	user, err := a.db.UserBySession(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, entity.ErrSessionInvalid
	}
	return user, nil
}

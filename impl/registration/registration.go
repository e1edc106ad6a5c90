package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"larder/entity"
	"larder/internal/metrics"
	"larder/lib/clock"
	"larder/lib/sl"
)

type Database interface {
	CountUsers(ctx context.Context) (int, error)
	FindUsableInvite(ctx context.Context, code string) (*entity.InviteCode, error)
	SignUp(ctx context.Context, username, email, password string) (*entity.Session, error)
	ClaimInvite(ctx context.Context, id string, claim entity.InviteClaim) error
	SaveReconciliation(ctx context.Context, rec *entity.Reconciliation) error
}

// Service admits new users: capacity check, invite check, sign-up, then
// invite consumption. The capacity check is a plain count and two concurrent
// registrations can both pass it; the invite claim itself is a conditional
// write on every store driver.
type Service struct {
	db       Database
	maxUsers int
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(db Database, maxUsers int, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		db:       db,
		maxUsers: maxUsers,
		now:      time.Now,
		metrics:  m,
		log:      log.With(sl.Module("impl.registration")),
	}
}

func (s *Service) Register(ctx context.Context, req *entity.RegisterRequest, meta entity.RequestMeta) (*entity.Session, error) {
	if missing := missingFields(req); len(missing) > 0 {
		s.metrics.Registration(metrics.ResultRejected, "missing_fields")
		return nil, fmt.Errorf("%w: %s", entity.ErrMissingFields, strings.Join(missing, ", "))
	}
	log := s.log.With(
		slog.String("username", req.Username),
		slog.String("code", req.InviteCode),
	)

	count, err := s.db.CountUsers(ctx)
	if err != nil {
		s.metrics.Registration(metrics.ResultError, "count_users")
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count >= s.maxUsers {
		log.Info("registration rejected: capacity reached", slog.Int("users", count), slog.Int("max_users", s.maxUsers))
		s.metrics.Registration(metrics.ResultRejected, "capacity")
		return nil, entity.ErrCapacityReached
	}

	invite, err := s.db.FindUsableInvite(ctx, req.InviteCode)
	if err != nil {
		s.metrics.Registration(metrics.ResultError, "find_invite")
		return nil, fmt.Errorf("find invite: %w", err)
	}
	if !invite.Usable() {
		log.Info("registration rejected: invite not usable")
		s.metrics.Registration(metrics.ResultRejected, "invite")
		return nil, entity.ErrInviteInvalid
	}

	session, err := s.db.SignUp(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		log.Warn("sign up failed", sl.Err(err))
		s.metrics.Registration(metrics.ResultRejected, "user_create")
		return nil, fmt.Errorf("%w: %v", entity.ErrUserCreateFailed, err)
	}
	log = log.With(slog.String("user", session.UserID))

	s.consumeInvite(ctx, log, invite, session.UserID, meta)

	log.Info("user registered")
	s.metrics.Registration(metrics.ResultOk, "")
	return session, nil
}

// consumeInvite marks the invite used by userID. The user already exists at
// this point and is never removed; when the invite cannot be marked, a
// reconciliation record is left for an operator.
func (s *Service) consumeInvite(ctx context.Context, log *slog.Logger, invite *entity.InviteCode, userID string, meta entity.RequestMeta) {
	claim := entity.InviteClaim{
		UserID:    userID,
		UsedAt:    clock.Format(s.now()),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	}
	err := s.db.ClaimInvite(ctx, invite.ID, claim)
	if err == nil {
		return
	}
	if errors.Is(err, entity.ErrConflict) {
		s.reconcile(ctx, log, invite, userID, entity.ReasonClaimedConcurrently, err)
		return
	}

	log.Warn("mark invite used failed, retrying minimal", sl.Err(err))
	claim.Minimal = true
	err = s.db.ClaimInvite(ctx, invite.ID, claim)
	switch {
	case err == nil:
		return
	case errors.Is(err, entity.ErrConflict):
		s.reconcile(ctx, log, invite, userID, entity.ReasonClaimedConcurrently, err)
	default:
		s.reconcile(ctx, log, invite, userID, entity.ReasonMarkUsedFailed, err)
	}
}

func (s *Service) reconcile(ctx context.Context, log *slog.Logger, invite *entity.InviteCode, userID, reason string, cause error) {
	s.metrics.Reconciliation(reason)
	log.Error("invite needs reconciliation",
		slog.String("invite", invite.ID),
		slog.String("reason", reason),
		sl.Err(cause))

	rec := &entity.Reconciliation{
		InviteID: invite.ID,
		Code:     invite.Code,
		UserID:   userID,
		Reason:   reason,
		Detail:   cause.Error(),
	}
	if err := s.db.SaveReconciliation(ctx, rec); err != nil {
		log.Error("save reconciliation failed", slog.String("invite", invite.ID), sl.Err(err))
	}
}

func missingFields(req *entity.RegisterRequest) []string {
	if req == nil {
		return []string{"username", "password", "inviteCode"}
	}
	var missing []string
	if req.Username == "" {
		missing = append(missing, "username")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if req.InviteCode == "" {
		missing = append(missing, "inviteCode")
	}
	return missing
}

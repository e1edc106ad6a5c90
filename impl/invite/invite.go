package invite

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"larder/entity"
	"larder/internal/metrics"
	"larder/lib/sl"
)

const (
	ListLimit = 1000

	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Database interface {
	CountUsers(ctx context.Context) (int, error)
	CreateInvite(ctx context.Context, code string) (*entity.InviteCode, error)
	ListInvites(ctx context.Context, limit int) ([]*entity.InviteCode, error)
	CountUsableInvites(ctx context.Context) (int, error)
	InvalidateInvite(ctx context.Context, id string) error
	DeleteInvite(ctx context.Context, id string) error
	ListReconciliations(ctx context.Context, limit int) ([]*entity.Reconciliation, error)
}

type Service struct {
	db       Database
	maxUsers int
	newCode  func() (string, error)
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(db Database, maxUsers int, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		db:       db,
		maxUsers: maxUsers,
		newCode:  GenerateCode,
		metrics:  m,
		log:      log.With(sl.Module("impl.invite")),
	}
}

// GenerateCode draws each character uniformly from [A-Z0-9]. Codes are not
// checked for uniqueness against existing invites.
func GenerateCode() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func (s *Service) Create(ctx context.Context) (*entity.InviteCode, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	inv, err := s.db.CreateInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	s.metrics.InvitesCreated(1)
	s.log.Info("invite created", slog.String("id", inv.ID), slog.String("code", inv.Code))
	return inv, nil
}

func (s *Service) List(ctx context.Context) ([]*entity.InviteCode, error) {
	return s.db.ListInvites(ctx, ListLimit)
}

// Invalidate is idempotent and does not touch the used flag.
func (s *Service) Invalidate(ctx context.Context, id string) error {
	if err := s.db.InvalidateInvite(ctx, id); err != nil {
		return err
	}
	s.log.Info("invite invalidated", slog.String("id", id))
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteInvite(ctx, id); err != nil {
		return err
	}
	s.log.Info("invite deleted", slog.String("id", id))
	return nil
}

// ToCreate is the number of codes needed so that unused invites cover the
// seats left under maxUsers. Never negative.
func ToCreate(maxUsers, userCount, unused int) int {
	remaining := max(maxUsers-userCount, 0)
	return max(remaining-unused, 0)
}

// Fill tops up invites to the remaining capacity; maxUsers <= 0 uses the
// configured cap. Codes are created one after another; on a failed write the
// codes created so far are returned along with the error.
func (s *Service) Fill(ctx context.Context, maxUsers int) (*entity.FillResult, error) {
	if maxUsers <= 0 {
		maxUsers = s.maxUsers
	}
	userCount, err := s.db.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	unused, err := s.db.CountUsableInvites(ctx)
	if err != nil {
		return nil, err
	}

	result := &entity.FillResult{
		ToCreate: ToCreate(maxUsers, userCount, unused),
		Created:  make([]*entity.InviteCode, 0),
	}
	s.log.Info("filling invites",
		slog.Int("max_users", maxUsers),
		slog.Int("users", userCount),
		slog.Int("unused", unused),
		slog.Int("to_create", result.ToCreate))

	for i := 0; i < result.ToCreate; i++ {
		inv, err := s.Create(ctx)
		if err != nil {
			s.log.Error("fill interrupted",
				slog.Int("created", len(result.Created)),
				slog.Int("to_create", result.ToCreate),
				sl.Err(err))
			return result, err
		}
		result.Created = append(result.Created, inv)
	}
	return result, nil
}

func (s *Service) Status(ctx context.Context) (*entity.CapacityStatus, error) {
	userCount, err := s.db.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	unused, err := s.db.CountUsableInvites(ctx)
	if err != nil {
		return nil, err
	}
	return &entity.CapacityStatus{
		Users:         userCount,
		MaxUsers:      s.maxUsers,
		UnusedInvites: unused,
		ToCreate:      ToCreate(s.maxUsers, userCount, unused),
	}, nil
}

func (s *Service) Reconciliations(ctx context.Context) ([]*entity.Reconciliation, error) {
	return s.db.ListReconciliations(ctx, ListLimit)
}

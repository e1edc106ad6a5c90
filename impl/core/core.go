package core

import (
	"context"
	"fmt"
	"log/slog"

	"larder/entity"
	"larder/lib/sl"
)

type AuthService interface {
	Identify(ctx context.Context, token, ip string) entity.CallerIdentity
	Authorize(ctx context.Context, token string) (*entity.User, error)
}

type InviteService interface {
	Create(ctx context.Context) (*entity.InviteCode, error)
	List(ctx context.Context) ([]*entity.InviteCode, error)
	Invalidate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Fill(ctx context.Context, maxUsers int) (*entity.FillResult, error)
	Reconciliations(ctx context.Context) ([]*entity.Reconciliation, error)
	Status(ctx context.Context) (*entity.CapacityStatus, error)
}

type RegistrationService interface {
	Register(ctx context.Context, req *entity.RegisterRequest, meta entity.RequestMeta) (*entity.Session, error)
}

type QuotaService interface {
	Recognize(ctx context.Context, caller entity.CallerIdentity, req *entity.OcrRequest) (*entity.OcrResult, error)
}

type OrderService interface {
	Place(ctx context.Context, caller entity.CallerIdentity, req *entity.OrderRequest) (*entity.OrderReceipt, error)
	ConfirmPayment(ctx context.Context, payload []byte, signature string) error
}

// Core is the single handler facade the HTTP layer talks to.
type Core struct {
	auth         AuthService
	invites      InviteService
	registration RegistrationService
	quota        QuotaService
	orders       OrderService
	log          *slog.Logger
}

func New(auth AuthService, log *slog.Logger) *Core {
	if auth == nil {
		panic("auth service is nil")
	}
	return &Core{
		auth: auth,
		log:  log.With(sl.Module("core")),
	}
}

func (c *Core) SetInviteService(s InviteService) {
	c.invites = s
}

func (c *Core) SetRegistrationService(s RegistrationService) {
	c.registration = s
}

func (c *Core) SetQuotaService(s QuotaService) {
	c.quota = s
}

func (c *Core) SetOrderService(s OrderService) {
	c.orders = s
}

func notConnected(name string) error {
	return fmt.Errorf("%w: %s service not connected", entity.ErrConfiguration, name)
}

func (c *Core) Identify(ctx context.Context, token, ip string) entity.CallerIdentity {
	return c.auth.Identify(ctx, token, ip)
}

func (c *Core) Authorize(ctx context.Context, token string) (*entity.User, error) {
	return c.auth.Authorize(ctx, token)
}

func (c *Core) Register(ctx context.Context, req *entity.RegisterRequest, meta entity.RequestMeta) (*entity.Session, error) {
	if c.registration == nil {
		return nil, notConnected("registration")
	}
	return c.registration.Register(ctx, req, meta)
}

func (c *Core) CreateInvite(ctx context.Context) (*entity.InviteCode, error) {
	if c.invites == nil {
		return nil, notConnected("invite")
	}
	return c.invites.Create(ctx)
}

func (c *Core) ListInvites(ctx context.Context) ([]*entity.InviteCode, error) {
	if c.invites == nil {
		return nil, notConnected("invite")
	}
	return c.invites.List(ctx)
}

func (c *Core) InvalidateInvite(ctx context.Context, id string) error {
	if c.invites == nil {
		return notConnected("invite")
	}
	return c.invites.Invalidate(ctx, id)
}

func (c *Core) DeleteInvite(ctx context.Context, id string) error {
	if c.invites == nil {
		return notConnected("invite")
	}
	return c.invites.Delete(ctx, id)
}

func (c *Core) FillInvites(ctx context.Context, maxUsers int) (*entity.FillResult, error) {
	if c.invites == nil {
		return nil, notConnected("invite")
	}
	return c.invites.Fill(ctx, maxUsers)
}

func (c *Core) ListReconciliations(ctx context.Context) ([]*entity.Reconciliation, error) {
	if c.invites == nil {
		return nil, notConnected("invite")
	}
	return c.invites.Reconciliations(ctx)
}

func (c *Core) Recognize(ctx context.Context, caller entity.CallerIdentity, req *entity.OcrRequest) (*entity.OcrResult, error) {
	if c.quota == nil {
		return nil, notConnected("ocr")
	}
	return c.quota.Recognize(ctx, caller, req)
}

func (c *Core) PlaceOrder(ctx context.Context, caller entity.CallerIdentity, req *entity.OrderRequest) (*entity.OrderReceipt, error) {
	if c.orders == nil {
		return nil, notConnected("order")
	}
	return c.orders.Place(ctx, caller, req)
}

func (c *Core) ConfirmPayment(ctx context.Context, payload []byte, signature string) error {
	if c.orders == nil {
		return notConnected("order")
	}
	return c.orders.ConfirmPayment(ctx, payload, signature)
}

func (c *Core) CapacityStatus(ctx context.Context) (*entity.CapacityStatus, error) {
	if c.invites == nil {
		return nil, notConnected("invite")
	}
	return c.invites.Status(ctx)
}

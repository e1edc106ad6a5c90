package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"larder/entity"
	"larder/lib/sl"
)

type Database interface {
	CreateOrder(ctx context.Context, order *entity.Order) error
	MarkOrderPaid(ctx context.Context, id, paymentID string) error
}

type PaymentLinker interface {
	PaymentLink(order *entity.Order) (string, error)
}

// PaymentVerifier authenticates provider callbacks; nil means nothing to act on.
type PaymentVerifier interface {
	CheckoutCompleted(payload []byte, signature string) (*entity.PaymentConfirmation, error)
}

type Service struct {
	db       Database
	payments PaymentLinker
	verifier PaymentVerifier
	log      *slog.Logger
}

func New(db Database, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With(sl.Module("impl.order")),
	}
}

func (s *Service) SetPaymentLinker(p PaymentLinker) {
	s.payments = p
}

func (s *Service) SetPaymentVerifier(v PaymentVerifier) {
	s.verifier = v
}

// Place records an upgrade request for the caller, anonymous or not. A
// failed payment link does not fail the order: it is already recorded.
func (s *Service) Place(ctx context.Context, caller entity.CallerIdentity, req *entity.OrderRequest) (*entity.OrderReceipt, error) {
	if req == nil || strings.TrimSpace(req.Plan) == "" {
		return nil, fmt.Errorf("%w: plan", entity.ErrMissingFields)
	}
	order := &entity.Order{
		Plan:    strings.TrimSpace(req.Plan),
		Note:    req.Note,
		Contact: req.Contact,
		Status:  entity.OrderStatusPending,
	}
	switch c := caller.(type) {
	case entity.KnownCaller:
		if c.User != nil {
			order.UserID = c.User.ID
		}
	case entity.AnonymousCaller:
	}

	if err := s.db.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log := s.log.With(
		slog.String("order_id", order.ID),
		slog.String("plan", order.Plan),
		slog.String("user", order.UserID),
	)
	log.Info("order placed")

	receipt := &entity.OrderReceipt{ID: order.ID}
	if s.payments == nil {
		return receipt, nil
	}
	link, err := s.payments.PaymentLink(order)
	if err != nil {
		log.Error("payment link failed", sl.Err(err))
		return receipt, nil
	}
	receipt.PaymentLink = link
	return receipt, nil
}

// ConfirmPayment marks the order named by a verified provider callback as
// paid. Unknown orders are logged and acknowledged so the provider stops
// retrying.
func (s *Service) ConfirmPayment(ctx context.Context, payload []byte, signature string) error {
	if s.verifier == nil {
		return fmt.Errorf("%w: payment provider", entity.ErrConfiguration)
	}
	confirmation, err := s.verifier.CheckoutCompleted(payload, signature)
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}
	log := s.log.With(
		slog.String("order_id", confirmation.OrderID),
		slog.String("payment_id", confirmation.PaymentID),
	)

	err = s.db.MarkOrderPaid(ctx, confirmation.OrderID, confirmation.PaymentID)
	if errors.Is(err, entity.ErrNotFound) {
		log.Warn("payment for unknown order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	log.Info("order paid")
	return nil
}

package stripeclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"larder/entity"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const signatureTolerance = 5 * time.Minute

// CheckoutCompleted verifies a webhook delivery and extracts the paid order.
// Other event types and unpaid sessions return nil without error.
func (s *StripeClient) CheckoutCompleted(payload []byte, signature string) (*entity.PaymentConfirmation, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret", entity.ErrConfiguration)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                signatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %v", entity.ErrValidation, err)
	}

	log := s.log.With(
		slog.String("event_id", evt.ID),
		slog.Any("type", evt.Type),
	)
	if evt.Type != stripe.EventTypeCheckoutSessionCompleted {
		log.Debug("ignored event")
		return nil, nil
	}

	var cs stripe.CheckoutSession
	if err = json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", entity.ErrValidation, err)
	}
	log = log.With(slog.String("session_id", cs.ID))
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Info("checkout completed without payment", slog.Any("payment_status", cs.PaymentStatus))
		return nil, nil
	}

	orderID := cs.Metadata["order_id"]
	if orderID == "" {
		orderID = cs.ClientReferenceID
	}
	if orderID == "" {
		log.Warn("checkout session has no order reference")
		return nil, nil
	}

	return &entity.PaymentConfirmation{OrderID: orderID, PaymentID: cs.ID}, nil
}

package stripeclient

import (
	"errors"
	"fmt"
	"log/slog"

	"larder/entity"

	"github.com/stripe/stripe-go/v76"
)

// providerErr flattens an API error into entity.ErrPaymentProvider with the
// status, type and message Stripe returned.
func (s *StripeClient) providerErr(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", entity.ErrPaymentProvider, err)
	}
	s.log.With(
		slog.Int("status", se.HTTPStatusCode),
		slog.String("type", string(se.Type)),
		slog.String("request_id", se.RequestID),
	).Debug("stripe api error")
	return fmt.Errorf("%w: status %d %s: %s", entity.ErrPaymentProvider, se.HTTPStatusCode, se.Type, se.Msg)
}

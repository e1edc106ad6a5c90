package stripeclient

import (
	"fmt"
	"log/slog"
	"strings"

	"larder/entity"
	"larder/internal/config"
	"larder/lib/sl"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeClient issues checkout links for upgrade orders.
type StripeClient struct {
	sc            *client.API
	successUrl    string
	cancelUrl     string
	webhookSecret string
	plans         map[string]config.PlanPrice
	log           *slog.Logger
}

func New(conf config.StripeConfig, logger *slog.Logger) *StripeClient {
	return newWithBackends(conf, nil, logger)
}

func newWithBackends(conf config.StripeConfig, backends *stripe.Backends, logger *slog.Logger) *StripeClient {
	sc := &client.API{}
	sc.Init(conf.APIKey, backends)
	logger.With(
		sl.Secret("api_key", conf.APIKey),
		slog.Int("plans", len(conf.Plans)),
	).Info("stripe payment links enabled")
	return &StripeClient{
		sc:            sc,
		successUrl:    conf.SuccessURL,
		cancelUrl:     conf.CancelURL,
		webhookSecret: conf.WebhookSecret,
		plans:         conf.Plans,
		log:           logger.With(sl.Module("stripe")),
	}
}

// PaymentLink opens a checkout session for the order's plan. Plans without a
// configured price get no link and no error.
func (s *StripeClient) PaymentLink(order *entity.Order) (string, error) {
	price, ok := s.plans[strings.ToLower(order.Plan)]
	if !ok || price.Amount <= 0 {
		return "", nil
	}
	log := s.log.With(
		slog.String("order_id", order.ID),
		slog.String("plan", order.Plan),
		slog.Int64("amount", price.Amount),
		slog.String("currency", price.Currency),
	)

	if s.successUrl == "" {
		return "", fmt.Errorf("missing success url")
	}

	cs, err := s.sc.CheckoutSessions.New(s.sessionParams(order, price))
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", s.providerErr(err))
	}

	log.With(slog.String("session_id", cs.ID)).Info("payment link created")
	return cs.URL, nil
}

func (s *StripeClient) sessionParams(order *entity.Order, price config.PlanPrice) *stripe.CheckoutSessionParams {
	name := price.Name
	if name == "" {
		name = order.Plan
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(price.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(price.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata:          map[string]string{"order_id": order.ID},
		ClientReferenceID: stripe.String(order.ID),
		SuccessURL:        stripe.String(s.successUrl),
	}
	if s.cancelUrl != "" {
		params.CancelURL = stripe.String(s.cancelUrl)
	}
	if strings.Contains(order.Contact, "@") {
		params.CustomerEmail = stripe.String(strings.TrimSpace(order.Contact))
	}
	return params
}

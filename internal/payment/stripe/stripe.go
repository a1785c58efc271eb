// Package stripe is the Stripe Checkout payment gateway.
package stripe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

const metaOrderNumber = "order_number"

// Event types that carry a payment outcome.
const (
	eventCompleted     = "checkout.session.completed"
	eventAsyncSucceed  = "checkout.session.async_payment_succeeded"
	eventAsyncFailed   = "checkout.session.async_payment_failed"
	eventSessionExpiry = "checkout.session.expired"
)

var _ payment.Gateway = (*Gateway)(nil)

// Config holds the Stripe keys and Checkout URLs.
type Config struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
	Currency      string `yaml:"currency" default:"vnd"`
}

// Enabled reports whether keys are configured.
func (c Config) Enabled() bool {
	return c.SecretKey != "" && c.WebhookSecret != ""
}

type createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// Gateway creates Checkout sessions and reads webhook events.
type Gateway struct {
	cfg    Config
	create createSession
}

// New creates a Gateway using the live Stripe API.
func New(cfg Config) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, errors.New("stripe keys are required")
	}
	sc := session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	return newGateway(cfg, sc.New), nil
}

func newGateway(cfg Config, create createSession) *Gateway {
	cfg.Currency = strings.ToLower(cfg.Currency)
	if cfg.Currency == "" {
		cfg.Currency = "vnd"
	}
	return &Gateway{cfg: cfg, create: create}
}

// CreatePayment opens a Checkout session for the order total.
func (g *Gateway) CreatePayment(ctx context.Context, req payment.Request) (*payment.Link, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderNumber),
				},
				UnitAmount: stripe.Int64(toMinor(req.Amount, g.cfg.Currency)),
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{
			metaOrderNumber: req.OrderNumber,
			"request_id":    req.RequestID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.RequestID)

	s, err := g.create(params)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return &payment.Link{
		PayURL:    s.URL,
		OrderID:   req.OrderNumber,
		RequestID: req.RequestID,
		Message:   string(s.Status),
	}, nil
}

// ParseWebhook verifies the signature header and converts a Checkout event
// into a payment result. Other events return payment.ErrIgnoredEvent.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (payment.Result, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return payment.Result{}, errors.Wrap(err, "verify webhook")
	}

	var success bool
	switch string(event.Type) {
	case eventCompleted, eventAsyncSucceed:
		success = true
	case eventAsyncFailed, eventSessionExpiry:
	default:
		return payment.Result{}, payment.ErrIgnoredEvent
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return payment.Result{}, errors.Wrap(err, "decode checkout session")
	}
	number := s.Metadata[metaOrderNumber]
	if number == "" {
		number = s.ClientReferenceID
	}
	if number == "" {
		return payment.Result{}, errors.Errorf("session %s carries no order number", s.ID)
	}

	// Completed sessions with delayed methods are not paid yet.
	if string(event.Type) == eventCompleted && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		success = false
	}

	return payment.Result{
		Method:      order.PaymentStripe,
		OrderNumber: number,
		Success:     success,
		Amount:      fromMinor(s.AmountTotal, string(s.Currency)),
		Reference:   s.ID,
		Message:     string(event.Type),
	}, nil
}

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true, "mga": true,
	"pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func toMinor(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinor(amount int64, currency string) decimal.Decimal {
	if zeroDecimal[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

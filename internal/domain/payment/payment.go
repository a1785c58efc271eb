// Package payment starts online payments for orders and applies the results
// reported back by payment gateways.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/order"
)

var (
	// ErrGateway wraps failures talking to a payment gateway.
	ErrGateway = errors.New("payment gateway error")
	// ErrIgnoredEvent is returned by callback parsers for gateway events that
	// carry no payment outcome.
	ErrIgnoredEvent = errors.New("payment event ignored")
)

// Request describes a payment to create at a gateway.
type Request struct {
	OrderID     int64
	OrderNumber string
	Amount      decimal.Decimal
	// RequestID is unique per attempt; gateways use it for idempotency.
	RequestID string
}

// Link is the gateway answer to a create-payment call.
type Link struct {
	PayURL     string
	OrderID    string
	RequestID  string
	ResultCode int
	Message    string
}

// Gateway creates payments at an external provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req Request) (*Link, error)
}

// Result is a verified payment outcome delivered by a gateway callback.
type Result struct {
	Method      order.PaymentMethod
	OrderNumber string
	Success     bool
	Amount      decimal.Decimal
	Reference   string
	Message     string
}

// Orders is the part of the order service used for payments.
type Orders interface {
	FindOne(ctx context.Context, id int64, requester *auth.Requester) (*order.Order, error)
	ConfirmPayment(ctx context.Context, orderNumber string) (*order.Order, error)
}

// Service routes payments to the gateway matching the order payment method.
type Service struct {
	orders   Orders
	gateways map[order.PaymentMethod]Gateway
	newID    func() string
}

// NewService creates a Service. Methods without a gateway cannot be paid online.
func NewService(orders Orders, gateways map[order.PaymentMethod]Gateway) *Service {
	return &Service{
		orders:   orders,
		gateways: gateways,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Initiate creates a payment for an order the requester may view.
func (s *Service) Initiate(ctx context.Context, orderID int64, requester *auth.Requester) (*Link, error) {
	o, err := s.orders.FindOne(ctx, orderID, requester)
	if err != nil {
		return nil, err
	}
	return s.Start(ctx, o)
}

// Start creates a payment for an already loaded order.
func (s *Service) Start(ctx context.Context, o *order.Order) (*Link, error) {
	if !o.PaymentMethod.Online() {
		return nil, fmt.Errorf("%w: order %s is paid on delivery", order.ErrBadRequest, o.Number)
	}
	if o.PaidAt != nil {
		return nil, fmt.Errorf("%w: order %s is already paid", order.ErrBadRequest, o.Number)
	}
	if o.Status != order.StatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", order.ErrBadRequest, o.Number, o.Status)
	}
	gw, ok := s.gateways[o.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: payment method %s is not available", order.ErrBadRequest, o.PaymentMethod)
	}

	link, err := gw.CreatePayment(ctx, Request{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Amount:      o.TotalAmount,
		RequestID:   s.newID(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGateway, strings.ToLower(string(o.PaymentMethod)), err)
	}
	return link, nil
}

// Complete applies a gateway callback. Failed payments leave the order as is.
func (s *Service) Complete(ctx context.Context, res Result) error {
	lg := zctx.From(ctx).With(
		zap.String("order_number", res.OrderNumber),
		zap.String("method", string(res.Method)),
		zap.String("reference", res.Reference),
	)
	if !res.Success {
		lg.Info("Payment not completed", zap.String("message", res.Message))
		return nil
	}

	o, err := s.orders.ConfirmPayment(ctx, res.OrderNumber)
	if err != nil {
		return errors.Wrap(err, "confirm payment")
	}
	if !res.Amount.IsZero() && !res.Amount.Equal(o.TotalAmount) {
		lg.Warn("Paid amount differs from order total",
			zap.String("paid", res.Amount.StringFixed(2)),
			zap.String("total_amount", o.TotalAmount.StringFixed(2)),
		)
	}
	lg.Info("Payment confirmed")
	return nil
}

package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-lifecycle/internal/domain/pricing"
	"github.com/xenking/order-lifecycle/internal/domain/promotion"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturned   Status = "RETURNED"
)

// ParseStatus converts an external value into a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned:
		return st, true
	default:
		return "", false
	}
}

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentMoMo   PaymentMethod = "MOMO"
	PaymentStripe PaymentMethod = "STRIPE"
)

// ParsePaymentMethod converts an external value into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentCOD, PaymentMoMo, PaymentStripe:
		return m, true
	default:
		return "", false
	}
}

// Online reports whether the method requires a payment gateway round trip.
func (m PaymentMethod) Online() bool {
	return m != PaymentCOD
}

// Order is the aggregate root of a customer purchase.
type Order struct {
	ID                 int64
	Number             string
	UserID             int64
	BranchID           *int64
	AddressID          *int64
	Status             Status
	PaymentMethod      PaymentMethod
	Note               *string
	SubTotal           decimal.Decimal
	DiscountTotal      decimal.Decimal
	TotalAmount        decimal.Decimal
	CancellationReason *string
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Items              []Item
}

// Item is a single line of an order. Gift lines are fully discounted.
type Item struct {
	ID            int64
	OrderID       int64
	VariantID     int64
	Quantity      int
	UnitPrice     decimal.Decimal
	SubTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TotalAmount   decimal.Decimal
	IsGift        bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Insert stores the order with all of its items and assigns their IDs.
	Insert(ctx context.Context, o *Order) error
	// FindByID returns the order with items, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*Order, error)
	// FindByNumber returns the order with items, or ErrNotFound.
	FindByNumber(ctx context.Context, number string) (*Order, error)
	// Update writes the mutable order columns. Items are never rewritten.
	Update(ctx context.Context, o *Order) error
}

// References checks that entities referenced by an order exist.
type References interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	BranchExists(ctx context.Context, id int64) (bool, error)
	AddressExists(ctx context.Context, id int64) (bool, error)
	// MissingVariants returns the subset of ids without a variant row.
	MissingVariants(ctx context.Context, ids []int64) ([]int64, error)
}

// Carts removes the items of the cart an order was placed from.
type Carts interface {
	ClearItems(ctx context.Context, cartID, userID int64) error
}

// UnitOfWork groups repository calls in one transaction. The error returned by
// fn is passed through unchanged after rollback.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NumberSequence yields the per-day sequence used in order numbers.
type NumberSequence interface {
	Next(ctx context.Context, day time.Time) (int64, error)
}

// GiftReconciler materializes auto-gift suggestions into gift lines.
type GiftReconciler interface {
	Reconcile(ctx context.Context, promotions []pricing.AppliedPromotion) ([]promotion.Gift, error)
}

// Package pricing describes the contract of the external pricing engine.
//
// The engine is authoritative: the order service never recomputes prices, it
// only materializes what the summary says and reconciles auto-gift suggestions.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Promotion classification values as reported by the engine.
const (
	PromotionTypeCombo   = "COMBO"
	ComboTypeBuyXGetY    = "BUY_X_GET_Y"
	PromotionLevelAuto   = "AUTO"
	PromotionLevelCoupon = "COUPON"
)

// Item is a requested line sent to the engine.
type Item struct {
	VariantID int64 `json:"variantId"`
	Quantity  int   `json:"quantity"`
}

// Context carries the order-level inputs that influence pricing.
type Context struct {
	UserID     int64   `json:"userId"`
	BranchID   *int64  `json:"branchId,omitempty"`
	AddressID  *int64  `json:"addressId,omitempty"`
	CouponCode *string `json:"couponCode,omitempty"`
}

// Summary is the authoritative price breakdown for a set of items.
type Summary struct {
	Items             []ItemBreakdown    `json:"items"`
	Totals            Totals             `json:"totals"`
	AppliedPromotions []AppliedPromotion `json:"appliedPromotions"`
}

// ItemBreakdown is the priced view of one requested line.
type ItemBreakdown struct {
	VariantID         int64              `json:"variantId"`
	Quantity          int                `json:"quantity"`
	UnitPrice         decimal.Decimal    `json:"unitPrice"`
	SubTotal          decimal.Decimal    `json:"subTotal"`
	DiscountTotal     decimal.Decimal    `json:"discountTotal"`
	TotalAmount       decimal.Decimal    `json:"totalAmount"`
	IsInCombo         bool               `json:"isInCombo"`
	AppliedPromotions []AppliedPromotion `json:"appliedPromotions,omitempty"`
}

// Totals are the order-level amounts computed by the engine.
type Totals struct {
	SubTotal            decimal.Decimal `json:"subTotal"`
	AutoDiscountTotal   decimal.Decimal `json:"autoDiscountTotal"`
	CouponDiscountTotal decimal.Decimal `json:"couponDiscountTotal"`
	DiscountTotal       decimal.Decimal `json:"discountTotal"`
	ShippingFee         decimal.Decimal `json:"shippingFee"`
	TaxTotal            decimal.Decimal `json:"taxTotal"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
}

// AppliedPromotion is a promotion the engine applied or proposes.
type AppliedPromotion struct {
	PromotionID    int64           `json:"promotionId"`
	Name           string          `json:"name"`
	PromotionType  string          `json:"promotionType"`
	ComboType      string          `json:"comboType,omitempty"`
	Level          string          `json:"level"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Suggestions    []Suggestion    `json:"suggestions,omitempty"`
}

// Suggestion describes an auto-gift candidate attached to a promotion.
type Suggestion struct {
	ProductID        int64           `json:"productId"`
	RequiredQuantity int             `json:"requiredQuantity"`
	MissingQuantity  int             `json:"missingQuantity"`
	ProductPrice     decimal.Decimal `json:"productPrice"`
	AutoAdd          bool            `json:"autoAdd"`
}

// Calculator computes a Summary for the requested items.
type Calculator interface {
	Calculate(ctx context.Context, items []Item, pc Context) (*Summary, error)
}

// EngineError is a failure reported by, or on the way to, the pricing engine.
type EngineError struct {
	// StatusCode is the HTTP status of the engine response, zero when no
	// response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *EngineError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("pricing engine: status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return "pricing engine: " + e.Err.Error()
	default:
		return "pricing engine: " + e.Message
	}
}

func (e *EngineError) Unwrap() error { return e.Err }

// Rejected reports whether the engine refused the input itself.
func (e *EngineError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Package promotion turns auto-gift suggestions of the pricing engine into
// concrete free order lines.
package promotion

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-lifecycle/internal/domain/catalog"
	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

// GiftUnavailableError indicates that a suggested gift product has no ACTIVE
// variant, so the order cannot be materialized.
type GiftUnavailableError struct {
	ProductID int64
}

func (e *GiftUnavailableError) Error() string {
	return fmt.Sprintf("gift product %d has no active variant", e.ProductID)
}

// InvalidSuggestionError indicates a malformed auto-gift suggestion.
type InvalidSuggestionError struct {
	PromotionID int64
	ProductID   int64
	Reason      string
}

func (e *InvalidSuggestionError) Error() string {
	return fmt.Sprintf("promotion %d: gift product %d: %s", e.PromotionID, e.ProductID, e.Reason)
}

// Gift is a reconciled free line ready to be appended to an order.
type Gift struct {
	PromotionID   int64
	ProductID     int64
	VariantID     int64
	Quantity      int
	UnitPrice     decimal.Decimal
	SubTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TotalAmount   decimal.Decimal
}

// Totals sums the subtotal and discount of the gifts. The payable amount of a
// gift is always zero, so there is no total to fold.
func Totals(gifts []Gift) (subTotal, discountTotal decimal.Decimal) {
	subTotal, discountTotal = decimal.Zero, decimal.Zero
	for _, g := range gifts {
		subTotal = subTotal.Add(g.SubTotal)
		discountTotal = discountTotal.Add(g.DiscountTotal)
	}
	return subTotal, discountTotal
}

// Qualifies reports whether the promotion is an automatic buy-X-get-Y combo
// with at least one suggestion flagged for automatic addition.
func Qualifies(p pricing.AppliedPromotion) bool {
	if p.PromotionType != pricing.PromotionTypeCombo ||
		p.ComboType != pricing.ComboTypeBuyXGetY ||
		p.Level != pricing.PromotionLevelAuto {
		return false
	}
	for _, s := range p.Suggestions {
		if s.AutoAdd {
			return true
		}
	}
	return false
}

// Reconciler materializes gift lines against the variant catalog.
type Reconciler struct {
	variants catalog.VariantResolver
}

// NewReconciler creates a Reconciler resolving variants through the given resolver.
func NewReconciler(variants catalog.VariantResolver) *Reconciler {
	return &Reconciler{variants: variants}
}

// Reconcile returns one Gift per auto-add suggestion of every qualifying
// promotion. Any unresolvable gift fails the whole reconciliation.
func (r *Reconciler) Reconcile(ctx context.Context, promotions []pricing.AppliedPromotion) ([]Gift, error) {
	var (
		gifts    []Gift
		resolved = make(map[int64]int64)
	)
	for _, p := range promotions {
		if !Qualifies(p) {
			continue
		}
		for _, s := range p.Suggestions {
			if !s.AutoAdd {
				continue
			}
			if s.RequiredQuantity < 1 {
				return nil, &InvalidSuggestionError{
					PromotionID: p.PromotionID,
					ProductID:   s.ProductID,
					Reason:      "required quantity must be at least 1",
				}
			}
			if s.ProductPrice.IsNegative() {
				return nil, &InvalidSuggestionError{
					PromotionID: p.PromotionID,
					ProductID:   s.ProductID,
					Reason:      "negative product price",
				}
			}

			variantID, ok := resolved[s.ProductID]
			if !ok {
				v, err := r.variants.ResolveActive(ctx, s.ProductID)
				if err != nil {
					if errors.Is(err, catalog.ErrNoActiveVariant) {
						return nil, &GiftUnavailableError{ProductID: s.ProductID}
					}
					return nil, errors.Wrapf(err, "resolve variant for product %d", s.ProductID)
				}
				variantID = v.ID
				resolved[s.ProductID] = variantID
			}

			unitPrice := s.ProductPrice.Round(2)
			subTotal := unitPrice.Mul(decimal.NewFromInt(int64(s.RequiredQuantity))).Round(2)
			gifts = append(gifts, Gift{
				PromotionID:   p.PromotionID,
				ProductID:     s.ProductID,
				VariantID:     variantID,
				Quantity:      s.RequiredQuantity,
				UnitPrice:     unitPrice,
				SubTotal:      subTotal,
				DiscountTotal: subTotal,
				TotalAmount:   decimal.Zero,
			})
		}
	}
	return gifts, nil
}

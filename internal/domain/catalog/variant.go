package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNoActiveVariant is returned when a product has no sellable variant.
var ErrNoActiveVariant = errors.New("no active variant")

// VariantStatus is the availability state of a product variant.
type VariantStatus string

const (
	VariantActive   VariantStatus = "ACTIVE"
	VariantInactive VariantStatus = "INACTIVE"
)

// Variant is a concrete purchasable SKU of a product.
type Variant struct {
	ID        int64
	ProductID int64
	SKU       string
	Status    VariantStatus
}

// VariantResolver picks the variant used to materialize a product reference.
type VariantResolver interface {
	// ResolveActive returns the lowest-id ACTIVE variant of the product, or
	// ErrNoActiveVariant when there is none.
	ResolveActive(ctx context.Context, productID int64) (*Variant, error)
}

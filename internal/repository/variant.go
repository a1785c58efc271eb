package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/catalog"
)

const (
	resolveActiveVariantSQL = `SELECT id, product_id, sku, status FROM product_variants
		WHERE product_id = $1 AND status = 'ACTIVE'
		ORDER BY id ASC LIMIT 1`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, sku, status, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, sku = EXCLUDED.sku,
			status = EXCLUDED.status, updated_at = now()`
)

var _ catalog.VariantResolver = (*VariantRepository)(nil)

// VariantRepository provides product variant lookups backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// ResolveActive returns the lowest-id ACTIVE variant of the product.
func (r *VariantRepository) ResolveActive(ctx context.Context, productID int64) (*catalog.Variant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, resolveActiveVariantSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("resolving variant of product %d: %w", productID, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNoActiveVariant
		}
		return nil, fmt.Errorf("resolving variant of product %d: %w", productID, err)
	}
	return &v, nil
}

// Upsert inserts or replaces the variants in one round trip.
func (r *VariantRepository) Upsert(ctx context.Context, variants []catalog.Variant) error {
	batch := &pgx.Batch{}
	for _, v := range variants {
		batch.Queue(upsertVariantSQL, v.ID, v.ProductID, v.SKU, string(v.Status))
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d variants: %w", len(variants), err)
	}
	return nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v      catalog.Variant
		status string
	)
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &status)
	v.Status = catalog.VariantStatus(status)
	return v, err
}

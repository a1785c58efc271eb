package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/order"
)

const clearCartItemsSQL = `DELETE FROM cart_items
	WHERE cart_id = (SELECT id FROM carts WHERE id = $1 AND user_id = $2)`

var _ order.Carts = (*CartRepository)(nil)

// CartRepository implements order.Carts backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ClearItems empties the cart if it belongs to the user. Carts of other users
// are left untouched.
func (r *CartRepository) ClearItems(ctx context.Context, cartID, userID int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearCartItemsSQL, cartID, userID); err != nil {
		return fmt.Errorf("clearing cart %d: %w", cartID, err)
	}
	return nil
}

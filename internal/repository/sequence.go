package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/order"
)

const nextOrderNumberSQL = `SELECT nextval('order_number_seq')`

var _ order.NumberSequence = (*OrderNumberSequence)(nil)

// OrderNumberSequence draws order numbers from a PostgreSQL sequence. The
// sequence is global, so numbers keep growing across days.
type OrderNumberSequence struct {
	pool *pgxpool.Pool
}

// NewOrderNumberSequence returns an OrderNumberSequence that uses the given pool.
func NewOrderNumberSequence(pool *pgxpool.Pool) *OrderNumberSequence {
	return &OrderNumberSequence{pool: pool}
}

// Next returns the next sequence value. The day is ignored.
func (s *OrderNumberSequence) Next(ctx context.Context, _ time.Time) (int64, error) {
	var n int64
	if err := conn(ctx, s.pool).QueryRow(ctx, nextOrderNumberSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return n, nil
}

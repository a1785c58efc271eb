package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id, branch_id, address_id, status, payment_method, note,
		sub_total, discount_total, total_amount, cancellation_reason, paid_at, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (order_number, user_id, branch_id, address_id, status, payment_method, note,
		sub_total, discount_total, total_amount, cancellation_reason, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, variant_id, quantity, unit_price,
		sub_total, discount_total, total_amount, is_gift)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	getOrderByIDSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	listOrderItemsSQL = `SELECT id, order_id, variant_id, quantity, unit_price,
		sub_total, discount_total, total_amount, is_gift
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderSQL = `UPDATE orders SET user_id = $2, branch_id = $3, address_id = $4, status = $5,
		payment_method = $6, note = $7, cancellation_reason = $8, paid_at = $9, updated_at = $10
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists the order and its items, assigning generated IDs. Callers
// wrap it in a UnitOfWork so that the order and its items land together.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)

	err := q.QueryRow(ctx, insertOrderSQL,
		o.Number, o.UserID, o.BranchID, o.AddressID, string(o.Status), string(o.PaymentMethod), o.Note,
		o.SubTotal, o.DiscountTotal, o.TotalAmount, o.CancellationReason, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		batch.Queue(insertOrderItemSQL,
			it.OrderID, it.VariantID, it.Quantity, it.UnitPrice,
			it.SubTotal, it.DiscountTotal, it.TotalAmount, it.IsGift,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&it.ID)
		})
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.Number, err)
	}

	return nil
}

// FindByID returns the order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.find(ctx, getOrderByIDSQL, id)
}

// FindByNumber returns the order with its items.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.find(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) find(ctx context.Context, sql string, key any) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting order %v: %w", key, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %v: %w", key, err)
	}

	rows, err = q.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", o.ID, err)
	}
	return &o, nil
}

// Update writes the mutable columns of the order. Items are immutable.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.ID, o.UserID, o.BranchID, o.AddressID, string(o.Status),
		string(o.PaymentMethod), o.Note, o.CancellationReason, o.PaidAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		method string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.BranchID, &o.AddressID, &status, &method, &o.Note,
		&o.SubTotal, &o.DiscountTotal, &o.TotalAmount, &o.CancellationReason, &o.PaidAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it  order.Item
		qty int32
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.VariantID, &qty, &it.UnitPrice,
		&it.SubTotal, &it.DiscountTotal, &it.TotalAmount, &it.IsGift,
	)
	it.Quantity = int(qty)
	return it, err
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/order"
)

const (
	userExistsSQL    = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	branchExistsSQL  = `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`
	addressExistsSQL = `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1)`

	missingVariantsSQL = `SELECT u.id FROM unnest($1::bigint[]) AS u(id)
		WHERE NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.id = u.id)
		ORDER BY u.id`
)

var _ order.References = (*ReferenceRepository)(nil)

// ReferenceRepository answers existence checks for entities an order points to.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository returns a ReferenceRepository that uses the given pool.
func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// UserExists reports whether the user exists.
func (r *ReferenceRepository) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, userExistsSQL, "user", id)
}

// BranchExists reports whether the branch exists.
func (r *ReferenceRepository) BranchExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, branchExistsSQL, "branch", id)
}

// AddressExists reports whether the address exists.
func (r *ReferenceRepository) AddressExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, addressExistsSQL, "address", id)
}

// MissingVariants returns the IDs without a product_variants row, ascending.
func (r *ReferenceRepository) MissingVariants(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.pool).Query(ctx, missingVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("checking variants: %w", err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("checking variants: %w", err)
	}
	return missing, nil
}

func (r *ReferenceRepository) exists(ctx context.Context, sql, entity string, id int64) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, sql, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking %s %d: %w", entity, id, err)
	}
	return ok, nil
}

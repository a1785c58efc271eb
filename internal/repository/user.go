package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

const (
	listAdminIDsSQL = `SELECT id FROM users WHERE role IN ('ADMIN', 'SHOP_OWNER') ORDER BY id`

	getUserByIDSQL = `SELECT id, email, full_name, role, branch_id, locale FROM users WHERE id = $1`
)

// UserRepository provides user lookups used for notifications.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// AdminIDs returns the IDs of users with shop-wide authority.
func (r *UserRepository) AdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAdminIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	return ids, nil
}

// GetByID returns the user or auth.ErrUserNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.BranchID, &u.Locale)
	u.Role = auth.Role(role)
	return u, err
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/catalog"
	"github.com/xenking/order-lifecycle/internal/handler"
	"github.com/xenking/order-lifecycle/internal/repository"
)

type variantJSON struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"productId"`
	SKU       string `json:"sku"`
	Status    string `json:"status"`
}

type seedUser struct {
	ID       int64
	Email    string
	Name     string
	Role     auth.Role
	BranchID *int64
}

const (
	upsertBranchSQL = `INSERT INTO branches (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertUserSQL = `INSERT INTO users (id, email, full_name, role, branch_id) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name,
			role = EXCLUDED.role, branch_id = EXCLUDED.branch_id`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, line1, city) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, line1 = EXCLUDED.line1, city = EXCLUDED.city`

	upsertCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id`

	resetSequencesSQL = `SELECT
		setval('branches_id_seq', (SELECT max(id) FROM branches)),
		setval('users_id_seq', (SELECT max(id) FROM users)),
		setval('addresses_id_seq', (SELECT max(id) FROM addresses)),
		setval('carts_id_seq', (SELECT max(id) FROM carts))`
)

var (
	branchCentral int64 = 1
	branchHarbour int64 = 2

	users = []seedUser{
		{ID: 1, Email: "admin@example.com", Name: "Admin", Role: auth.RoleAdmin},
		{ID: 2, Email: "owner@example.com", Name: "Shop Owner", Role: auth.RoleShopOwner},
		{ID: 3, Email: "staff.central@example.com", Name: "Central Staff", Role: auth.RoleStaff, BranchID: &branchCentral},
		{ID: 4, Email: "staff.harbour@example.com", Name: "Harbour Staff", Role: auth.RoleStaff, BranchID: &branchHarbour},
		{ID: 5, Email: "alice@example.com", Name: "Alice Nguyen", Role: auth.RoleCustomer},
		{ID: 6, Email: "bob@example.com", Name: "Bob Tran", Role: auth.RoleCustomer},
	}
)

func main() {
	var (
		databaseURL  string
		variantsFile string
		jwtSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to product variants JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "print bearer tokens for seeded users (or ORDERS_JWT_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("ORDERS_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if jwtSecret != "" {
		if err := printTokens(jwtSecret); err != nil {
			slog.Error("sign tokens", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVariants(ctx, repository.NewVariantRepository(pool), variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}

	if err := seedAccounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed accounts")
	}

	return nil
}

func seedVariants(ctx context.Context, repo *repository.VariantRepository, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var rows []variantJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	variants := make([]catalog.Variant, 0, len(rows))
	for _, v := range rows {
		variants = append(variants, catalog.Variant{
			ID:        v.ID,
			ProductID: v.ProductID,
			SKU:       v.SKU,
			Status:    catalog.VariantStatus(v.Status),
		})
	}

	if err := repo.Upsert(ctx, variants); err != nil {
		return errors.Wrap(err, "upsert variants")
	}

	slog.Info("upserted variants", slog.Int("count", len(variants)))
	return nil
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for id, name := range map[int64]string{branchCentral: "Central", branchHarbour: "Harbour"} {
		if _, err := tx.Exec(ctx, upsertBranchSQL, id, name); err != nil {
			return errors.Wrapf(err, "upsert branch %d", id)
		}
	}

	for _, u := range users {
		if _, err := tx.Exec(ctx, upsertUserSQL, u.ID, u.Email, u.Name, string(u.Role), u.BranchID); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.Email)
		}
		slog.Info("upserted user", slog.Int64("id", u.ID), slog.String("role", string(u.Role)))
	}

	// Alice owns address 1 and cart 1, Bob owns address 2.
	if _, err := tx.Exec(ctx, upsertAddressSQL, int64(1), int64(5), "12 Nguyen Hue", "Ho Chi Minh City"); err != nil {
		return errors.Wrap(err, "upsert address 1")
	}
	if _, err := tx.Exec(ctx, upsertAddressSQL, int64(2), int64(6), "7 Hang Bai", "Ha Noi"); err != nil {
		return errors.Wrap(err, "upsert address 2")
	}
	if _, err := tx.Exec(ctx, upsertCartSQL, int64(1), int64(5)); err != nil {
		return errors.Wrap(err, "upsert cart")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = 1`); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	if _, err := tx.Exec(ctx, `INSERT INTO cart_items (cart_id, variant_id, quantity) VALUES (1, 1001, 2), (1, 1201, 1)`); err != nil {
		return errors.Wrap(err, "fill cart")
	}

	if _, err := tx.Exec(ctx, resetSequencesSQL); err != nil {
		return errors.Wrap(err, "reset sequences")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	slog.Info("seeded accounts", slog.Int("users", len(users)))
	return nil
}

func printTokens(secret string) error {
	sec, err := handler.NewSecurity(handler.SecurityConfig{Secret: []byte(secret)})
	if err != nil {
		return err
	}
	exp := jwt.NewNumericDate(time.Now().Add(24 * time.Hour))
	for _, u := range users {
		token, err := sec.Sign(handler.Claims{
			Role:     string(u.Role),
			BranchID: u.BranchID,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   strconv.FormatInt(u.ID, 10),
				Issuer:    os.Getenv("ORDERS_JWT_ISSUER"),
				ExpiresAt: exp,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "sign token for %s", u.Email)
		}
		slog.Info("bearer token", slog.String("email", u.Email), slog.String("token", token))
	}
	return nil
}

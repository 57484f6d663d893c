// Package dbtest connects integration tests to the database named by
// TEST_DB_DSN.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"pawmarket/internal/migrate"
)

// Pool returns a migrated pool with every table emptied. The test is skipped
// when TEST_DB_DSN is unset.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `
TRUNCATE cart_items, carts, order_lines, orders, products, addresses, shipping_rates, tokens
RESTART IDENTITY CASCADE
`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE order_counters SET value = 1000 WHERE name = 'orders'`); err != nil {
		t.Fatalf("reset counter: %v", err)
	}
	return pool
}

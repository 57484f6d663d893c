package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pawmarket/internal/domain"
)

// DefaultTxAttempts bounds RunInTx when the caller passes a non-positive value.
const DefaultTxAttempts = 5

// SQLSTATE codes that mean "run the whole transaction again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// RunInTx executes fn in a REPEATABLE READ transaction and commits it. When
// the transaction loses a race against a concurrent writer the whole function
// is re-run against a fresh snapshot, up to maxAttempts times; after that the
// error wraps domain.ErrTxConflict. Errors returned by fn that are not
// conflicts abort immediately.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, maxAttempts int, fn func(pgx.Tx) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultTxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := runOnce(ctx, pool, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		if err := sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrTxConflict, maxAttempts, lastErr)
}

func runOnce(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsRetryable reports whether err is a transient write conflict.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return true
	}
	return false
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(attempt*attempt) * 5 * time.Millisecond
	jitter := time.Duration(rand.Int64N(int64(5 * time.Millisecond)))
	t := time.NewTimer(base + jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txAttempts bounds retries of transactions aborted by serialization failures or deadlocks.
const txAttempts = 3

func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
	return withTxOptions(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func withTxOptions(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(context.Context, pgx.Tx) error) error {
	if pool == nil {
		return errors.New("postgres pool is nil")
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithTx runs fn in a read-committed transaction bounded by the query timeout. Two
// concurrent likes or requests on the same pair can deadlock on the match row; such
// transactions are replayed from the start.
func (d *DB) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if d == nil {
		return errors.New("postgres db is nil")
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = WithTx(ctx, d.pool, fn)
		if !retryableTx(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func retryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}

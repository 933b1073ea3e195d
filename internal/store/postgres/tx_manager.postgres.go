// internal/store/postgres/tx_manager.postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

type TxManager struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	maxRetries     uint64
	logger         *slog.Logger
}

type TxOptions struct {
	// AcquireTimeout is how long a caller waits for a free connection
	// before the attempt counts as StoreUnavailable.
	AcquireTimeout time.Duration
	// MaxRetries bounds how often a StoreUnavailable attempt is repeated.
	MaxRetries uint64
}

func NewTxManager(pool *pgxpool.Pool, opts TxOptions, logger *slog.Logger) *TxManager {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxManager{
		pool:           pool,
		acquireTimeout: opts.AcquireTimeout,
		maxRetries:     opts.MaxRetries,
		logger:         logger.With("component", "tx_manager"),
	}
}

type txKey struct{}

// defaultStatementTimeout bounds standalone statements when no timeout is configured.
const defaultStatementTimeout = 5 * time.Second

// querier is what pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn returns the transaction carried by ctx, or the pool for standalone
// statements. Outside a transaction the returned context is bounded by
// timeout, so a caller without a deadline cannot wait forever on an
// exhausted pool; the expiry surfaces as ErrStoreUnavailable via classify.
func conn(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) (querier, context.Context, context.CancelFunc) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, ctx, func() {}
	}
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	return pool, sctx, cancel
}

func (tm *TxManager) Ping(ctx context.Context) error {
	return classify(tm.pool.Ping(ctx))
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE serialize writers of the same invoice.
// A call made while a transaction is already in ctx joins it.
// Attempts failing with ErrStoreUnavailable are retried with exponential
// backoff; fn must therefore be safe to run again from scratch.
func (tm *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := tm.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, domainErr.ErrStoreUnavailable) && ctx.Err() == nil {
			tm.logger.Warn("transaction attempt failed, retrying", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0 // bounded by attempt count and ctx instead
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, tm.maxRetries), ctx))
}

func (tm *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	// 1. Acquire. Blocks while the pool is exhausted, up to acquireTimeout.
	acquireCtx, cancel := context.WithTimeout(ctx, tm.acquireTimeout)
	c, err := tm.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: acquire connection: %w", domainErr.ErrStoreUnavailable, err)
	}
	defer c.Release()

	// 2. Begin
	tx, err := c.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}

	// Ensure rollback on panic, error or cancellation. Rollback gets its own
	// context so a cancelled request still cleans up the connection.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	// 3. Inject tx into context
	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	// 4. Commit
	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

var _ discount.UnitOfWork = (*TxRunner)(nil)

// TxRunner implements discount.UnitOfWork over a pgx connection pool. Every
// mutation made through the Tx handed to fn commits or rolls back as one.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner returns a TxRunner over the given pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Within begins a transaction, runs fn, and commits when fn returns nil.
// Any error from fn (or the commit) rolls the transaction back.
func (r *TxRunner) Within(ctx context.Context, fn func(ctx context.Context, tx discount.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		// Rollback after a successful commit returns pgx.ErrTxClosed, which
		// is fine to ignore.
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgxTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Assignments() discount.Ledger {
	return NewAssignmentRepository(t.tx)
}

func (t *pgxTx) Audits() discount.AuditLog {
	return NewAuditRepository(t.tx)
}

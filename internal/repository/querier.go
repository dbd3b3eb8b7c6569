package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vam12375/muying-mall-sub003/internal/service"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every repository method works both inside and outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner opens independent top-level transactions on the shared pool. It
// never joins a caller's transaction: each RunInTx call is its own
// all-or-nothing unit of work.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(service.Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction error: %v", err)
	}

	if err := fn(NewTxStore(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %v", err)
	}
	return nil
}

// TxStore composes the per-entity repositories over one open transaction and
// implements service.Store.
type TxStore struct {
	*OrderRepository
	*PaymentRepository
	*RefundRepository
	*AccountRepository
	*StateLogRepository
}

func NewTxStore(q Querier) *TxStore {
	return &TxStore{
		OrderRepository:    NewOrderRepository(q),
		PaymentRepository:  NewPaymentRepository(q),
		RefundRepository:   NewRefundRepository(q),
		AccountRepository:  NewAccountRepository(q),
		StateLogRepository: NewStateLogRepository(q),
	}
}

// Reader serves lock-free reads straight from the pool, outside any unit of
// work, and implements service.Reader.
type Reader struct {
	*OrderRepository
	*PaymentRepository
	*RefundRepository
	*AccountRepository
	*StateLogRepository
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{
		OrderRepository:    NewOrderRepository(db),
		PaymentRepository:  NewPaymentRepository(db),
		RefundRepository:   NewRefundRepository(db),
		AccountRepository:  NewAccountRepository(db),
		StateLogRepository: NewStateLogRepository(db),
	}
}

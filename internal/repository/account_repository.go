package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type AccountRepository struct {
	q Querier
}

func NewAccountRepository(q Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

const accountColumns = `id, user_id, balance, frozen, created_at, updated_at`

func (r *AccountRepository) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return r.scanAccount(r.q.QueryRowContext(ctx, query, userID))
}

// GetAccountByUserForUpdate locks the account row so concurrent balance
// changes for the same user serialize.
func (r *AccountRepository) GetAccountByUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`
	return r.scanAccount(r.q.QueryRowContext(ctx, query, userID))
}

func (r *AccountRepository) UpdateAccountBalance(ctx context.Context, a *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2, frozen = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, a.ID, a.Balance, a.Frozen, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("account update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, a.ID)
	}
	return nil
}

func (r *AccountRepository) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, amount, balance_before, balance_after, cause_type, cause_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.AccountID, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.CauseType, e.CauseID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger entry insert error: %v", err)
	}
	return nil
}

func (r *AccountRepository) scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}

	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Balance,
		&account.Frozen,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account scan error: %v", err)
	}
	return account, nil
}

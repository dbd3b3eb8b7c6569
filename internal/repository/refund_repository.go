package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type RefundRepository struct {
	q Querier
}

func NewRefundRepository(q Querier) *RefundRepository {
	return &RefundRepository{q: q}
}

const refundColumns = `id, order_id, payment_id, user_id, amount, reason, status, evidence, created_at, updated_at`

func (r *RefundRepository) CreateRefund(ctx context.Context, ref *domain.Refund) error {
	query := `
		INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		ref.ID, ref.OrderID, ref.PaymentID, ref.UserID, ref.Amount,
		ref.Reason, ref.Status, pq.Array(ref.Evidence), ref.CreatedAt, ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("refund create error: %v", err)
	}
	return nil
}

func (r *RefundRepository) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`
	return r.scanRefund(r.q.QueryRowContext(ctx, query, id))
}

func (r *RefundRepository) GetRefundForUpdate(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1 FOR UPDATE`
	return r.scanRefund(r.q.QueryRowContext(ctx, query, id))
}

func (r *RefundRepository) UpdateRefund(ctx context.Context, ref *domain.Refund) error {
	query := `
		UPDATE refunds
		SET status = $2, reason = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, ref.ID, ref.Status, ref.Reason, ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("refund update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRefundNotFound, ref.ID)
	}
	return nil
}

func (r *RefundRepository) scanRefund(row *sql.Row) (*domain.Refund, error) {
	refund := &domain.Refund{}
	var evidence pq.StringArray

	err := row.Scan(
		&refund.ID,
		&refund.OrderID,
		&refund.PaymentID,
		&refund.UserID,
		&refund.Amount,
		&refund.Reason,
		&refund.Status,
		&evidence,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRefundNotFound
		}
		return nil, fmt.Errorf("refund scan error: %v", err)
	}

	refund.Evidence = []string(evidence)
	return refund, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type OrderRepository struct {
	q Querier
}

func NewOrderRepository(q Querier) *OrderRepository {
	return &OrderRepository{q: q}
}

const orderColumns = `id, order_no, user_id, total_amount, payable_amount, status, payment_id, created_at, paid_at, updated_at`

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.q.QueryRowContext(ctx, query, id))
}

// GetOrderForUpdate locks the order row until the surrounding transaction
// ends.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOrder(r.q.QueryRowContext(ctx, query, id))
}

func (r *OrderRepository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $2, payment_id = $3, paid_at = $4, updated_at = $5
		WHERE id = $1
	`

	var paymentID interface{}
	if o.PaymentID != uuid.Nil {
		paymentID = o.PaymentID
	}

	result, err := r.q.ExecContext(ctx, query, o.ID, o.Status, paymentID, o.PaidAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("order update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, o.ID)
	}
	return nil
}

func (r *OrderRepository) scanOrder(row *sql.Row) (*domain.Order, error) {
	order := &domain.Order{}
	var paymentID uuid.NullUUID
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.OrderNo,
		&order.UserID,
		&order.TotalAmount,
		&order.PayableAmount,
		&order.Status,
		&paymentID,
		&order.CreatedAt,
		&paidAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order scan error: %v", err)
	}

	if paymentID.Valid {
		order.PaymentID = paymentID.UUID
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return order, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type PaymentRepository struct {
	q Querier
}

func NewPaymentRepository(q Querier) *PaymentRepository {
	return &PaymentRepository{q: q}
}

const paymentColumns = `id, order_id, order_no, user_id, amount, method, status, trade_no, expire_at, created_at, updated_at`

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var tradeNo interface{}
	if p.TradeNo != "" {
		tradeNo = p.TradeNo
	}

	_, err := r.q.ExecContext(ctx, query,
		p.ID, p.OrderID, p.OrderNo, p.UserID, p.Amount, p.Method, p.Status,
		tradeNo, p.ExpireAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("payment create error: %v", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanPayment(r.q.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return r.scanPayment(r.q.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetPaymentByOrderNo(ctx context.Context, orderNo string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_no = $1 ORDER BY created_at DESC LIMIT 1`
	return r.scanPayment(r.q.QueryRowContext(ctx, query, orderNo))
}

func (r *PaymentRepository) GetPaymentByOrderNoForUpdate(ctx context.Context, orderNo string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_no = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`
	return r.scanPayment(r.q.QueryRowContext(ctx, query, orderNo))
}

// UpdatePayment writes status and trade_no. trade_no is guarded in SQL so a
// stored value is never overwritten: first writer wins.
func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2,
			trade_no = COALESCE(trade_no, $3),
			updated_at = $4
		WHERE id = $1
	`

	var tradeNo interface{}
	if p.TradeNo != "" {
		tradeNo = p.TradeNo
	}

	result, err := r.q.ExecContext(ctx, query, p.ID, p.Status, tradeNo, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payment update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, p.ID)
	}
	return nil
}

// ListStalePayments returns payments still awaiting a gateway outcome whose
// last update is older than the threshold; input for the polling fallback.
func (r *PaymentRepository) ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4
	`

	rows, err := r.q.QueryContext(ctx, query,
		domain.PaymentStatusPending, domain.PaymentStatusProcessing, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("stale payments query error: %v", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p := domain.Payment{}
		var tradeNo sql.NullString
		err := rows.Scan(
			&p.ID, &p.OrderID, &p.OrderNo, &p.UserID, &p.Amount, &p.Method,
			&p.Status, &tradeNo, &p.ExpireAt, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("payment scan error: %v", err)
		}
		if tradeNo.Valid {
			p.TradeNo = tradeNo.String
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) scanPayment(row *sql.Row) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var tradeNo sql.NullString

	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.OrderNo,
		&payment.UserID,
		&payment.Amount,
		&payment.Method,
		&payment.Status,
		&tradeNo,
		&payment.ExpireAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment scan error: %v", err)
	}

	if tradeNo.Valid {
		payment.TradeNo = tradeNo.String
	}
	return payment, nil
}

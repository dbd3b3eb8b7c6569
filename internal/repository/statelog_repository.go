package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

// StateLogRepository is append-only: state_logs rows are never updated or
// deleted.
type StateLogRepository struct {
	q Querier
}

func NewStateLogRepository(q Querier) *StateLogRepository {
	return &StateLogRepository{q: q}
}

func (r *StateLogRepository) AppendStateLog(ctx context.Context, l *domain.StateLog) error {
	query := `
		INSERT INTO state_logs (id, entity, entity_id, from_state, to_state, operator, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		l.ID, l.Entity, l.EntityID, l.FromState, l.ToState, l.Operator, l.Reason, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("state log append error: %v", err)
	}
	return nil
}

func (r *StateLogRepository) ListStateLogs(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.StateLog, error) {
	query := `
		SELECT id, entity, entity_id, from_state, to_state, operator, reason, created_at
		FROM state_logs
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("state log query error: %v", err)
	}
	defer rows.Close()

	var logs []domain.StateLog
	for rows.Next() {
		l := domain.StateLog{}
		err := rows.Scan(&l.ID, &l.Entity, &l.EntityID, &l.FromState, &l.ToState, &l.Operator, &l.Reason, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("state log scan error: %v", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

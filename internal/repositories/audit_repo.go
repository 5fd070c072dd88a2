package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policy-oracle/backend/internal/models"
)

const maxAuditPage = 200

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// ListForEscrow returns an escrow's trail oldest first, so transitions read
// in the order they happened. A non-empty actionPrefix narrows the trail,
// e.g. "escrow_status_" for status changes only.
func (r *AuditRepo) ListForEscrow(ctx context.Context, escrowID uuid.UUID, actionPrefix string, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > maxAuditPage {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		  AND ($3 = '' OR starts_with(action, $3))
		ORDER BY created_at, id
		LIMIT $4 OFFSET $5
	`, models.AuditEntityEscrow, escrowID, actionPrefix, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.AuditLog, 0, limit)
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

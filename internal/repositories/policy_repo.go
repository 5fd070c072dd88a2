package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

func (r *PolicyRepo) Create(ctx context.Context, p *models.Policy) error {
	guardians := p.Guardians
	if guardians == nil {
		guardians = []string{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO policies (name, threshold, max_amount, timelock_seconds, roles_root, guardians, active)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.Name, p.Threshold, numericArg(p.MaxAmount), p.TimelockSeconds, p.RolesRoot, guardians, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PolicyRepo) Get(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	var (
		p         models.Policy
		maxAmount *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, threshold, max_amount::text, timelock_seconds, roles_root, guardians,
		       active, created_at, updated_at
		FROM policies WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Threshold, &maxAmount, &p.TimelockSeconds, &p.RolesRoot, &p.Guardians,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, services.NotFoundError("policy", id)
	}
	if err != nil {
		return nil, err
	}

	if p.MaxAmount, err = parseNumericPtr(maxAmount); err != nil {
		return nil, fmt.Errorf("policy %s max_amount: %w", p.ID, err)
	}
	return &p, nil
}

// SetRolesRoot replaces the guardian set of a policy together with its root.
func (r *PolicyRepo) SetRolesRoot(ctx context.Context, id uuid.UUID, root string, guardians []string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE policies SET roles_root = $1, guardians = $2, updated_at = now() WHERE id = $3
	`, root, guardians, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.NotFoundError("policy", id)
	}
	return nil
}

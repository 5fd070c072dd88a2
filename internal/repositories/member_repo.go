package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
)

// MemberRepo reads vault membership. Membership is managed elsewhere; this
// service only looks members up.
type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) ExistsByAddress(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM members WHERE lower(address) = lower($1))
	`, address).Scan(&exists)
	return exists, err
}

// GetByAddress returns the oldest membership of address.
func (r *MemberRepo) GetByAddress(ctx context.Context, address string) (*models.Member, error) {
	var m models.Member
	err := r.pool.QueryRow(ctx, `
		SELECT id, vault_id, address, role, created_at
		FROM members WHERE lower(address) = lower($1)
		ORDER BY created_at ASC LIMIT 1
	`, address).Scan(&m.ID, &m.VaultID, &m.Address, &m.Role, &m.CreatedAt)
	if isNoRows(err) {
		return nil, services.NotFoundError("member", address)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

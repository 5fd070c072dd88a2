package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
)

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

// Insert relies on the (escrow_id, guardian_id) unique key; a conflict is
// reported as a duplicate approval.
func (r *ApprovalRepo) Insert(ctx context.Context, a *models.Approval) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO approvals (id, escrow_id, guardian_id, guardian_address, signature, merkle_proof, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.EscrowID, a.GuardianID, a.GuardianAddress, a.Signature, a.MerkleProof, a.ApprovedAt)
	if isUniqueViolation(err) {
		return services.DuplicateApprovalError(a.EscrowID, a.GuardianID)
	}
	return err
}

func (r *ApprovalRepo) Delete(ctx context.Context, escrowID, guardianID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM approvals WHERE escrow_id = $1 AND guardian_id = $2
	`, escrowID, guardianID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ApprovalRepo) ListByEscrow(ctx context.Context, escrowID uuid.UUID) ([]models.Approval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, escrow_id, guardian_id, guardian_address, signature, merkle_proof, approved_at
		FROM approvals WHERE escrow_id = $1
		ORDER BY approved_at ASC, id ASC
	`, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Approval
	for rows.Next() {
		var a models.Approval
		if err := rows.Scan(&a.ID, &a.EscrowID, &a.GuardianID, &a.GuardianAddress, &a.Signature, &a.MerkleProof, &a.ApprovedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

package services

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
)

// EscrowStore persists escrows. UpdateStatus is a compare-and-swap on the
// current status and reports whether the row was changed.
type EscrowStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetByOnChainID(ctx context.Context, onChainID *big.Int) (*models.Escrow, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.EscrowStatus) (bool, error)
	MarkOnChain(ctx context.Context, id uuid.UUID, ref models.OnChainRef) (bool, error)
	MarkExecuted(ctx context.Context, id uuid.UUID, txHash string) (bool, error)
	ListByStatus(ctx context.Context, status models.EscrowStatus, updatedBefore time.Time, limit int) ([]models.Escrow, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error)
	// ListReleasable returns on-chain escrows whose scheduled release is due.
	ListReleasable(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error)
}

type PolicyStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Policy, error)
}

type MemberStore interface {
	ExistsByAddress(ctx context.Context, address string) (bool, error)
}

// ApprovalStore persists approvals. Insert must fail with a
// DuplicateApproval error when (escrow, guardian) already exists.
type ApprovalStore interface {
	Insert(ctx context.Context, a *models.Approval) error
	Delete(ctx context.Context, escrowID, guardianID uuid.UUID) (bool, error)
	ListByEscrow(ctx context.Context, escrowID uuid.UUID) ([]models.Approval, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

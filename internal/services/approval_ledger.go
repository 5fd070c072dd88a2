package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
)

// ApprovalLedger owns the per-guardian approvals of escrows. The store's
// unique (escrow_id, guardian_id) key is what makes counting idempotent; the
// Has pre-check only turns the common case into a friendlier error.
type ApprovalLedger struct {
	store ApprovalStore
	now   func() time.Time
}

func NewApprovalLedger(store ApprovalStore, now func() time.Time) *ApprovalLedger {
	if now == nil {
		now = time.Now
	}
	return &ApprovalLedger{store: store, now: now}
}

func (l *ApprovalLedger) Add(ctx context.Context, a models.Approval) (*models.Approval, error) {
	existing, err := l.store.ListByEscrow(ctx, a.EscrowID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.GuardianID == a.GuardianID {
			return nil, DuplicateApprovalError(a.EscrowID, a.GuardianID)
		}
	}

	a.ID = uuid.New()
	a.ApprovedAt = l.now().UTC()
	if err := l.store.Insert(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (l *ApprovalLedger) Revoke(ctx context.Context, escrowID, guardianID uuid.UUID) error {
	deleted, err := l.store.Delete(ctx, escrowID, guardianID)
	if err != nil {
		return err
	}
	if !deleted {
		return newError(KindNoSuchApproval, nil, "guardian %s has no approval for escrow %s", guardianID, escrowID)
	}
	return nil
}

func (l *ApprovalLedger) List(ctx context.Context, escrowID uuid.UUID) ([]models.Approval, error) {
	return l.store.ListByEscrow(ctx, escrowID)
}

package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/merkle"
	"github.com/policy-oracle/backend/internal/models"
	"go.uber.org/zap"
)

// Authorizer decides whether an approval's guardian belongs to the policy's
// authorization set.
//
// With a roles root and a proof it checks Merkle inclusion, re-deriving the
// proof from the policy's guardian list when the stored one no longer
// verifies. Without Merkle
// data it falls back to the live member registry, which is not
// cryptographically authoritative and exists for policies created before
// roles roots were introduced.
type Authorizer struct {
	members MemberStore
	log     *zap.Logger
}

func NewAuthorizer(members MemberStore, log *zap.Logger) *Authorizer {
	return &Authorizer{members: members, log: log}
}

func (a *Authorizer) Authorize(ctx context.Context, approval models.Approval, policy *models.Policy) (bool, error) {
	if policy.RolesRoot != "" && approval.MerkleProof != nil {
		if merkle.Verify(approval.GuardianAddress, policy.RolesRoot, approval.MerkleProof) {
			return true, nil
		}
		// a stored proof goes stale when the roles root is rotated; the
		// current guardian list is authoritative when the policy carries one
		current := ProofFor(approval.GuardianAddress, policy)
		if current == nil {
			return false, nil
		}
		return merkle.Verify(approval.GuardianAddress, policy.RolesRoot, current), nil
	}

	a.log.Debug("authorizing guardian via member registry",
		zap.String("guardian_address", approval.GuardianAddress),
		zap.String("policy_id", policy.ID.String()),
	)
	ok, err := a.members.ExistsByAddress(ctx, approval.GuardianAddress)
	if err != nil {
		return false, fmt.Errorf("member lookup: %w", err)
	}
	return ok, nil
}

// AuthorizeAll returns the authorization outcome per guardian id.
func (a *Authorizer) AuthorizeAll(ctx context.Context, approvals []models.Approval, policy *models.Policy) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(approvals))
	for _, ap := range approvals {
		ok, err := a.Authorize(ctx, ap, policy)
		if err != nil {
			return nil, err
		}
		out[ap.GuardianID] = ok
	}
	return out, nil
}

// ProofFor derives a proof for address from the policy's guardian list. It
// returns nil when the policy carries no list, leaving the registry fallback
// in charge; an address outside the list gets an empty proof, which fails
// verification.
func ProofFor(address string, policy *models.Policy) []string {
	if policy.RolesRoot == "" || len(policy.Guardians) == 0 {
		return nil
	}
	proof, err := merkle.BuildProof(address, policy.Guardians)
	if err != nil {
		return []string{}
	}
	return proof
}

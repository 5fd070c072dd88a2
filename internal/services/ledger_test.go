package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/merkle"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApprovalLedger_AddIsIdempotentPerGuardian(t *testing.T) {
	store := &memApprovalStore{}
	ledger := NewApprovalLedger(store, func() time.Time { return testNow })
	ctx := context.Background()
	escrowID, guardianID := uuid.New(), uuid.New()

	a, err := ledger.Add(ctx, models.Approval{EscrowID: escrowID, GuardianID: guardianID, GuardianAddress: guardianAddrs[0]})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, testNow, a.ApprovedAt)

	_, err = ledger.Add(ctx, models.Approval{EscrowID: escrowID, GuardianID: guardianID, GuardianAddress: guardianAddrs[0]})
	assert.ErrorIs(t, err, ErrDuplicateApproval)

	// the same guardian may approve a different escrow
	_, err = ledger.Add(ctx, models.Approval{EscrowID: uuid.New(), GuardianID: guardianID, GuardianAddress: guardianAddrs[0]})
	require.NoError(t, err)

	list, err := ledger.List(ctx, escrowID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApprovalLedger_Revoke(t *testing.T) {
	ledger := NewApprovalLedger(&memApprovalStore{}, nil)
	ctx := context.Background()
	escrowID, guardianID := uuid.New(), uuid.New()

	assert.ErrorIs(t, ledger.Revoke(ctx, escrowID, guardianID), ErrNoSuchApproval)

	_, err := ledger.Add(ctx, models.Approval{EscrowID: escrowID, GuardianID: guardianID})
	require.NoError(t, err)
	require.NoError(t, ledger.Revoke(ctx, escrowID, guardianID))

	list, err := ledger.List(ctx, escrowID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAuthorizer(t *testing.T) {
	root, err := merkle.BuildRoot(guardianAddrs)
	require.NoError(t, err)
	policy := &models.Policy{ID: uuid.New(), RolesRoot: root, Guardians: guardianAddrs}
	rootOnly := &models.Policy{ID: uuid.New(), RolesRoot: root}
	rotatedSet := append([]string{"0x6666666666666666666666666666666666666666"}, guardianAddrs[1:]...)
	rotatedRoot, err := merkle.BuildRoot(rotatedSet)
	require.NoError(t, err)
	rotated := &models.Policy{ID: policy.ID, RolesRoot: rotatedRoot, Guardians: rotatedSet}
	members := &memMemberStore{addresses: map[string]bool{"0x9999999999999999999999999999999999999999": true}}
	auth := NewAuthorizer(members, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name   string
		policy *models.Policy
		addr   string
		proof  []string
		want   bool
	}{
		{"merkle member", policy, guardianAddrs[2], ProofFor(guardianAddrs[2], policy), true},
		{"merkle outsider", policy, "0x9999999999999999999999999999999999999999", ProofFor("0x9999999999999999999999999999999999999999", policy), false},
		{"proof for another member re-derived from guardian list", policy, guardianAddrs[0], ProofFor(guardianAddrs[1], policy), true},
		{"proof for another member without guardian list", rootOnly, guardianAddrs[0], ProofFor(guardianAddrs[1], policy), false},
		{"stale proof after root rotation", rotated, guardianAddrs[2], ProofFor(guardianAddrs[2], policy), true},
		{"stale proof for rotated out guardian", rotated, guardianAddrs[0], ProofFor(guardianAddrs[0], policy), false},
		{"no proof falls back to registry", policy, "0x9999999999999999999999999999999999999999", nil, true},
		{"no root registry miss", &models.Policy{ID: uuid.New()}, guardianAddrs[0], []string{}, false},
		{"no root registry hit", &models.Policy{ID: uuid.New()}, "0x9999999999999999999999999999999999999999", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := auth.Authorize(ctx, models.Approval{GuardianAddress: tt.addr, MerkleProof: tt.proof}, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestProofFor(t *testing.T) {
	root, err := merkle.BuildRoot(guardianAddrs)
	require.NoError(t, err)

	assert.Nil(t, ProofFor(guardianAddrs[0], &models.Policy{}))
	assert.Nil(t, ProofFor(guardianAddrs[0], &models.Policy{RolesRoot: root}))

	p := &models.Policy{RolesRoot: root, Guardians: guardianAddrs}
	outsider := ProofFor("0x9999999999999999999999999999999999999999", p)
	assert.NotNil(t, outsider)
	assert.Empty(t, outsider)
}

func TestLocalLocker_SerializesPerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "a")
	require.NoError(t, err)

	// other keys are independent
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	again()

	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}

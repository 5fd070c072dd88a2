package oracle

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture(amount int64, approvals int) Input {
	deadline := now.Add(2 * time.Hour)
	in := Input{
		Escrow: &models.Escrow{
			ID:          uuid.New(),
			Status:      models.EscrowStatusSubmitted,
			TotalAmount: big.NewInt(amount),
			Deadline:    &deadline,
		},
		Policy: &models.Policy{
			ID:              uuid.New(),
			Threshold:       2,
			MaxAmount:       big.NewInt(100_000_000),
			TimelockSeconds: 3600,
			Active:          true,
		},
		Authorized: map[uuid.UUID]bool{},
		Now:        now,
	}
	for i := 0; i < approvals; i++ {
		g := uuid.New()
		in.Approvals = append(in.Approvals, models.Approval{GuardianID: g, GuardianAddress: "0xabc"})
		in.Authorized[g] = true
	}
	return in
}

func TestEvaluateSatisfied(t *testing.T) {
	res := Evaluate(fixture(50_000_000, 2))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestEvaluateInactivePolicyShortCircuits(t *testing.T) {
	in := fixture(500_000_000, 0)
	in.Policy.Active = false

	res := Evaluate(in)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "not active")
	assert.Empty(t, res.Warnings)

	in.Policy = nil
	res = Evaluate(in)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
}

func TestEvaluateAmountOverCeiling(t *testing.T) {
	res := Evaluate(fixture(150_000_000, 2))
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "150000000 > 100000000")
}

func TestEvaluateNearLimitWarning(t *testing.T) {
	res := Evaluate(fixture(95_000_000, 2))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "90%")

	// exactly 90% is not near-limit
	res = Evaluate(fixture(90_000_000, 2))
	assert.Empty(t, res.Warnings)
}

func TestEvaluateAmountBeyondUint64(t *testing.T) {
	in := fixture(0, 2)
	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	require.True(t, ok)
	in.Escrow.TotalAmount = huge
	in.Policy.MaxAmount = new(big.Int).Mul(huge, big.NewInt(2))

	res := Evaluate(in)
	assert.True(t, res.Valid)

	in.Policy.MaxAmount = nil
	res = Evaluate(in)
	assert.True(t, res.Valid, "nil maximum is unbounded")
	assert.Empty(t, res.Warnings)
}

func TestEvaluateInsufficientApprovals(t *testing.T) {
	res := Evaluate(fixture(10, 1))
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "insufficient approvals: 1 of 2 required", res.Errors[0])
}

func TestEvaluateUnauthorizedGuardian(t *testing.T) {
	in := fixture(10, 3)
	bad := in.Approvals[1]
	in.Authorized[bad.GuardianID] = false

	res := Evaluate(in)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], bad.GuardianID.String())
}

func TestEvaluateDeadline(t *testing.T) {
	in := fixture(10, 2)
	past := now.Add(-time.Minute)
	in.Escrow.Deadline = &past
	res := Evaluate(in)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "has passed")

	soon := now.Add(30 * time.Minute)
	in.Escrow.Deadline = &soon
	res = Evaluate(in)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "time until deadline (1800s) is less than policy timelock (3600s)", res.Errors[0])

	in.Escrow.Deadline = nil
	res = Evaluate(in)
	assert.True(t, res.Valid)
}

func TestEvaluateTerminalAdvisory(t *testing.T) {
	for _, st := range []models.EscrowStatus{models.EscrowStatusApproved, models.EscrowStatusOnChain, models.EscrowStatusExecuted} {
		in := fixture(10, 2)
		in.Escrow.Status = st
		res := Evaluate(in)
		assert.True(t, res.Valid, st)
		require.Len(t, res.Warnings, 1)
		assert.True(t, strings.HasSuffix(res.Warnings[0], string(st)))
	}
}

func TestEvaluateErrorOrderIsStable(t *testing.T) {
	in := fixture(150_000_000, 1)
	in.Authorized[in.Approvals[0].GuardianID] = false
	past := now.Add(-time.Hour)
	in.Escrow.Deadline = &past

	first := Evaluate(in)
	require.Len(t, first.Errors, 4)
	assert.Contains(t, first.Errors[0], "exceeds policy maximum")
	assert.Contains(t, first.Errors[1], "insufficient approvals")
	assert.Contains(t, first.Errors[2], "not authorized")
	assert.Contains(t, first.Errors[3], "has passed")

	assert.Equal(t, first, Evaluate(in))
}

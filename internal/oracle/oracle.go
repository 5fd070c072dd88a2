// Package oracle decides whether an escrow satisfies the policy that governs
// it. Evaluation is deterministic and has no side effects: the clock and
// per-approval authorization results are supplied by the caller.
package oracle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
)

// NearLimitPercent is the share of the policy maximum above which an amount
// draws an advisory warning.
const NearLimitPercent = 90

// ValidationResult is the outcome of one evaluation. Warnings never affect Valid.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type Input struct {
	Escrow    *models.Escrow
	Policy    *models.Policy
	Approvals []models.Approval
	// Authorized holds the authorization outcome per guardian id. Guardians
	// missing from the map are treated as unauthorized.
	Authorized map[uuid.UUID]bool
	Now        time.Time
}

func Evaluate(in Input) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if in.Policy == nil || !in.Policy.Active {
		id := "<nil>"
		if in.Policy != nil {
			id = in.Policy.ID.String()
		}
		res.Errors = append(res.Errors, fmt.Sprintf("policy %s is not active", id))
		return res
	}
	p, e := in.Policy, in.Escrow

	amount := new(big.Int)
	if e.TotalAmount != nil {
		amount.Set(e.TotalAmount)
	}
	if p.MaxAmount != nil {
		if amount.Cmp(p.MaxAmount) > 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("escrow amount exceeds policy maximum: %s > %s", amount, p.MaxAmount))
		} else if nearLimit(amount, p.MaxAmount) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("escrow amount %s is above %d%% of policy maximum %s", amount, NearLimitPercent, p.MaxAmount))
		}
	}

	if len(in.Approvals) < p.Threshold {
		res.Errors = append(res.Errors, fmt.Sprintf("insufficient approvals: %d of %d required", len(in.Approvals), p.Threshold))
	}

	for _, a := range in.Approvals {
		if !in.Authorized[a.GuardianID] {
			res.Errors = append(res.Errors, fmt.Sprintf("guardian %s (%s) is not authorized by policy", a.GuardianID, a.GuardianAddress))
		}
	}

	if e.Deadline != nil {
		remaining := e.Deadline.Sub(in.Now)
		if remaining <= 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("escrow deadline %s has passed", e.Deadline.UTC().Format(time.RFC3339)))
		} else if remaining < p.Timelock() {
			res.Errors = append(res.Errors, fmt.Sprintf("time until deadline (%ds) is less than policy timelock (%ds)",
				int64(remaining/time.Second), p.TimelockSeconds))
		}
	}

	switch e.Status {
	case models.EscrowStatusApproved, models.EscrowStatusOnChain, models.EscrowStatusExecuted:
		res.Warnings = append(res.Warnings, fmt.Sprintf("escrow is already %s", e.Status))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// nearLimit reports amount*100 > max*NearLimitPercent.
func nearLimit(amount, max *big.Int) bool {
	lhs := new(big.Int).Mul(amount, big.NewInt(100))
	rhs := new(big.Int).Mul(max, big.NewInt(NearLimitPercent))
	return lhs.Cmp(rhs) > 0
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/events"
	"github.com/policy-oracle/backend/internal/evm"
	"github.com/policy-oracle/backend/internal/metrics"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/oracle"
	"go.uber.org/zap"
)

type CoordinatorConfig struct {
	// RegistrationTimeout bounds one Register call. Timeout is a fault.
	RegistrationTimeout time.Duration
	// LockTimeout bounds the wait for the per-escrow lock.
	LockTimeout time.Duration
	Now         func() time.Time
}

// Coordinator is the escrow approval state machine. It re-reads escrow,
// policy and approvals under the per-escrow lock on every operation and
// never keeps copies between calls.
type Coordinator struct {
	escrows    EscrowStore
	policies   PolicyStore
	ledger     *ApprovalLedger
	authorizer *Authorizer
	registrar  OnChainRegistrar
	locker     Locker
	audit      AuditLogger
	publisher  events.Publisher
	metrics    *metrics.ApprovalMetrics
	cfg        CoordinatorConfig
	log        *zap.Logger
}

func NewCoordinator(
	escrows EscrowStore,
	policies PolicyStore,
	members MemberStore,
	approvals ApprovalStore,
	registrar OnChainRegistrar,
	locker Locker,
	audit AuditLogger,
	publisher events.Publisher,
	m *metrics.ApprovalMetrics,
	cfg CoordinatorConfig,
	log *zap.Logger,
) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = 30 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		escrows:    escrows,
		policies:   policies,
		ledger:     NewApprovalLedger(approvals, cfg.Now),
		authorizer: NewAuthorizer(members, log),
		registrar:  registrar,
		locker:     locker,
		audit:      audit,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

type AddApprovalInput struct {
	EscrowID        uuid.UUID
	GuardianID      uuid.UUID
	GuardianAddress string
	Signature       *string
	// MerkleProof overrides the proof derived from the policy's guardian list.
	MerkleProof []string
}

// Progress is the approval progress of one escrow.
type Progress struct {
	EscrowID   uuid.UUID           `json:"escrow_id"`
	Status     models.EscrowStatus `json:"status"`
	Current    int                 `json:"current_approvals"`
	Required   int                 `json:"required_approvals"`
	Approvals  []models.Approval   `json:"approvals"`
	IsApproved bool                `json:"is_approved"`
}

// AddApproval records a guardian's approval and, when the policy becomes
// satisfied, registers the escrow on-chain before returning. A registration
// fault rolls the escrow back to submitted and is returned to the caller.
func (c *Coordinator) AddApproval(ctx context.Context, in AddApprovalInput) (*models.Escrow, error) {
	address, err := evm.NormalizeAddress(in.GuardianAddress)
	if err != nil {
		c.metrics.ObserveApproval("add", string(KindInvalidArgument))
		return nil, newError(KindInvalidArgument, err, "invalid guardian address")
	}

	unlock, err := c.lock(ctx, in.EscrowID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	escrow, err := c.escrows.Get(ctx, in.EscrowID)
	if err != nil {
		return nil, c.failApproval("add", err)
	}
	if escrow.Status != models.EscrowStatusSubmitted {
		return nil, c.failApproval("add", newError(KindInvalidState, nil,
			"escrow %s is %s, approvals require %s", escrow.ID, escrow.Status, models.EscrowStatusSubmitted))
	}

	policy, err := c.policies.Get(ctx, escrow.PolicyID)
	if err != nil {
		return nil, c.failApproval("add", err)
	}

	if in.Signature != nil {
		if err := evm.VerifySignature(address, evm.ApprovalMessage(escrow.ID), *in.Signature); err != nil {
			return nil, c.failApproval("add", newError(KindInvalidSignature, err, "invalid approval signature"))
		}
	}

	proof := in.MerkleProof
	if proof == nil {
		proof = ProofFor(address, policy)
	}

	approval, err := c.ledger.Add(ctx, models.Approval{
		EscrowID:        escrow.ID,
		GuardianID:      in.GuardianID,
		GuardianAddress: address,
		Signature:       in.Signature,
		MerkleProof:     proof,
	})
	if err != nil {
		return nil, c.failApproval("add", err)
	}
	c.metrics.ObserveApproval("add", "ok")

	c.log.Info("approval added",
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("guardian_id", in.GuardianID.String()),
		zap.String("guardian_address", address),
	)
	_ = c.audit.Log(ctx, models.AuditLog{
		ActorID:    &in.GuardianID,
		ActorType:  models.ActorGuardian,
		Action:     "approval_added",
		EntityType: models.AuditEntityEscrow,
		EntityID:   &escrow.ID,
		Meta:       map[string]any{"approval_id": approval.ID.String(), "guardian_address": address},
	})
	_ = c.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventApprovalAdded,
		Payload: map[string]any{
			"escrow_id":   escrow.ID.String(),
			"guardian_id": in.GuardianID.String(),
		},
	})

	res, err := c.evaluate(ctx, escrow, policy)
	if err != nil {
		// the approval is stored; the retry sweep re-evaluates submitted escrows
		c.log.Error("evaluation after approval failed",
			zap.String("escrow_id", escrow.ID.String()),
			zap.Error(err),
		)
		return c.escrows.Get(ctx, escrow.ID)
	}
	return c.registerIfSatisfied(ctx, escrow, policy, res, &in.GuardianID, models.ActorGuardian)
}

// CancelApproval withdraws a guardian's approval. Removal can only move an
// escrow away from satisfaction, so it never triggers registration.
func (c *Coordinator) CancelApproval(ctx context.Context, escrowID, guardianID uuid.UUID) (*models.Escrow, error) {
	unlock, err := c.lock(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	escrow, err := c.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, c.failApproval("cancel", err)
	}
	if escrow.Status != models.EscrowStatusSubmitted {
		return nil, c.failApproval("cancel", newError(KindInvalidState, nil,
			"escrow %s is %s, approvals can only be cancelled while %s", escrow.ID, escrow.Status, models.EscrowStatusSubmitted))
	}

	if err := c.ledger.Revoke(ctx, escrowID, guardianID); err != nil {
		return nil, c.failApproval("cancel", err)
	}
	c.metrics.ObserveApproval("cancel", "ok")

	c.log.Info("approval cancelled",
		zap.String("escrow_id", escrowID.String()),
		zap.String("guardian_id", guardianID.String()),
	)
	_ = c.audit.Log(ctx, models.AuditLog{
		ActorID:    &guardianID,
		ActorType:  models.ActorGuardian,
		Action:     "approval_cancelled",
		EntityType: models.AuditEntityEscrow,
		EntityID:   &escrowID,
	})
	_ = c.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventApprovalCancelled,
		Payload: map[string]any{
			"escrow_id":   escrowID.String(),
			"guardian_id": guardianID.String(),
		},
	})

	return escrow, nil
}

// GetApprovalProgress is a read-only view. A non-positive threshold counts
// as already satisfied.
func (c *Coordinator) GetApprovalProgress(ctx context.Context, escrowID uuid.UUID) (*Progress, error) {
	escrow, err := c.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	policy, err := c.policies.Get(ctx, escrow.PolicyID)
	if err != nil {
		return nil, err
	}
	approvals, err := c.ledger.List(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if approvals == nil {
		approvals = []models.Approval{}
	}

	required := policy.Threshold
	return &Progress{
		EscrowID:   escrow.ID,
		Status:     escrow.Status,
		Current:    len(approvals),
		Required:   required,
		Approvals:  approvals,
		IsApproved: required <= 0 || len(approvals) >= required,
	}, nil
}

// Evaluate runs the policy oracle against the current state without acting
// on the result.
func (c *Coordinator) Evaluate(ctx context.Context, escrowID uuid.UUID) (*oracle.ValidationResult, error) {
	escrow, err := c.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	policy, err := c.policies.Get(ctx, escrow.PolicyID)
	if err != nil {
		return nil, err
	}
	res, err := c.evaluate(ctx, escrow, policy)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RetryRegistration re-evaluates a submitted escrow and registers it when
// the policy is satisfied. It is the re-entry point for escrows rolled back
// after a registration fault.
func (c *Coordinator) RetryRegistration(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, actorType string) (*models.Escrow, error) {
	unlock, err := c.lock(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	escrow, err := c.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusSubmitted {
		return nil, newError(KindInvalidState, nil, "escrow %s is %s, registration retry requires %s",
			escrow.ID, escrow.Status, models.EscrowStatusSubmitted)
	}
	policy, err := c.policies.Get(ctx, escrow.PolicyID)
	if err != nil {
		return nil, err
	}
	return c.evaluateAndRegister(ctx, escrow, policy, actorID, actorType)
}

// ConfirmExecution moves an on-chain escrow to executed once the chain
// reports its execution. Repeated confirmations are no-ops.
func (c *Coordinator) ConfirmExecution(ctx context.Context, onChainID *big.Int, txHash string) (*models.Escrow, error) {
	found, err := c.escrows.GetByOnChainID(ctx, onChainID)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lock(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	escrow, err := c.escrows.Get(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	switch escrow.Status {
	case models.EscrowStatusExecuted:
		return escrow, nil
	case models.EscrowStatusOnChain:
	default:
		return nil, newError(KindInvalidState, nil, "escrow %s is %s, cannot mark executed", escrow.ID, escrow.Status)
	}

	ok, err := c.escrows.MarkExecuted(ctx, escrow.ID, txHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.escrows.Get(ctx, escrow.ID)
	}
	c.recordTransition(ctx, escrow.ID, models.EscrowStatusOnChain, models.EscrowStatusExecuted, nil, models.ActorChain,
		map[string]any{"tx_hash": txHash, "on_chain_id": onChainID.String()})
	_ = c.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type:    events.EventEscrowExecuted,
		Payload: map[string]any{"escrow_id": escrow.ID.String(), "tx_hash": txHash},
	})

	return c.escrows.Get(ctx, escrow.ID)
}

// ExpireOverdue moves submitted escrows whose deadline has passed to expired
// and returns how many were expired.
func (c *Coordinator) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := c.cfg.Now()
	overdue, err := c.escrows.ListOverdue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, e := range overdue {
		ok, err := c.transitionLocked(ctx, e.ID, func(cur *models.Escrow) bool {
			return cur.Status == models.EscrowStatusSubmitted && cur.Deadline != nil && !cur.Deadline.After(now)
		}, models.EscrowStatusSubmitted, models.EscrowStatusExpired, map[string]any{"deadline": e.Deadline})
		if err != nil {
			c.log.Error("failed to expire escrow", zap.String("escrow_id", e.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// RecoverStaleRegistrations rolls escrows stuck in approved (the process
// died mid-registration) back to submitted so RetryRegistration can pick
// them up. The relayer's idempotency key maps the retry onto the original
// transaction if it did land.
func (c *Coordinator) RecoverStaleRegistrations(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := c.escrows.ListByStatus(ctx, models.EscrowStatusApproved, c.cfg.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, e := range stale {
		ok, err := c.transitionLocked(ctx, e.ID, func(cur *models.Escrow) bool {
			return cur.Status == models.EscrowStatusApproved && !cur.UpdatedAt.After(e.UpdatedAt)
		}, models.EscrowStatusApproved, models.EscrowStatusSubmitted, map[string]any{"reason": "stale_registration"})
		if err != nil {
			c.log.Error("failed to recover stale registration", zap.String("escrow_id", e.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			c.log.Warn("stale registration rolled back", zap.String("escrow_id", e.ID.String()))
			recovered++
		}
	}
	return recovered, nil
}

// RetryPendingRegistrations calls RetryRegistration for submitted escrows
// untouched for at least minAge. Unsatisfied escrows are left as they are.
func (c *Coordinator) RetryPendingRegistrations(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	pending, err := c.escrows.ListByStatus(ctx, models.EscrowStatusSubmitted, c.cfg.Now().Add(-minAge), limit)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, e := range pending {
		out, err := c.RetryRegistration(ctx, e.ID, nil, models.ActorSystem)
		if err != nil {
			c.log.Warn("registration retry failed", zap.String("escrow_id", e.ID.String()), zap.Error(err))
			continue
		}
		if out.Status == models.EscrowStatusOnChain {
			registered++
		}
	}
	return registered, nil
}

// CancelEscrow withdraws an escrow that has not been registered yet.
func (c *Coordinator) CancelEscrow(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, actorType, reason string) (*models.Escrow, error) {
	unlock, err := c.lock(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	escrow, err := c.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	from := escrow.Status
	if !models.IsValidTransition(from, models.EscrowStatusCancelled) {
		return nil, newError(KindInvalidState, nil, "escrow %s is %s and cannot be cancelled", escrow.ID, from)
	}

	ok, err := c.escrows.UpdateStatus(ctx, escrowID, from, models.EscrowStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(KindInvalidState, nil, "escrow %s changed status concurrently", escrow.ID)
	}
	c.recordTransition(ctx, escrowID, from, models.EscrowStatusCancelled, actorID, actorType, map[string]any{"reason": reason})
	return c.escrows.Get(ctx, escrowID)
}

// ReleaseDue asks the registrar to execute on-chain escrows whose scheduled
// release time has passed. The escrow stays on-chain until the chain watcher
// confirms the execution; repeated requests reuse the relayer idempotency key.
func (c *Coordinator) ReleaseDue(ctx context.Context, limit int) (int, error) {
	due, err := c.escrows.ListReleasable(ctx, c.cfg.Now(), limit)
	if err != nil {
		return 0, err
	}

	requested := 0
	for _, e := range due {
		if e.OnChain == nil {
			c.log.Error("on-chain escrow without reference", zap.String("escrow_id", e.ID.String()))
			continue
		}
		txHash, err := c.registrar.Execute(ctx, e.OnChain.OnChainID)
		if err != nil {
			c.log.Warn("execution request failed", zap.String("escrow_id", e.ID.String()), zap.Error(err))
			continue
		}
		requested++

		id := e.ID
		_ = c.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorSystem,
			Action:     "execution_requested",
			EntityType: models.AuditEntityEscrow,
			EntityID:   &id,
			Meta:       map[string]any{"tx_hash": txHash, "on_chain_id": e.OnChain.OnChainID.String()},
		})
		c.log.Info("execution requested",
			zap.String("escrow_id", e.ID.String()),
			zap.String("tx_hash", txHash),
		)
	}
	return requested, nil
}

// --- state machine internals ---

func (c *Coordinator) evaluate(ctx context.Context, escrow *models.Escrow, policy *models.Policy) (oracle.ValidationResult, error) {
	approvals, err := c.ledger.List(ctx, escrow.ID)
	if err != nil {
		return oracle.ValidationResult{}, err
	}
	authorized, err := c.authorizer.AuthorizeAll(ctx, approvals, policy)
	if err != nil {
		return oracle.ValidationResult{}, err
	}
	return oracle.Evaluate(oracle.Input{
		Escrow:     escrow,
		Policy:     policy,
		Approvals:  approvals,
		Authorized: authorized,
		Now:        c.cfg.Now(),
	}), nil
}

// evaluateAndRegister must run under the escrow lock with escrow in
// submitted. It returns the escrow's resulting state.
func (c *Coordinator) evaluateAndRegister(ctx context.Context, escrow *models.Escrow, policy *models.Policy, actorID *uuid.UUID, actorType string) (*models.Escrow, error) {
	res, err := c.evaluate(ctx, escrow, policy)
	if err != nil {
		return nil, err
	}
	return c.registerIfSatisfied(ctx, escrow, policy, res, actorID, actorType)
}

func (c *Coordinator) registerIfSatisfied(ctx context.Context, escrow *models.Escrow, policy *models.Policy, res oracle.ValidationResult, actorID *uuid.UUID, actorType string) (*models.Escrow, error) {
	c.metrics.ObserveEvaluation(res.Valid)

	if !res.Valid {
		c.log.Debug("policy not yet satisfied",
			zap.String("escrow_id", escrow.ID.String()),
			zap.Strings("errors", res.Errors),
		)
		return c.escrows.Get(ctx, escrow.ID)
	}
	if len(res.Warnings) > 0 {
		c.log.Info("policy satisfied with warnings",
			zap.String("escrow_id", escrow.ID.String()),
			zap.Strings("warnings", res.Warnings),
		)
	}

	return c.register(ctx, escrow, policy, actorID, actorType)
}

func (c *Coordinator) register(ctx context.Context, escrow *models.Escrow, policy *models.Policy, actorID *uuid.UUID, actorType string) (*models.Escrow, error) {
	won, err := c.escrows.UpdateStatus(ctx, escrow.ID, models.EscrowStatusSubmitted, models.EscrowStatusApproved)
	if err != nil {
		return nil, err
	}
	if !won {
		// another request (possibly on another instance) already claimed the registration
		c.metrics.ObserveRegistration("lost_race", 0)
		c.log.Info("registration already claimed", zap.String("escrow_id", escrow.ID.String()))
		return c.escrows.Get(ctx, escrow.ID)
	}
	c.recordTransition(ctx, escrow.ID, models.EscrowStatusSubmitted, models.EscrowStatusApproved, actorID, actorType, nil)

	approved := escrow.Clone()
	approved.Status = models.EscrowStatusApproved

	regCtx, cancel := context.WithTimeout(ctx, c.cfg.RegistrationTimeout)
	start := time.Now()
	ref, regErr := c.registrar.Register(regCtx, approved, policy)
	if regErr == nil && ref == nil {
		regErr = errors.New("registrar returned no on-chain reference")
	}
	if regErr != nil && errors.Is(regCtx.Err(), context.DeadlineExceeded) {
		regErr = fmt.Errorf("registration timed out after %s: %w", c.cfg.RegistrationTimeout, regErr)
	}
	cancel()

	if regErr != nil {
		c.metrics.ObserveRegistration("fault", time.Since(start))
		return nil, c.rollback(ctx, escrow.ID, regErr)
	}
	c.metrics.ObserveRegistration("ok", time.Since(start))

	ok, err := c.escrows.MarkOnChain(ctx, escrow.ID, *ref)
	if err != nil || !ok {
		// The chain write happened; do not roll back. Stale recovery plus the
		// relayer idempotency key will re-deliver the same reference.
		c.log.Error("registered on-chain but failed to persist reference",
			zap.String("escrow_id", escrow.ID.String()),
			zap.String("tx_hash", ref.TxHash),
			zap.String("on_chain_id", ref.OnChainID.String()),
			zap.Error(err),
		)
		if err == nil {
			err = newError(KindInvalidState, nil, "escrow %s left %s during registration", escrow.ID, models.EscrowStatusApproved)
		}
		return nil, fmt.Errorf("persist on-chain reference: %w", err)
	}
	c.recordTransition(ctx, escrow.ID, models.EscrowStatusApproved, models.EscrowStatusOnChain, actorID, actorType,
		map[string]any{"tx_hash": ref.TxHash, "on_chain_id": ref.OnChainID.String()})

	c.log.Info("escrow registered on-chain",
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("tx_hash", ref.TxHash),
		zap.String("on_chain_id", ref.OnChainID.String()),
	)
	return c.escrows.Get(ctx, escrow.ID)
}

// rollback returns a faulted escrow to submitted and builds the error that
// is surfaced to the caller.
func (c *Coordinator) rollback(ctx context.Context, escrowID uuid.UUID, cause error) error {
	fault := cause
	if KindOf(cause) != KindRegistrationFault {
		fault = newError(KindRegistrationFault, cause, "on-chain registration of escrow %s failed", escrowID)
	}

	c.log.Warn("on-chain registration failed, rolling back",
		zap.String("escrow_id", escrowID.String()),
		zap.Error(cause),
	)

	ok, err := c.escrows.UpdateStatus(ctx, escrowID, models.EscrowStatusApproved, models.EscrowStatusSubmitted)
	if err != nil || !ok {
		c.log.Error("rollback after registration fault failed",
			zap.String("escrow_id", escrowID.String()),
			zap.Bool("updated", ok),
			zap.Error(err),
		)
	} else {
		c.recordTransition(ctx, escrowID, models.EscrowStatusApproved, models.EscrowStatusSubmitted, nil, models.ActorSystem,
			map[string]any{"reason": "registration_fault", "error": cause.Error()})
	}

	_ = c.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type:    events.EventRegistrationFailed,
		Payload: map[string]any{"escrow_id": escrowID.String(), "error": cause.Error()},
	})
	return fault
}

// transitionLocked re-reads the escrow under its lock and applies from->to
// when cond holds.
func (c *Coordinator) transitionLocked(ctx context.Context, id uuid.UUID, cond func(*models.Escrow) bool, from, to models.EscrowStatus, meta map[string]any) (bool, error) {
	unlock, err := c.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := c.escrows.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !cond(cur) {
		return false, nil
	}
	ok, err := c.escrows.UpdateStatus(ctx, id, from, to)
	if err != nil || !ok {
		return false, err
	}
	c.recordTransition(ctx, id, from, to, nil, models.ActorSystem, meta)
	return true, nil
}

// recordTransition audits, publishes and counts a persisted status change.
func (c *Coordinator) recordTransition(ctx context.Context, id uuid.UUID, from, to models.EscrowStatus, actorID *uuid.UUID, actorType string, meta map[string]any) {
	if !models.IsValidTransition(from, to) {
		c.log.Error("recorded transition is not in the transition table",
			zap.String("escrow_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	c.metrics.ObserveTransition(string(from), string(to))

	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = from
	meta["new_status"] = to

	_ = c.audit.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     fmt.Sprintf("%s%s_to_%s", models.AuditActionStatusPrefix, from, to),
		EntityType: models.AuditEntityEscrow,
		EntityID:   &id,
		Meta:       meta,
	})
	_ = c.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id":  id.String(),
			"old_status": from,
			"new_status": to,
		},
	})
}

func (c *Coordinator) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.cfg.LockTimeout)
	defer cancel()
	unlock, err := c.locker.Lock(lockCtx, id.String())
	if err != nil {
		return nil, fmt.Errorf("lock escrow %s: %w", id, err)
	}
	return unlock, nil
}

func (c *Coordinator) failApproval(op string, err error) error {
	kind := string(KindOf(err))
	if kind == "" {
		kind = "error"
	}
	c.metrics.ObserveApproval(op, kind)
	return err
}

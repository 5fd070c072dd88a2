package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
)

type memEscrowStore struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]*models.Escrow
	now     func() time.Time
}

func newMemEscrowStore(now func() time.Time) *memEscrowStore {
	return &memEscrowStore{escrows: make(map[uuid.UUID]*models.Escrow), now: now}
}

func (s *memEscrowStore) put(e *models.Escrow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrows[e.ID] = e.Clone()
}

func (s *memEscrowStore) Get(_ context.Context, id uuid.UUID) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return nil, NotFoundError("escrow", id)
	}
	return e.Clone(), nil
}

func (s *memEscrowStore) GetByOnChainID(_ context.Context, onChainID *big.Int) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escrows {
		if e.OnChain != nil && e.OnChain.OnChainID.Cmp(onChainID) == 0 {
			return e.Clone(), nil
		}
	}
	return nil, NotFoundError("escrow with on-chain id", onChainID)
}

func (s *memEscrowStore) swap(id uuid.UUID, from, to models.EscrowStatus, apply func(*models.Escrow)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return false, NotFoundError("escrow", id)
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	e.Version++
	e.UpdatedAt = s.now()
	if apply != nil {
		apply(e)
	}
	return true, nil
}

func (s *memEscrowStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.EscrowStatus) (bool, error) {
	return s.swap(id, from, to, nil)
}

func (s *memEscrowStore) MarkOnChain(_ context.Context, id uuid.UUID, ref models.OnChainRef) (bool, error) {
	return s.swap(id, models.EscrowStatusApproved, models.EscrowStatusOnChain, func(e *models.Escrow) {
		e.OnChain = &models.OnChainRef{TxHash: ref.TxHash, OnChainID: new(big.Int).Set(ref.OnChainID)}
	})
}

func (s *memEscrowStore) MarkExecuted(_ context.Context, id uuid.UUID, txHash string) (bool, error) {
	return s.swap(id, models.EscrowStatusOnChain, models.EscrowStatusExecuted, func(e *models.Escrow) {
		e.ExecutedTxHash = &txHash
	})
}

func (s *memEscrowStore) ListByStatus(_ context.Context, status models.EscrowStatus, updatedBefore time.Time, limit int) ([]models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escrow
	for _, e := range s.escrows {
		if e.Status == status && !e.UpdatedAt.After(updatedBefore) && len(out) < limit {
			out = append(out, *e.Clone())
		}
	}
	return out, nil
}

func (s *memEscrowStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escrow
	for _, e := range s.escrows {
		if e.Status == models.EscrowStatusSubmitted && e.Deadline != nil && !e.Deadline.After(now) && len(out) < limit {
			out = append(out, *e.Clone())
		}
	}
	return out, nil
}

func (s *memEscrowStore) ListReleasable(_ context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escrow
	for _, e := range s.escrows {
		if e.Status == models.EscrowStatusOnChain && e.ScheduledReleaseAt != nil && !e.ScheduledReleaseAt.After(now) && len(out) < limit {
			out = append(out, *e.Clone())
		}
	}
	return out, nil
}

type memPolicyStore struct {
	policies map[uuid.UUID]*models.Policy
}

func (s *memPolicyStore) Get(_ context.Context, id uuid.UUID) (*models.Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return nil, NotFoundError("policy", id)
	}
	cp := *p
	return &cp, nil
}

type memMemberStore struct {
	addresses map[string]bool
	err       error
}

func (s *memMemberStore) ExistsByAddress(_ context.Context, address string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.addresses[strings.ToLower(address)], nil
}

type memApprovalStore struct {
	mu        sync.Mutex
	approvals []models.Approval
}

func (s *memApprovalStore) Insert(_ context.Context, a *models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.approvals {
		if e.EscrowID == a.EscrowID && e.GuardianID == a.GuardianID {
			return DuplicateApprovalError(a.EscrowID, a.GuardianID)
		}
	}
	s.approvals = append(s.approvals, *a)
	return nil
}

func (s *memApprovalStore) Delete(_ context.Context, escrowID, guardianID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.approvals {
		if e.EscrowID == escrowID && e.GuardianID == guardianID {
			s.approvals = append(s.approvals[:i], s.approvals[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memApprovalStore) ListByEscrow(_ context.Context, escrowID uuid.UUID) ([]models.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Approval
	for _, e := range s.approvals {
		if e.EscrowID == escrowID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAuditLog struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (l *memAuditLog) Log(_ context.Context, entry models.AuditLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memAuditLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeRegistrar counts Register calls. A non-nil err fails every call; a
// positive delay is spent before answering (or until ctx expires).
type fakeRegistrar struct {
	calls    atomic.Int32
	executes atomic.Int32
	err      error
	delay    time.Duration
}

func (r *fakeRegistrar) Register(ctx context.Context, escrow *models.Escrow, _ *models.Policy) (*models.OnChainRef, error) {
	n := r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.OnChainRef{
		TxHash:    fmt.Sprintf("0x%064x", n),
		OnChainID: big.NewInt(int64(n)),
	}, nil
}

func (r *fakeRegistrar) Execute(context.Context, *big.Int) (string, error) {
	r.executes.Add(1)
	return "0x" + strings.Repeat("ab", 32), nil
}

func (r *fakeRegistrar) Cancel(context.Context, *big.Int, string) (string, error) {
	return "0x" + strings.Repeat("cd", 32), nil
}

// nopLocker never blocks; used to show the status CAS alone prevents
// double registration.
type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

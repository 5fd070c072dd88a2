package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

// Escrow statuses
const (
	EscrowStatusDraft     EscrowStatus = "draft"
	EscrowStatusSubmitted EscrowStatus = "submitted"
	EscrowStatusApproved  EscrowStatus = "approved"
	EscrowStatusOnChain   EscrowStatus = "on-chain"
	EscrowStatusExecuted  EscrowStatus = "executed"
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusCancelled EscrowStatus = "cancelled"
	EscrowStatusExpired   EscrowStatus = "expired"
)

// Valid state transitions: from -> []to.
// approved -> submitted is the rollback taken when on-chain registration fails.
var ValidEscrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusDraft:     {EscrowStatusSubmitted},
	EscrowStatusSubmitted: {EscrowStatusApproved, EscrowStatusCancelled, EscrowStatusExpired},
	EscrowStatusApproved:  {EscrowStatusOnChain, EscrowStatusSubmitted},
	EscrowStatusOnChain:   {EscrowStatusExecuted},
	EscrowStatusExecuted:  {EscrowStatusCompleted},
	EscrowStatusCompleted: {},
	EscrowStatusCancelled: {},
	EscrowStatusExpired:   {},
}

func IsValidTransition(from, to EscrowStatus) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s EscrowStatus) Valid() bool {
	_, ok := ValidEscrowTransitions[s]
	return ok
}

func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusCompleted || s == EscrowStatusCancelled || s == EscrowStatusExpired
}

// HasOnChainRef reports whether an escrow in status s must carry an OnChainRef.
func (s EscrowStatus) HasOnChainRef() bool {
	return s == EscrowStatusOnChain || s == EscrowStatusExecuted
}

// OnChainRef identifies the registration of an escrow on the chain.
type OnChainRef struct {
	TxHash    string   `json:"tx_hash"`
	OnChainID *big.Int `json:"on_chain_id"`
}

type Escrow struct {
	ID                 uuid.UUID    `json:"id"`
	Status             EscrowStatus `json:"status"`
	PolicyID           uuid.UUID    `json:"policy_id"`
	TotalAmount        *big.Int     `json:"total_amount"` // base units
	Deadline           *time.Time   `json:"deadline,omitempty"`
	ScheduledReleaseAt *time.Time   `json:"scheduled_release_at,omitempty"`
	OnChain            *OnChainRef  `json:"on_chain,omitempty"`
	ExecutedTxHash     *string      `json:"executed_tx_hash,omitempty"`
	Version            int64        `json:"version"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	c := *e
	if e.TotalAmount != nil {
		c.TotalAmount = new(big.Int).Set(e.TotalAmount)
	}
	if e.OnChain != nil {
		ref := *e.OnChain
		if ref.OnChainID != nil {
			ref.OnChainID = new(big.Int).Set(ref.OnChainID)
		}
		c.OnChain = &ref
	}
	return &c
}

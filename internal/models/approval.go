package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval is one guardian's approval of one escrow. Rows are inserted and
// deleted, never updated.
type Approval struct {
	ID              uuid.UUID `json:"id"`
	EscrowID        uuid.UUID `json:"escrow_id"`
	GuardianID      uuid.UUID `json:"guardian_id"`
	GuardianAddress string    `json:"guardian_address"`
	ApprovedAt      time.Time `json:"approved_at"`
	Signature       *string   `json:"signature,omitempty"`
	MerkleProof     []string  `json:"merkle_proof,omitempty"` // nil = no proof supplied
}

type Member struct {
	ID        uuid.UUID `json:"id"`
	VaultID   uuid.UUID `json:"vault_id"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

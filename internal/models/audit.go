package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types recorded in the audit log.
const (
	ActorGuardian = "guardian"
	ActorOperator = "operator"
	ActorSystem   = "system"
	ActorChain    = "chain"
)

// AuditEntityEscrow is the entity type of every escrow-scoped audit entry.
const AuditEntityEscrow = "escrow"

// AuditActionStatusPrefix prefixes status transition actions, e.g.
// escrow_status_submitted_to_approved.
const AuditActionStatusPrefix = "escrow_status_"

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorType  string     `json:"actor_type"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

type Policy struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Threshold       int       `json:"threshold"`
	MaxAmount       *big.Int  `json:"max_amount,omitempty"` // nil = unbounded
	TimelockSeconds int64     `json:"timelock_seconds"`
	RolesRoot       string    `json:"roles_root"` // hex merkle root over guardian addresses
	Guardians       []string  `json:"guardians,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p *Policy) Timelock() time.Duration {
	return time.Duration(p.TimelockSeconds) * time.Second
}

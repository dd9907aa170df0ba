package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole  string     `json:"actor_role"` // buyer/seller/admin/system
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Details    string     `json:"details"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Audit entity types
const (
	EntityOrder   = "order"
	EntityWallet  = "wallet"
	EntityProduct = "product"
	EntityRefund  = "refund"
	EntityDispute = "dispute"
	EntityPayout  = "payout"
)

package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

func IsValidRole(role string) bool {
	return role == RoleBuyer || role == RoleSeller || role == RoleAdmin
}

type Account struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated identity behind a request.
type Actor struct {
	AccountID uuid.UUID `json:"account_id"`
	Role      string    `json:"role"`
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: "system"}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsSystem() bool {
	return a.AccountID == uuid.Nil
}

// IDPtr returns the actor id for audit records, nil for the system actor.
func (a Actor) IDPtr() *uuid.UUID {
	if a.IsSystem() {
		return nil
	}
	id := a.AccountID
	return &id
}

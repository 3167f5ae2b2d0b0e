package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CardStatusPreActive  = "PRE_ACTIVE"
	CardStatusActive     = "ACTIVE"
	CardStatusFrozen     = "FROZEN"
	CardStatusBlocked    = "BLOCKED"
	CardStatusTerminated = "TERMINATED"
)

// MaxPaymentRejects is the number of rejected card events after which
// the card is swept and terminated.
const MaxPaymentRejects = 3

type VirtualCard struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ExternalID string
	// PaymentMethodID is the settlement partner handle used to move money
	// to or from the card. Empty until the partner attaches one.
	PaymentMethodID     string
	Name                string
	MaskedNumber        string
	Status              string
	PaymentRejectNumber int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsTerminated reports whether the card reached its absorbing state.
func (c VirtualCard) IsTerminated() bool {
	return c.Status == CardStatusTerminated
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WalletStatusActive    = "ACTIVE"
	WalletStatusSuspended = "SUSPENDED"
	WalletStatusBlocked   = "BLOCKED"
)

const DefaultCurrency = "XAF"

type Wallet struct {
	ID        uuid.UUID
	Matricule string
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Currency  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the wallet may be credited or debited.
func (w Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

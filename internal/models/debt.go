package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Debt is a shortfall owed by a user for a card fee that could not be
// collected in full. A debt row exists only while amount > 0; full payment
// deletes it.
type Debt struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CardID    uuid.UUID
	Amount    decimal.Decimal
	Label     string
	CreatedAt time.Time
}

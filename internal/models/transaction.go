package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit    = "DEPOSIT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
	TransactionTypeTransfer   = "TRANSFER"
	TransactionTypePayment    = "PAYMENT"
	TransactionTypeFee        = "FEE"
)

const (
	MethodMobileMoney  = "MOBILE_MONEY"
	MethodVirtualCard  = "VIRTUAL_CARD"
	MethodWallet       = "WALLET"
	MethodBankTransfer = "BANK_TRANSFER"
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// Beneficiary describes an external payee of a cash-out leg. Kept as a
// value object, not a row: payees live on the settlement partner side.
type Beneficiary struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	BankAccount string `json:"bank_account,omitempty"`
	BankCode    string `json:"bank_code,omitempty"`
}

type Transaction struct {
	ID     uuid.UUID
	Type   string
	Method string
	Status string

	// Amount is the principal. TotalAmount = Amount + SendoFees.
	Amount      decimal.Decimal
	TotalAmount decimal.Decimal
	SendoFees   decimal.Decimal
	PartnerFees decimal.Decimal
	Currency    string

	// ExternalRef is the settlement intent id, nil until the gateway call
	// returns one. Unique when set: it is the reconciliation key.
	ExternalRef *string

	UserID      uuid.UUID
	CardID      *uuid.UUID
	Beneficiary *Beneficiary
	Reason      string

	// Poll bookkeeping for the background reconciler.
	NextCheckAt   *time.Time
	CheckAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the transaction reached a final status.
func (t Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/models"
)

// Wallet repository interface
type WalletRepo interface {
	// Create wallet for user
	// If the user already owns a wallet must return apperrors.ErrWalletAlreadyExists
	Create(ctx context.Context, wallet models.Wallet) (models.Wallet, error)

	// Get wallet by its matricule or owning user
	// If wallet not found must return apperrors.ErrWalletNotFound
	GetByMatricule(ctx context.Context, matricule string) (models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// Credit and Debit mutate the balance as one atomic statement.
	// Debit must return apperrors.ErrInsufficientFunds when amount > balance
	// and leave the balance untouched.
	Credit(ctx context.Context, matricule string, amount decimal.Decimal) (models.Wallet, error)
	Debit(ctx context.Context, matricule string, amount decimal.Decimal) (models.Wallet, error)

	SetStatus(ctx context.Context, matricule string, status string) (models.Wallet, error)
}

// VirtualCard repository interface
type CardRepo interface {
	Create(ctx context.Context, card models.VirtualCard) (models.VirtualCard, error)

	// If card not found must return apperrors.ErrCardNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.VirtualCard, error)
	GetByExternalID(ctx context.Context, externalID string) (models.VirtualCard, error)

	SetStatus(ctx context.Context, id uuid.UUID, status string) (models.VirtualCard, error)
	SetPaymentMethod(ctx context.Context, id uuid.UUID, paymentMethodID string) (models.VirtualCard, error)

	// IncrementRejects bumps payment_reject_number and returns the fresh row
	IncrementRejects(ctx context.Context, id uuid.UUID) (models.VirtualCard, error)
	ResetRejects(ctx context.Context, id uuid.UUID) (models.VirtualCard, error)
}

// Options to filter transaction listing
type ListTransactionsOpts struct {
	UserID   uuid.UUID
	Types    []string
	Statuses []string
	Limit    int
}

// Transaction (ledger) repository interface
type TransactionRepo interface {
	Create(ctx context.Context, tr models.Transaction) (models.Transaction, error)

	// If transaction not found must return apperrors.ErrTransactionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// GetByExternalRef looks a transaction up by its settlement intent id.
	// With forUpdate the row is locked for the rest of the surrounding
	// db transaction, so a concurrent reconciliation of the same ref waits.
	GetByExternalRef(ctx context.Context, ref string, forUpdate bool) (models.Transaction, error)

	// SetExternalRef stores the intent id returned by the gateway and
	// schedules the first background status check.
	// Must return apperrors.ErrDuplicateExternalRef if the ref is taken.
	SetExternalRef(ctx context.Context, id uuid.UUID, ref string, nextCheckAt time.Time) (models.Transaction, error)

	// Finalize moves a PENDING transaction to a terminal status.
	// If the transaction is already terminal must return
	// apperrors.ErrTransactionAlreadyFinal and change nothing.
	Finalize(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error)

	// Reschedule bumps check_attempts and sets the next poll time.
	// A nil nextCheckAt stops further polling (webhook path only).
	Reschedule(ctx context.Context, id uuid.UUID, nextCheckAt *time.Time) error

	List(ctx context.Context, opts ListTransactionsOpts) ([]models.Transaction, error)

	// ListDue returns PENDING transactions with an external ref whose
	// next_check_at is in the past, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
}

// Debt repository interface
type DebtRepo interface {
	Create(ctx context.Context, debt models.Debt) (models.Debt, error)

	// ListForCard returns outstanding debts for (user, card), oldest first
	ListForCard(ctx context.Context, userID uuid.UUID, cardID uuid.UUID) ([]models.Debt, error)

	// ListForUser returns all outstanding debts of the user, oldest first
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Debt, error)

	// Decrement reduces the debt amount and returns the fresh row.
	// If debt not found must return apperrors.ErrDebtNotFound
	Decrement(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (models.Debt, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// Operation config repository interface (read only collaborator)
type ConfigRepo interface {
	// If parameter not found must return apperrors.ErrConfigNotFound
	Get(ctx context.Context, name string) (decimal.Decimal, error)
}

// Storage aggregates all repositories over one db handle
type Storage interface {
	Wallet() WalletRepo
	Card() CardRepo
	Transaction() TransactionRepo
	Debt() DebtRepo
	Config() ConfigRepo

	// InTx runs fn against a storage bound to a single db transaction.
	// fn returning an error rolls everything back.
	InTx(ctx context.Context, fn func(Storage) error) error
}

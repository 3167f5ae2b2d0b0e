package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/handlers/middleware"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/service/transaction"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	WalletService      walletService
	CardService        cardService
	TransactionService transactionService
	ReconcilerService  reconcilerService

	// WebhookSecret signs the partner callback envelope
	WebhookSecret string

	Logger logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	l := cfg.Logger

	api := http.NewServeMux()

	api.Handle("POST /wallets", handleCreateWallet(cfg.WalletService, l))
	api.Handle("GET /wallets/{matricule}", handleGetWallet(cfg.WalletService, l))
	api.Handle("POST /wallets/{matricule}/credit", handleCreditWallet(cfg.WalletService, l))
	api.Handle("POST /wallets/{matricule}/debit", handleDebitWallet(cfg.WalletService, l))

	api.Handle("POST /transactions/deposit", handleDeposit(cfg.TransactionService, l))
	api.Handle("POST /transactions/withdraw", handleWithdraw(cfg.TransactionService, l))
	api.Handle("POST /transactions/transfer", handleTransfer(cfg.TransactionService, l))
	api.Handle("GET /transactions", handleListTransactions(cfg.TransactionService, l))

	api.Handle("POST /cards", handleCreateCard(cfg.CardService, l))
	api.Handle("GET /cards/{id}", handleGetCard(cfg.CardService, l))
	api.Handle("POST /cards/{id}/fund", handleFundCard(cfg.TransactionService, l))
	api.Handle("POST /cards/{id}/debit", handleDebitCard(cfg.TransactionService, l))
	api.Handle("POST /cards/{id}/unblock", handleUnblockCard(cfg.CardService, l))

	api.Handle("POST /webhooks/settlement", handleSettlementWebhook(cfg.WebhookSecret, cfg.ReconcilerService, cfg.CardService, l))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(l),
	)

	return handler
}

type walletService interface {
	// Has to return apperrors.ErrWalletAlreadyExists if the user already owns one
	Create(ctx context.Context, userID uuid.UUID, currency string) (models.Wallet, error)

	// Has to return apperrors.ErrWalletNotFound if wallet not found
	Get(ctx context.Context, matricule string) (models.Wallet, error)

	// Internal balance surface. Debit has to return
	// apperrors.ErrInsufficientFunds when the wallet cannot cover it
	Credit(ctx context.Context, matricule string, amount decimal.Decimal, reason string) (models.Wallet, error)
	Debit(ctx context.Context, matricule string, amount decimal.Decimal, reason string) (models.Wallet, error)
}

type cardService interface {
	Create(ctx context.Context, userID uuid.UUID, externalID string, name string) (models.VirtualCard, error)
	Get(ctx context.Context, id uuid.UUID) (models.VirtualCard, error)
	Activate(ctx context.Context, externalID string, paymentMethodID string) (models.VirtualCard, error)
	HandleCardEvent(ctx context.Context, cardExternalID string, accepted bool, amount decimal.Decimal) error
	Unblock(ctx context.Context, cardID uuid.UUID) (models.VirtualCard, error)
}

type transactionService interface {
	Deposit(ctx context.Context, req transaction.DepositRequest) (models.Transaction, error)
	Withdraw(ctx context.Context, req transaction.WithdrawRequest) (models.Transaction, error)
	Transfer(ctx context.Context, req transaction.TransferRequest) (models.Transaction, error)
	FundCard(ctx context.Context, req transaction.CardTransferRequest) (models.Transaction, error)
	DebitCard(ctx context.Context, req transaction.CardTransferRequest) (models.Transaction, error)
	ListByUser(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error)
}

type reconcilerService interface {
	// Idempotent: a terminal transaction is returned unchanged
	Reconcile(ctx context.Context, externalRef string, partnerStatus string) (models.Transaction, error)
}

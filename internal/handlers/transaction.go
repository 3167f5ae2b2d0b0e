package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/handlers/render"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/service/transaction"
)

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	SendoFees   decimal.Decimal `json:"sendo_fees"`
	Currency    string          `json:"currency"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	CardID      *uuid.UUID      `json:"card_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        t.Type,
		Method:      t.Method,
		Status:      t.Status,
		Amount:      t.Amount,
		TotalAmount: t.TotalAmount,
		SendoFees:   t.SendoFees,
		Currency:    t.Currency,
		ExternalRef: t.ExternalRef,
		CardID:      t.CardID,
		Reason:      t.Reason,
		CreatedAt:   t.CreatedAt,
	}
}

// renderInitiated answers a money-moving request. The flow is
// asynchronous: the caller gets the (usually still PENDING) entry and
// the final outcome arrives as a notification.
func renderInitiated(w http.ResponseWriter, l logger.Logger, tr models.Transaction, err error) {
	switch {
	case err == nil:
		render.JSONWithStatus(w, toTransactionResponse(tr), http.StatusAccepted)
	case errors.Is(err, apperrors.ErrWalletNotFound):
		render.ServiceError(w, "Wallet not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrWalletNotActive):
		render.ServiceError(w, "Wallet is not active", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrCardNotFound):
		render.ServiceError(w, "Card not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrCardTerminated):
		render.ServiceError(w, "Card is terminated", http.StatusUnprocessableEntity)
	default:
		l.Error("Failed to initiate transaction", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleDeposit(transactionService transactionService, l logger.Logger) http.Handler {
	type request struct {
		UserID      uuid.UUID       `json:"user_id" validate:"required"`
		Amount      decimal.Decimal `json:"amount" validate:"required"`
		PhoneNumber string          `json:"phone_number" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := transactionService.Deposit(r.Context(), transaction.DepositRequest{
			UserID:      req.UserID,
			Amount:      req.Amount,
			PhoneNumber: req.PhoneNumber,
		})
		renderInitiated(w, l, tr, err)
	})
}

func handleWithdraw(transactionService transactionService, l logger.Logger) http.Handler {
	type request struct {
		UserID      uuid.UUID          `json:"user_id" validate:"required"`
		Amount      decimal.Decimal    `json:"amount" validate:"required"`
		Method      string             `json:"method" validate:"omitempty,oneof=MOBILE_MONEY BANK_TRANSFER"`
		Destination string             `json:"destination" validate:"required"`
		Beneficiary models.Beneficiary `json:"beneficiary"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := transactionService.Withdraw(r.Context(), transaction.WithdrawRequest{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Method:      req.Method,
			Destination: req.Destination,
			Beneficiary: req.Beneficiary,
		})
		renderInitiated(w, l, tr, err)
	})
}

func handleTransfer(transactionService transactionService, l logger.Logger) http.Handler {
	type request struct {
		UserID               uuid.UUID       `json:"user_id" validate:"required"`
		DestinationMatricule string          `json:"destination_matricule" validate:"required,matricule"`
		Amount               decimal.Decimal `json:"amount" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := transactionService.Transfer(r.Context(), transaction.TransferRequest{
			UserID:               req.UserID,
			DestinationMatricule: req.DestinationMatricule,
			Amount:               req.Amount,
		})

		// Transfers settle internally, so the caller gets the COMPLETED
		// entry right away instead of the 202 the async flows answer
		switch {
		case err == nil:
			render.JSON(w, toTransactionResponse(tr))
		case errors.Is(err, apperrors.ErrWalletNotFound):
			render.ServiceError(w, "Wallet not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrWalletNotActive):
			render.ServiceError(w, "Wallet is not active", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		default:
			l.Error("Failed to transfer", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTransactions(transactionService transactionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			render.ServiceError(w, "Invalid or missing user_id", http.StatusBadRequest)
			return
		}

		opts := repository.ListTransactionsOpts{UserID: userID}
		if t := r.URL.Query().Get("type"); t != "" {
			opts.Types = []string{t}
		}
		if s := r.URL.Query().Get("status"); s != "" {
			opts.Statuses = []string{s}
		}

		transactions, err := transactionService.ListByUser(r.Context(), opts)
		if err != nil {
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]transactionResponse, 0, len(transactions))
		for _, tr := range transactions {
			res = append(res, toTransactionResponse(tr))
		}
		render.JSON(w, res)
	})
}

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
)

type walletResponse struct {
	Matricule string          `json:"matricule"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toWalletResponse(w models.Wallet) walletResponse {
	return walletResponse{
		Matricule: w.Matricule,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
	}
}

func handleCreateWallet(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		UserID   uuid.UUID `json:"user_id" validate:"required"`
		Currency string    `json:"currency"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wallet, err := walletService.Create(r.Context(), req.UserID, req.Currency)

		switch {
		case err == nil:
			render.JSONWithStatus(w, toWalletResponse(wallet), http.StatusCreated)
		case errors.Is(err, apperrors.ErrWalletAlreadyExists):
			render.ServiceError(w, "User already owns a wallet", http.StatusConflict)
		default:
			l.Error("Failed to create wallet", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleGetWallet(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, err := walletService.Get(r.Context(), r.PathValue("matricule"))

		switch {
		case err == nil:
			render.JSON(w, toWalletResponse(wallet))
		case errors.Is(err, apperrors.ErrWalletNotFound):
			render.ServiceError(w, "Wallet not found", http.StatusNotFound)
		default:
			l.Error("Failed to get wallet", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// handleMutateWallet serves both the credit and debit internal
// endpoints; they differ only in the service call.
func handleMutateWallet(l logger.Logger, mutate func(r *http.Request, amount decimal.Decimal, reason string) (models.Wallet, error)) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
		Reason string          `json:"reason"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wallet, err := mutate(r, req.Amount, req.Reason)

		switch {
		case err == nil:
			render.JSON(w, toWalletResponse(wallet))
		case errors.Is(err, apperrors.ErrWalletNotFound):
			render.ServiceError(w, "Wallet not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrWalletNotActive):
			render.ServiceError(w, "Wallet is not active", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		default:
			l.Error("Failed to mutate wallet balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleCreditWallet(walletService walletService, l logger.Logger) http.Handler {
	return handleMutateWallet(l, func(r *http.Request, amount decimal.Decimal, reason string) (models.Wallet, error) {
		return walletService.Credit(r.Context(), r.PathValue("matricule"), amount, reason)
	})
}

func handleDebitWallet(walletService walletService, l logger.Logger) http.Handler {
	return handleMutateWallet(l, func(r *http.Request, amount decimal.Decimal, reason string) (models.Wallet, error) {
		return walletService.Debit(r.Context(), r.PathValue("matricule"), amount, reason)
	})
}

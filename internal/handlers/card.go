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
	"github.com/sendo/ledger/internal/service/transaction"
)

type cardResponse struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Name                string    `json:"name"`
	MaskedNumber        string    `json:"masked_number,omitempty"`
	Status              string    `json:"status"`
	PaymentRejectNumber int       `json:"payment_reject_number"`
	CreatedAt           time.Time `json:"created_at"`
}

func toCardResponse(c models.VirtualCard) cardResponse {
	return cardResponse{
		ID:                  c.ID,
		UserID:              c.UserID,
		Name:                c.Name,
		MaskedNumber:        c.MaskedNumber,
		Status:              c.Status,
		PaymentRejectNumber: c.PaymentRejectNumber,
		CreatedAt:           c.CreatedAt,
	}
}

func handleCreateCard(cardService cardService, l logger.Logger) http.Handler {
	type request struct {
		UserID     uuid.UUID `json:"user_id" validate:"required"`
		ExternalID string    `json:"external_id" validate:"required"`
		Name       string    `json:"name" validate:"required,min=2"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		card, err := cardService.Create(r.Context(), req.UserID, req.ExternalID, req.Name)

		switch {
		case err == nil:
			render.JSONWithStatus(w, toCardResponse(card), http.StatusCreated)
		case errors.Is(err, apperrors.ErrWalletNotFound):
			render.ServiceError(w, "User has no wallet", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to create card", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleGetCard(cardService cardService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid card id", http.StatusBadRequest)
			return
		}

		card, err := cardService.Get(r.Context(), id)

		switch {
		case err == nil:
			render.JSON(w, toCardResponse(card))
		case errors.Is(err, apperrors.ErrCardNotFound):
			render.ServiceError(w, "Card not found", http.StatusNotFound)
		default:
			l.Error("Failed to get card", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// handleCardTransfer serves funding and debiting: the direction is the
// only difference between the two endpoints.
func handleCardTransfer(l logger.Logger, transfer func(r *http.Request, req transaction.CardTransferRequest) (models.Transaction, error)) http.Handler {
	type request struct {
		UserID uuid.UUID       `json:"user_id" validate:"required"`
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cardID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid card id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := transfer(r, transaction.CardTransferRequest{
			UserID: req.UserID,
			CardID: cardID,
			Amount: req.Amount,
		})
		renderInitiated(w, l, tr, err)
	})
}

func handleFundCard(transactionService transactionService, l logger.Logger) http.Handler {
	return handleCardTransfer(l, func(r *http.Request, req transaction.CardTransferRequest) (models.Transaction, error) {
		return transactionService.FundCard(r.Context(), req)
	})
}

func handleDebitCard(transactionService transactionService, l logger.Logger) http.Handler {
	return handleCardTransfer(l, func(r *http.Request, req transaction.CardTransferRequest) (models.Transaction, error) {
		return transactionService.DebitCard(r.Context(), req)
	})
}

func handleUnblockCard(cardService cardService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid card id", http.StatusBadRequest)
			return
		}

		card, err := cardService.Unblock(r.Context(), id)

		switch {
		case err == nil:
			render.JSON(w, toCardResponse(card))
		case errors.Is(err, apperrors.ErrCardNotFound):
			render.ServiceError(w, "Card not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds for unlock fee", http.StatusPaymentRequired)
		default:
			l.Error("Failed to unblock card", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

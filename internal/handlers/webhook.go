package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/handlers/render"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/service/reconciler"
)

// webhookClaims is the partner envelope: the event rides inside a
// compact JWS signed with the shared webhook secret.
type webhookClaims struct {
	jwt.RegisteredClaims
	Event reconciler.Event `json:"event"`
}

// handleSettlementWebhook verifies the JWS and dispatches the event.
// Handled events always answer 200: the partner retries anything else,
// and a bad reference or an already-terminal transaction is our
// problem to log, not theirs to redeliver.
func handleSettlementWebhook(secret string, reconcilerService reconcilerService, cardService cardService, l logger.Logger) http.Handler {
	keyFunc := func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		var claims webhookClaims
		_, err = jwt.ParseWithClaims(string(body), &claims, keyFunc,
			jwt.WithValidMethods([]string{"HS256"}),
		)
		if err != nil {
			l.Warn("Webhook signature rejected", "error", err)
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		if err := dispatchEvent(r, claims.Event, reconcilerService, cardService, l); err != nil {
			l.Error("Failed to process webhook event", "error", err, "type", claims.Event.Type)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, map[string]bool{"received": true})
	})
}

func dispatchEvent(r *http.Request, ev reconciler.Event, reconcilerService reconcilerService, cardService cardService, l logger.Logger) error {
	ctx := r.Context()
	obj := ev.Data.Object

	switch ev.Type {
	case reconciler.EventIntentStatusUpdated:
		if obj.TransactionIntentID == "" {
			l.Warn("Intent event without intent id dropped")
			return nil
		}

		_, err := reconcilerService.Reconcile(ctx, obj.TransactionIntentID, obj.StatusValue())
		if errors.Is(err, apperrors.ErrTransactionNotFound) {
			// The partner knows intents we never created (other tenants,
			// manual operations); acknowledged and dropped
			l.Warn("Intent event for unknown reference", "ref", obj.TransactionIntentID)
			return nil
		}
		return err

	case reconciler.EventCardTransaction:
		if obj.CardID == "" {
			l.Warn("Card event without card id dropped")
			return nil
		}

		accepted := gateway.MapStatus(obj.StatusValue()) != models.TransactionStatusFailed
		err := cardService.HandleCardEvent(ctx, obj.CardID, accepted, obj.Amount)
		if errors.Is(err, apperrors.ErrCardNotFound) {
			l.Warn("Card event for unknown card", "card_external_id", obj.CardID)
			return nil
		}
		return err

	case reconciler.EventOnboardingUpdated:
		if gateway.MapStatus(obj.StatusValue()) != models.TransactionStatusCompleted {
			return nil
		}
		if obj.CardID == "" || obj.PaymentMethodID == "" {
			return fmt.Errorf("onboarding event missing card or payment method id")
		}

		_, err := cardService.Activate(ctx, obj.CardID, obj.PaymentMethodID)
		if errors.Is(err, apperrors.ErrCardNotFound) {
			l.Warn("Onboarding event for unknown card", "card_external_id", obj.CardID)
			return nil
		}
		return err

	default:
		// Unknown event types are acknowledged so the partner stops
		// retrying them
		l.Info("Unhandled webhook event type", "type", ev.Type)
		return nil
	}
}

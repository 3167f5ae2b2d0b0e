// Package card owns the virtual card lifecycle and the fee capture
// cascade: card balance first, wallet second, debt for what is left.
package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/fees"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/service/notify"
)

type settlementGateway interface {
	GetCardBalance(ctx context.Context, paymentMethodID string) (decimal.Decimal, error)
	CreateCashOut(ctx context.Context, p gateway.Payload) (string, error)
	TerminateCard(ctx context.Context, cardExternalID string) error
}

type debtSweeper interface {
	SettleDebtsIfAny(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID)
}

type Service struct {
	storage  repository.Storage
	gateway  settlementGateway
	notifier notify.Notifier
	sweeper  debtSweeper

	logger logger.Logger
}

func NewService(storage repository.Storage, gw settlementGateway, notifier notify.Notifier, sweeper debtSweeper, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		gateway:  gw,
		notifier: notifier,
		sweeper:  sweeper,
		logger:   l,
	}
}

// Create registers a card in PRE_ACTIVE state. The partner attaches the
// payment method handle later, through the onboarding callback.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, externalID string, name string) (models.VirtualCard, error) {
	// The user must hold a wallet before owning a card: the wallet is
	// the fallback funding source for every card fee.
	if _, err := s.storage.Wallet().GetByUserID(ctx, userID); err != nil {
		return models.VirtualCard{}, fmt.Errorf("card create: %w", err)
	}

	return s.storage.Card().Create(ctx, models.VirtualCard{
		ID:         uuid.New(),
		UserID:     userID,
		ExternalID: externalID,
		Name:       name,
		Status:     models.CardStatusPreActive,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.VirtualCard, error) {
	return s.storage.Card().GetByID(ctx, id)
}

// Activate attaches the partner payment method handle and moves the
// card to ACTIVE. Driven by the partner onboarding callback.
func (s *Service) Activate(ctx context.Context, externalID string, paymentMethodID string) (models.VirtualCard, error) {
	card, err := s.storage.Card().GetByExternalID(ctx, externalID)
	if err != nil {
		return models.VirtualCard{}, err
	}
	if card.IsTerminated() {
		return models.VirtualCard{}, apperrors.ErrCardTerminated
	}

	if _, err = s.storage.Card().SetPaymentMethod(ctx, card.ID, paymentMethodID); err != nil {
		return models.VirtualCard{}, err
	}

	return s.storage.Card().SetStatus(ctx, card.ID, models.CardStatusActive)
}

// CaptureFee collects the fee from the card balance first, then from
// the wallet, and records a debt for whatever could not be collected.
// The ledger writes, the wallet debit and the debt creation commit as
// one unit; only the partner cash-out happens outside of it.
func (s *Service) CaptureFee(ctx context.Context, card models.VirtualCard, fee decimal.Decimal, label string) error {
	if !fee.IsPositive() {
		return nil
	}

	// Card cash-outs settle in the owning wallet's currency.
	wallet, err := s.storage.Wallet().GetByUserID(ctx, card.UserID)
	if err != nil {
		return fmt.Errorf("capture fee: %w", err)
	}

	fromCard, cardRef := s.captureFromCard(ctx, card, fee, wallet.Currency)
	shortfall := fee.Sub(fromCard)

	var debt *models.Debt
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if fromCard.IsPositive() {
			_, err := st.Transaction().Create(ctx, models.Transaction{
				ID:          uuid.New(),
				Type:        models.TransactionTypeFee,
				Method:      models.MethodVirtualCard,
				Status:      models.TransactionStatusCompleted,
				Amount:      fromCard,
				TotalAmount: fromCard,
				Currency:    wallet.Currency,
				ExternalRef: &cardRef,
				UserID:      card.UserID,
				CardID:      &card.ID,
				Reason:      label,
			})
			if err != nil {
				return err
			}
		}

		if shortfall.IsPositive() {
			paid, err := s.captureFromWallet(ctx, st, card, shortfall, label)
			if err != nil {
				return err
			}
			shortfall = shortfall.Sub(paid)
		}

		if shortfall.IsPositive() {
			d, err := st.Debt().Create(ctx, models.Debt{
				ID:     uuid.New(),
				UserID: card.UserID,
				CardID: card.ID,
				Amount: shortfall,
				Label:  label,
			})
			if err != nil {
				return err
			}
			debt = &d
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("capture fee: %w", err)
	}

	if debt != nil {
		s.notifier.DebtCreated(ctx, *debt)
	}

	return nil
}

// captureFromCard moves up to fee off the card through the partner and
// returns the amount actually captured with its intent id. Partner
// failures degrade to a zero capture: the cascade falls through to the
// wallet and, failing that, to a debt.
func (s *Service) captureFromCard(ctx context.Context, card models.VirtualCard, fee decimal.Decimal, currency string) (decimal.Decimal, string) {
	if card.PaymentMethodID == "" || card.IsTerminated() {
		return decimal.Zero, ""
	}

	balance, err := s.gateway.GetCardBalance(ctx, card.PaymentMethodID)
	if err != nil {
		s.logger.Warn("Fee capture: card balance unavailable", "error", err, "card_id", card.ID)
		return decimal.Zero, ""
	}

	take := fees.RoundCashOut(decimal.Min(fee, balance))
	if !take.IsPositive() {
		return decimal.Zero, ""
	}

	ref, err := s.gateway.CreateCashOut(ctx, gateway.CardPayload{
		Value:        take,
		CurrencyCode: currency,
		Source:       card.PaymentMethodID,
	})
	if err != nil {
		s.logger.Warn("Fee capture: card cash-out failed", "error", err, "card_id", card.ID)
		return decimal.Zero, ""
	}

	return take, ref
}

// captureFromWallet debits what the wallet can afford, up to shortfall,
// and writes the matching ledger entry. An empty wallet captures zero.
func (s *Service) captureFromWallet(ctx context.Context, st repository.Storage, card models.VirtualCard, shortfall decimal.Decimal, label string) (decimal.Decimal, error) {
	w, err := st.Wallet().GetByUserID(ctx, card.UserID)
	if err != nil {
		return decimal.Zero, err
	}

	take := decimal.Min(shortfall, w.Balance)
	if !take.IsPositive() {
		return decimal.Zero, nil
	}

	if _, err = st.Wallet().Debit(ctx, w.Matricule, take); err != nil {
		return decimal.Zero, err
	}

	_, err = st.Transaction().Create(ctx, models.Transaction{
		ID:          uuid.New(),
		Type:        models.TransactionTypeFee,
		Method:      models.MethodWallet,
		Status:      models.TransactionStatusCompleted,
		Amount:      take,
		TotalAmount: take,
		Currency:    w.Currency,
		UserID:      card.UserID,
		CardID:      &card.ID,
		Reason:      label,
	})
	if err != nil {
		return decimal.Zero, err
	}

	return take, nil
}

// HandleCardEvent processes a card-originated purchase callback. The
// service fee is owed whether the network accepted the purchase or
// declined it; a declined purchase additionally costs the flat reject
// fee and bumps the reject counter.
func (s *Service) HandleCardEvent(ctx context.Context, cardExternalID string, accepted bool, amount decimal.Decimal) error {
	card, err := s.storage.Card().GetByExternalID(ctx, cardExternalID)
	if err != nil {
		return err
	}
	if card.IsTerminated() {
		// Terminated is absorbing: late events change nothing
		s.logger.Info("Card event on terminated card ignored", "card_id", card.ID)
		return nil
	}

	if accepted {
		fee, err := s.paymentFee(ctx, amount)
		if err != nil {
			return err
		}
		return s.CaptureFee(ctx, card, fee, "card payment fee")
	}

	rejectFee, err := s.storage.Config().Get(ctx, models.ConfigCardRejectFee)
	if err != nil {
		return err
	}
	if err := s.CaptureFee(ctx, card, rejectFee, "card payment rejected"); err != nil {
		return err
	}

	card, err = s.storage.Card().IncrementRejects(ctx, card.ID)
	if err != nil {
		return err
	}

	if card.PaymentRejectNumber >= models.MaxPaymentRejects {
		return s.terminate(ctx, card)
	}

	return nil
}

func (s *Service) paymentFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	percent, err := s.storage.Config().Get(ctx, models.ConfigCardPaymentFeePercent)
	if err != nil {
		return decimal.Zero, err
	}
	fixed, err := s.storage.Config().Get(ctx, models.ConfigCardPaymentFeeFixed)
	if err != nil {
		return decimal.Zero, err
	}

	return fees.Compute(amount, percent, fixed), nil
}

// terminate sweeps the remaining card balance back to the wallet, closes
// the card with the partner and marks it TERMINATED. Any wallet credit
// from the sweep immediately feeds the debt sweep.
func (s *Service) terminate(ctx context.Context, card models.VirtualCard) error {
	swept := s.sweepCardBalance(ctx, card)

	if err := s.gateway.TerminateCard(ctx, card.ExternalID); err != nil {
		// The card is closed locally regardless: the partner side can
		// be retried by support tooling.
		s.logger.Error("Card termination: partner call failed", "error", err, "card_id", card.ID)
	}

	card, err := s.storage.Card().SetStatus(ctx, card.ID, models.CardStatusTerminated)
	if errors.Is(err, apperrors.ErrCardTerminated) {
		// A concurrent event already closed the card
		return nil
	}
	if err != nil {
		return err
	}

	s.notifier.CardTerminated(ctx, card)

	if swept.IsPositive() {
		s.sweeper.SettleDebtsIfAny(ctx, card.UserID, &card.ID)
	}

	return nil
}

// sweepCardBalance drains the card into the wallet as a completed
// deposit. Best effort: a failed sweep never blocks the termination.
func (s *Service) sweepCardBalance(ctx context.Context, card models.VirtualCard) decimal.Decimal {
	if card.PaymentMethodID == "" {
		return decimal.Zero
	}

	w, err := s.storage.Wallet().GetByUserID(ctx, card.UserID)
	if err != nil {
		s.logger.Warn("Card sweep: wallet unavailable", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	balance, err := s.gateway.GetCardBalance(ctx, card.PaymentMethodID)
	if err != nil {
		s.logger.Warn("Card sweep: balance unavailable", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	residue := fees.RoundCashOut(balance)
	if !residue.IsPositive() {
		return decimal.Zero
	}

	ref, err := s.gateway.CreateCashOut(ctx, gateway.CardPayload{
		Value:        residue,
		CurrencyCode: w.Currency,
		Source:       card.PaymentMethodID,
	})
	if err != nil {
		s.logger.Error("Card sweep: cash-out failed", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.Wallet().Credit(ctx, w.Matricule, residue); err != nil {
			return err
		}

		_, err := st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeDeposit,
			Method:      models.MethodVirtualCard,
			Status:      models.TransactionStatusCompleted,
			Amount:      residue,
			TotalAmount: residue,
			Currency:    w.Currency,
			ExternalRef: &ref,
			UserID:      card.UserID,
			CardID:      &card.ID,
			Reason:      "card termination sweep",
		})
		return err
	})
	if err != nil {
		s.logger.Error("Card sweep: failed to record", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	return residue
}

// Unblock is the administrative repay flow: the unlock fee is debited
// from the wallet in full, the reject counter resets and the card goes
// back to ACTIVE. Unlike CaptureFee this never records a debt: a user
// who cannot pay the fee keeps the card blocked.
func (s *Service) Unblock(ctx context.Context, cardID uuid.UUID) (models.VirtualCard, error) {
	card, err := s.storage.Card().GetByID(ctx, cardID)
	if err != nil {
		return models.VirtualCard{}, err
	}
	if card.IsTerminated() {
		// Terminated is absorbing: the unlock flow only reopens blocked
		// cards, never closed ones
		return models.VirtualCard{}, apperrors.ErrCardTerminated
	}

	unlockFee, err := s.storage.Config().Get(ctx, models.ConfigCardUnlockFee)
	if err != nil {
		return models.VirtualCard{}, err
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUserID(ctx, card.UserID)
		if err != nil {
			return err
		}

		if _, err = st.Wallet().Debit(ctx, w.Matricule, unlockFee); err != nil {
			return err
		}

		_, err = st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeFee,
			Method:      models.MethodWallet,
			Status:      models.TransactionStatusCompleted,
			Amount:      unlockFee,
			TotalAmount: unlockFee,
			Currency:    w.Currency,
			UserID:      card.UserID,
			CardID:      &card.ID,
			Reason:      "card unlock fee",
		})
		if err != nil {
			return err
		}

		if _, err = st.Card().ResetRejects(ctx, card.ID); err != nil {
			return err
		}

		card, err = st.Card().SetStatus(ctx, card.ID, models.CardStatusActive)
		return err
	})
	if err != nil {
		return models.VirtualCard{}, fmt.Errorf("card unblock: %w", err)
	}

	return card, nil
}

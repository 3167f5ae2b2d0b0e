// Package debt tracks fee shortfalls and opportunistically pays them
// down whenever a balance increases.
package debt

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/fees"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/service/notify"
)

// FundingSource names a place debt money can be collected from.
type FundingSource string

const (
	SourceCard   FundingSource = "card"
	SourceWallet FundingSource = "wallet"
)

// DefaultSources collects from the card first: the card is the object
// that owes the debt. The order is policy, not law.
var DefaultSources = []FundingSource{SourceCard, SourceWallet}

type cardGateway interface {
	GetCardBalance(ctx context.Context, paymentMethodID string) (decimal.Decimal, error)
	CreateCashOut(ctx context.Context, p gateway.Payload) (string, error)
}

type Service struct {
	storage  repository.Storage
	gateway  cardGateway
	notifier notify.Notifier
	sources  []FundingSource

	logger logger.Logger
}

func NewService(storage repository.Storage, gw cardGateway, notifier notify.Notifier, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		gateway:  gw,
		notifier: notifier,
		sources:  DefaultSources,
		logger:   l,
	}
}

// SettleDebtsIfAny pays outstanding debts oldest first, card balance
// before wallet balance, until funds run out. Best effort: every failure
// is logged and swallowed so the triggering deposit never fails because
// of debt collection.
func (s *Service) SettleDebtsIfAny(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) {
	var debts []models.Debt
	var err error

	if cardID != nil {
		debts, err = s.storage.Debt().ListForCard(ctx, userID, *cardID)
	} else {
		debts, err = s.storage.Debt().ListForUser(ctx, userID)
	}
	if err != nil {
		s.logger.Error("Debt sweep: failed to list debts", "error", err, "user_id", userID)
		return
	}

	for _, d := range debts {
		paid := s.settleOne(ctx, d)
		if paid.IsZero() {
			// Funds exhausted, younger debts can't do better
			return
		}
	}
}

// settleOne collects as much of the debt as the funding sources allow
// and returns the amount actually paid.
func (s *Service) settleOne(ctx context.Context, d models.Debt) decimal.Decimal {
	card, err := s.storage.Card().GetByID(ctx, d.CardID)
	if err != nil {
		s.logger.Error("Debt sweep: failed to load card", "error", err, "debt_id", d.ID)
		return decimal.Zero
	}

	totalPaid := decimal.Zero

	for _, source := range s.sources {
		remaining := d.Amount.Sub(totalPaid)
		if !remaining.IsPositive() {
			break
		}

		var paid decimal.Decimal
		switch source {
		case SourceCard:
			paid = s.payFromCard(ctx, d, card, remaining)
		case SourceWallet:
			paid = s.payFromWallet(ctx, d, card, remaining)
		}

		totalPaid = totalPaid.Add(paid)
	}

	if totalPaid.IsZero() {
		return totalPaid
	}

	remaining := d.Amount.Sub(totalPaid)
	if remaining.IsPositive() {
		d.Amount = remaining
		s.notifier.DebtPartiallyPaid(ctx, d, totalPaid)
	} else {
		s.notifier.DebtPaid(ctx, d)
	}

	return totalPaid
}

// payFromCard pulls up to remaining off the card through the settlement
// partner, then applies the ledger write and the debt mutation together.
func (s *Service) payFromCard(ctx context.Context, d models.Debt, card models.VirtualCard, remaining decimal.Decimal) decimal.Decimal {
	if card.PaymentMethodID == "" || card.IsTerminated() {
		return decimal.Zero
	}

	balance, err := s.gateway.GetCardBalance(ctx, card.PaymentMethodID)
	if err != nil {
		s.logger.Warn("Debt sweep: card balance unavailable", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	take := fees.RoundCashOut(decimal.Min(remaining, balance))
	if !take.IsPositive() {
		return decimal.Zero
	}

	// The card leg settles in the owning wallet's currency.
	w, err := s.storage.Wallet().GetByUserID(ctx, d.UserID)
	if err != nil {
		s.logger.Warn("Debt sweep: wallet unavailable", "error", err, "debt_id", d.ID)
		return decimal.Zero
	}

	ref, err := s.gateway.CreateCashOut(ctx, gateway.CardPayload{
		Value:        take,
		CurrencyCode: w.Currency,
		Source:       card.PaymentMethodID,
	})
	if err != nil {
		s.logger.Warn("Debt sweep: card cash-out failed", "error", err, "card_id", card.ID)
		return decimal.Zero
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		_, err := st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeFee,
			Method:      models.MethodVirtualCard,
			Status:      models.TransactionStatusCompleted,
			Amount:      take,
			TotalAmount: take,
			Currency:    w.Currency,
			ExternalRef: &ref,
			UserID:      d.UserID,
			CardID:      &card.ID,
			Reason:      "debt settlement: " + d.Label,
		})
		if err != nil {
			return err
		}

		return s.applyDebtPayment(ctx, st, d.ID, remaining, take)
	})
	if err != nil {
		s.logger.Error("Debt sweep: failed to record card payment", "error", err, "debt_id", d.ID)
		return decimal.Zero
	}

	return take
}

// payFromWallet debits the wallet, writes the ledger entry and mutates
// the debt as one atomic unit.
func (s *Service) payFromWallet(ctx context.Context, d models.Debt, card models.VirtualCard, remaining decimal.Decimal) decimal.Decimal {
	paid := decimal.Zero

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUserID(ctx, d.UserID)
		if err != nil {
			return err
		}

		take := decimal.Min(remaining, w.Balance)
		if !take.IsPositive() {
			return nil
		}

		w, err = st.Wallet().Debit(ctx, w.Matricule, take)
		if err != nil {
			return err
		}

		_, err = st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeFee,
			Method:      models.MethodWallet,
			Status:      models.TransactionStatusCompleted,
			Amount:      take,
			TotalAmount: take,
			Currency:    w.Currency,
			UserID:      d.UserID,
			CardID:      &card.ID,
			Reason:      "debt settlement: " + d.Label,
		})
		if err != nil {
			return err
		}

		if err := s.applyDebtPayment(ctx, st, d.ID, remaining, take); err != nil {
			return err
		}

		paid = take
		return nil
	})
	if err != nil {
		s.logger.Error("Debt sweep: failed to pay from wallet", "error", err, "debt_id", d.ID)
		return decimal.Zero
	}

	return paid
}

// applyDebtPayment decrements the debt or destroys it once fully paid.
// Zero or negative remainders never persist.
func (s *Service) applyDebtPayment(ctx context.Context, st repository.Storage, debtID uuid.UUID, remaining decimal.Decimal, paid decimal.Decimal) error {
	if paid.GreaterThanOrEqual(remaining) {
		return st.Debt().Delete(ctx, debtID)
	}

	_, err := st.Debt().Decrement(ctx, debtID, paid)
	return err
}

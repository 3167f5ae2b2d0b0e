// Package reconciler closes PENDING ledger entries. Webhook callbacks
// and the background poller both funnel into the same idempotent
// transition function, so the trigger source never matters.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/service/notify"
)

type debtSweeper interface {
	SettleDebtsIfAny(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID)
}

type Service struct {
	storage  repository.Storage
	notifier notify.Notifier
	sweeper  debtSweeper

	logger logger.Logger
}

func NewService(storage repository.Storage, notifier notify.Notifier, sweeper debtSweeper, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		notifier: notifier,
		sweeper:  sweeper,
		logger:   l,
	}
}

// Reconcile applies the partner status to the transaction holding the
// external reference. Idempotent: a terminal transaction is returned
// unchanged whatever the signal says, so duplicate and out-of-order
// callbacks are harmless. The row is locked for the duration of the
// transition, so two concurrent signals for the same ref serialize.
func (s *Service) Reconcile(ctx context.Context, externalRef string, partnerStatus string) (models.Transaction, error) {
	status := gateway.MapStatus(partnerStatus)

	var result models.Transaction
	var creditedWallet, transitioned bool

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		tr, err := st.Transaction().GetByExternalRef(ctx, externalRef, true)
		if err != nil {
			return err
		}

		if tr.IsTerminal() {
			result = tr
			return nil
		}

		if status == models.TransactionStatusPending {
			// Non-definitive signal: leave the row for a later trigger
			result = tr
			return nil
		}

		if status == models.TransactionStatusCompleted {
			creditedWallet, err = s.applyCompletion(ctx, st, tr)
			if err != nil {
				return err
			}
		}

		result, err = st.Transaction().Finalize(ctx, tr.ID, status)
		transitioned = err == nil
		return err
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("reconcile %s: %w", externalRef, err)
	}

	// A duplicate or out-of-order signal took the no-op branch above;
	// the user was already notified when the row first went terminal.
	if transitioned {
		s.afterCommit(ctx, result, creditedWallet)
	}
	return result, nil
}

// applyCompletion performs the balance effect for a completing
// transaction, by (type, method). Reports whether the wallet gained
// funds, which is what arms the debt sweep.
func (s *Service) applyCompletion(ctx context.Context, st repository.Storage, tr models.Transaction) (bool, error) {
	wallet, err := st.Wallet().GetByUserID(ctx, tr.UserID)
	if err != nil {
		return false, err
	}

	switch {
	case tr.Type == models.TransactionTypeDeposit:
		// Wallet gains the principal; fees stayed with the platform
		if _, err := st.Wallet().Credit(ctx, wallet.Matricule, tr.Amount); err != nil {
			return false, err
		}
		return true, nil

	case tr.Type == models.TransactionTypeWithdrawal,
		tr.Type == models.TransactionTypePayment && tr.Method == models.MethodVirtualCard:
		// Funds left through the settlement leg: debit amount + fee.
		// The balance was validated at initiation but may have moved
		// since; an uncovered debit becomes a debt, never a stuck row.
		if _, err := st.Wallet().Debit(ctx, wallet.Matricule, tr.TotalAmount); err != nil {
			if !errors.Is(err, apperrors.ErrInsufficientFunds) {
				return false, err
			}
			return false, s.debitShortfall(ctx, st, tr, wallet)
		}
		return false, nil

	default:
		// Transfers and fee captures settle on their own legs
		return false, nil
	}
}

// debitShortfall drains what the wallet still holds and records the
// rest as a debt, so the completed settlement leg stays accounted for.
func (s *Service) debitShortfall(ctx context.Context, st repository.Storage, tr models.Transaction, wallet models.Wallet) error {
	if wallet.Balance.IsPositive() {
		if _, err := st.Wallet().Debit(ctx, wallet.Matricule, wallet.Balance); err != nil {
			return err
		}
	}

	if tr.CardID == nil {
		// No card to attach the debt to: log it for manual correction
		s.logger.Error("Reconcile: wallet could not cover completed debit",
			"transaction_id", tr.ID, "shortfall", tr.TotalAmount.Sub(wallet.Balance))
		return nil
	}

	debt, err := st.Debt().Create(ctx, models.Debt{
		ID:     uuid.New(),
		UserID: tr.UserID,
		CardID: *tr.CardID,
		Amount: tr.TotalAmount.Sub(wallet.Balance),
		Label:  "settlement shortfall: " + tr.Reason,
	})
	if err != nil {
		return err
	}

	s.notifier.DebtCreated(ctx, debt)
	return nil
}

// afterCommit delivers notifications and, when the wallet gained funds,
// runs the debt sweep. Both happen outside the db transaction: neither
// may roll back a settled reconciliation.
func (s *Service) afterCommit(ctx context.Context, tr models.Transaction, creditedWallet bool) {
	switch tr.Status {
	case models.TransactionStatusCompleted:
		s.notifier.TransactionCompleted(ctx, tr)
	case models.TransactionStatusFailed:
		s.notifier.TransactionFailed(ctx, tr)
	}

	if creditedWallet {
		s.sweeper.SettleDebtsIfAny(ctx, tr.UserID, tr.CardID)
	}
}

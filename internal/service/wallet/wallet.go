// Package wallet implements the balance store operations other
// collaborators consume: create, credit and debit.
package wallet

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
)

type WalletService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *WalletService {
	return &WalletService{storage: storage}
}

// NewMatricule derives a wallet address of the form SW-0123456789.
func NewMatricule() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8]) % 10_000_000_000
	return fmt.Sprintf("SW-%010d", n)
}

// Create opens a wallet for the user. One wallet per user.
func (s *WalletService) Create(ctx context.Context, userID uuid.UUID, currency string) (models.Wallet, error) {
	if currency == "" {
		currency = models.DefaultCurrency
	}

	wallet, err := s.storage.Wallet().Create(ctx, models.Wallet{
		ID:        uuid.New(),
		Matricule: NewMatricule(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Status:    models.WalletStatusActive,
	})
	if err != nil {
		return wallet, fmt.Errorf("can't create wallet. Err: %w", err)
	}

	return wallet, nil
}

func (s *WalletService) Get(ctx context.Context, matricule string) (models.Wallet, error) {
	return s.storage.Wallet().GetByMatricule(ctx, matricule)
}

func (s *WalletService) GetByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return s.storage.Wallet().GetByUserID(ctx, userID)
}

// Credit adds amount to the wallet and records a completed WALLET
// transaction. Balance mutation and ledger write commit together.
func (s *WalletService) Credit(ctx context.Context, matricule string, amount decimal.Decimal, reason string) (models.Wallet, error) {
	var wallet models.Wallet

	if !amount.IsPositive() {
		return wallet, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().Credit(ctx, matricule, amount)
		if err != nil {
			return err
		}

		_, err = st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeDeposit,
			Method:      models.MethodWallet,
			Status:      models.TransactionStatusCompleted,
			Amount:      amount,
			TotalAmount: amount,
			SendoFees:   decimal.Zero,
			PartnerFees: decimal.Zero,
			Currency:    w.Currency,
			UserID:      w.UserID,
			Reason:      reason,
		})
		if err != nil {
			return err
		}

		wallet = w
		return nil
	})
	if err != nil {
		return wallet, err
	}

	return wallet, nil
}

// Debit removes amount from the wallet and records a completed WALLET
// transaction. Fails closed with apperrors.ErrInsufficientFunds.
func (s *WalletService) Debit(ctx context.Context, matricule string, amount decimal.Decimal, reason string) (models.Wallet, error) {
	var wallet models.Wallet

	if !amount.IsPositive() {
		return wallet, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().Debit(ctx, matricule, amount)
		if err != nil {
			return err
		}

		_, err = st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeWithdrawal,
			Method:      models.MethodWallet,
			Status:      models.TransactionStatusCompleted,
			Amount:      amount,
			TotalAmount: amount,
			SendoFees:   decimal.Zero,
			PartnerFees: decimal.Zero,
			Currency:    w.Currency,
			UserID:      w.UserID,
			Reason:      reason,
		})
		if err != nil {
			return err
		}

		wallet = w
		return nil
	})
	if err != nil {
		return wallet, err
	}

	return wallet, nil
}

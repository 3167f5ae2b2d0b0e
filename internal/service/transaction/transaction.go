// Package transaction initiates the money-moving flows: deposits,
// withdrawals and wallet-card transfers. Every flow writes a PENDING
// ledger entry before the partner call; the reconciler closes it.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/fees"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
)

// firstCheckDelay is how long after intent creation the background
// poller first asks the partner for a status.
const firstCheckDelay = 5 * time.Second

type settlementGateway interface {
	CreateCashIn(ctx context.Context, p gateway.Payload) (string, error)
	CreateCashOut(ctx context.Context, p gateway.Payload) (string, error)
}

type Service struct {
	storage repository.Storage
	gateway settlementGateway

	logger logger.Logger
}

func NewService(storage repository.Storage, gw settlementGateway, l logger.Logger) *Service {
	return &Service{
		storage: storage,
		gateway: gw,
		logger:  l,
	}
}

type DepositRequest struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	// PhoneNumber is the mobile-money account the funds come from.
	PhoneNumber string
}

type WithdrawRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Method      string
	Destination string
	Beneficiary models.Beneficiary
}

type CardTransferRequest struct {
	UserID uuid.UUID
	CardID uuid.UUID
	Amount decimal.Decimal
}

type TransferRequest struct {
	UserID               uuid.UUID
	DestinationMatricule string
	Amount               decimal.Decimal
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return s.storage.Transaction().GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	return s.storage.Transaction().List(ctx, opts)
}

// Create writes a PENDING ledger entry with fees already computed from
// config. Building block for the flows below; exported for flows that
// settle outside the gateway.
func (s *Service) Create(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.Status == "" {
		tr.Status = models.TransactionStatusPending
	}
	if tr.TotalAmount.IsZero() {
		tr.TotalAmount = tr.Amount.Add(tr.SendoFees)
	}

	return s.storage.Transaction().Create(ctx, tr)
}

// Deposit initiates a mobile-money cash-in. The payer is charged
// amount + fee, rounded up to the partner's multiple of five; the
// wallet is credited with the principal once the intent completes.
//
// A gateway failure is not a deposit failure: the intent may still
// exist partner-side, so the entry stays PENDING and the caller gets
// the transaction back for asynchronous resolution.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (models.Transaction, error) {
	wallet, err := s.storage.Wallet().GetByUserID(ctx, req.UserID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !wallet.IsActive() {
		return models.Transaction{}, apperrors.ErrWalletNotActive
	}
	if !req.Amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("deposit: amount must be positive")
	}

	fee, err := s.feeFor(ctx, req.Amount, models.ConfigDepositFeePercent, models.ConfigDepositFeeFixed)
	if err != nil {
		return models.Transaction{}, err
	}

	tr, err := s.Create(ctx, models.Transaction{
		Type:      models.TransactionTypeDeposit,
		Method:    models.MethodMobileMoney,
		Amount:    req.Amount,
		SendoFees: fee,
		Currency:  wallet.Currency,
		UserID:    req.UserID,
		Reason:    "wallet deposit",
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return s.dispatch(ctx, tr, func(ctx context.Context) (string, error) {
		return s.gateway.CreateCashIn(ctx, gateway.MobileMoneyPayload{
			Value:        fees.RoundCashIn(tr.TotalAmount),
			CurrencyCode: tr.Currency,
			Source:       req.PhoneNumber,
		})
	})
}

// Withdraw initiates a cash-out to mobile money or a bank account. The
// wallet only needs to cover amount + fee at initiation; the debit is
// applied when the intent completes.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (models.Transaction, error) {
	wallet, err := s.storage.Wallet().GetByUserID(ctx, req.UserID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !wallet.IsActive() {
		return models.Transaction{}, apperrors.ErrWalletNotActive
	}
	if !req.Amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("withdraw: amount must be positive")
	}

	fee, err := s.feeFor(ctx, req.Amount, models.ConfigWithdrawalFeePercent, models.ConfigWithdrawalFeeFixed)
	if err != nil {
		return models.Transaction{}, err
	}
	if wallet.Balance.LessThan(req.Amount.Add(fee)) {
		return models.Transaction{}, apperrors.ErrInsufficientFunds
	}

	method := req.Method
	if method == "" {
		method = models.MethodMobileMoney
	}

	tr, err := s.Create(ctx, models.Transaction{
		Type:        models.TransactionTypeWithdrawal,
		Method:      method,
		Amount:      req.Amount,
		SendoFees:   fee,
		Currency:    wallet.Currency,
		UserID:      req.UserID,
		Beneficiary: &req.Beneficiary,
		Reason:      "wallet withdrawal",
	})
	if err != nil {
		return models.Transaction{}, err
	}

	payout := fees.RoundCashOut(req.Amount)
	return s.dispatch(ctx, tr, func(ctx context.Context) (string, error) {
		if method == models.MethodBankTransfer {
			return s.gateway.CreateCashOut(ctx, gateway.BankPayload{
				Value:        payout,
				CurrencyCode: tr.Currency,
				Destination:  req.Destination,
			})
		}
		return s.gateway.CreateCashOut(ctx, gateway.MobileMoneyPayload{
			Value:        payout,
			CurrencyCode: tr.Currency,
			Destination:  req.Destination,
		})
	})
}

// Transfer moves funds to another wallet by matricule. Both legs are
// internal, so the entry completes immediately: no settlement intent,
// no reconciliation, no fee.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (models.Transaction, error) {
	if !req.Amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("transfer: amount must be positive")
	}

	source, err := s.storage.Wallet().GetByUserID(ctx, req.UserID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !source.IsActive() {
		return models.Transaction{}, apperrors.ErrWalletNotActive
	}
	if source.Matricule == req.DestinationMatricule {
		return models.Transaction{}, fmt.Errorf("transfer: destination is the source wallet")
	}

	destination, err := s.storage.Wallet().GetByMatricule(ctx, req.DestinationMatricule)
	if err != nil {
		return models.Transaction{}, err
	}
	if !destination.IsActive() {
		return models.Transaction{}, apperrors.ErrWalletNotActive
	}
	if destination.Currency != source.Currency {
		return models.Transaction{}, fmt.Errorf("transfer: currency mismatch %s -> %s", source.Currency, destination.Currency)
	}

	var tr models.Transaction
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.Wallet().Debit(ctx, source.Matricule, req.Amount); err != nil {
			return err
		}
		if _, err := st.Wallet().Credit(ctx, destination.Matricule, req.Amount); err != nil {
			return err
		}

		tr, err = st.Transaction().Create(ctx, models.Transaction{
			ID:          uuid.New(),
			Type:        models.TransactionTypeTransfer,
			Method:      models.MethodWallet,
			Status:      models.TransactionStatusCompleted,
			Amount:      req.Amount,
			TotalAmount: req.Amount,
			Currency:    source.Currency,
			UserID:      req.UserID,
			Reason:      "wallet transfer to " + destination.Matricule,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientFunds) {
			return models.Transaction{}, apperrors.ErrInsufficientFunds
		}
		return models.Transaction{}, fmt.Errorf("transfer: %w", err)
	}

	return tr, nil
}

// FundCard moves wallet money onto the virtual card. Ledger-wise it is
// a PAYMENT over the card rail; the wallet is debited amount + fee when
// the intent completes.
func (s *Service) FundCard(ctx context.Context, req CardTransferRequest) (models.Transaction, error) {
	wallet, card, err := s.walletAndCard(ctx, req)
	if err != nil {
		return models.Transaction{}, err
	}

	fee, err := s.feeFor(ctx, req.Amount, models.ConfigCardFundingFeePercent, models.ConfigCardFundingFeeFixed)
	if err != nil {
		return models.Transaction{}, err
	}
	if wallet.Balance.LessThan(req.Amount.Add(fee)) {
		return models.Transaction{}, apperrors.ErrInsufficientFunds
	}

	tr, err := s.Create(ctx, models.Transaction{
		Type:      models.TransactionTypePayment,
		Method:    models.MethodVirtualCard,
		Amount:    req.Amount,
		SendoFees: fee,
		Currency:  wallet.Currency,
		UserID:    req.UserID,
		CardID:    &card.ID,
		Reason:    "card funding",
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return s.dispatch(ctx, tr, func(ctx context.Context) (string, error) {
		return s.gateway.CreateCashIn(ctx, gateway.CardPayload{
			Value:        fees.RoundCashIn(req.Amount),
			CurrencyCode: tr.Currency,
			Destination:  card.PaymentMethodID,
		})
	})
}

// DebitCard pulls money off the virtual card back into the wallet.
// Ledger-wise a DEPOSIT over the card rail: the wallet is credited with
// the principal when the intent completes, which also triggers the debt
// sweep.
func (s *Service) DebitCard(ctx context.Context, req CardTransferRequest) (models.Transaction, error) {
	wallet, card, err := s.walletAndCard(ctx, req)
	if err != nil {
		return models.Transaction{}, err
	}

	tr, err := s.Create(ctx, models.Transaction{
		Type:     models.TransactionTypeDeposit,
		Method:   models.MethodVirtualCard,
		Amount:   req.Amount,
		Currency: wallet.Currency,
		UserID:   req.UserID,
		CardID:   &card.ID,
		Reason:   "card debit",
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return s.dispatch(ctx, tr, func(ctx context.Context) (string, error) {
		return s.gateway.CreateCashOut(ctx, gateway.CardPayload{
			Value:        fees.RoundCashOut(req.Amount),
			CurrencyCode: tr.Currency,
			Source:       card.PaymentMethodID,
		})
	})
}

// dispatch runs the gateway call for a freshly created PENDING entry
// and stores the returned intent id together with the first poll slot.
func (s *Service) dispatch(ctx context.Context, tr models.Transaction, call func(ctx context.Context) (string, error)) (models.Transaction, error) {
	ref, err := call(ctx)
	if err != nil {
		s.logger.Error("Settlement intent creation failed, transaction left pending",
			"error", err, "transaction_id", tr.ID, "type", tr.Type)
		return tr, nil
	}

	tr, err = s.storage.Transaction().SetExternalRef(ctx, tr.ID, ref, time.Now().Add(firstCheckDelay))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("store external ref: %w", err)
	}

	return tr, nil
}

func (s *Service) walletAndCard(ctx context.Context, req CardTransferRequest) (models.Wallet, models.VirtualCard, error) {
	if !req.Amount.IsPositive() {
		return models.Wallet{}, models.VirtualCard{}, fmt.Errorf("card transfer: amount must be positive")
	}

	wallet, err := s.storage.Wallet().GetByUserID(ctx, req.UserID)
	if err != nil {
		return models.Wallet{}, models.VirtualCard{}, err
	}
	if !wallet.IsActive() {
		return models.Wallet{}, models.VirtualCard{}, apperrors.ErrWalletNotActive
	}

	card, err := s.storage.Card().GetByID(ctx, req.CardID)
	if err != nil {
		return models.Wallet{}, models.VirtualCard{}, err
	}
	if card.IsTerminated() {
		return models.Wallet{}, models.VirtualCard{}, apperrors.ErrCardTerminated
	}
	if card.Status != models.CardStatusActive || card.PaymentMethodID == "" {
		return models.Wallet{}, models.VirtualCard{}, fmt.Errorf("card %s is not usable", card.ID)
	}

	return wallet, card, nil
}

func (s *Service) feeFor(ctx context.Context, amount decimal.Decimal, percentParam, fixedParam string) (decimal.Decimal, error) {
	percent, err := s.storage.Config().Get(ctx, percentParam)
	if err != nil {
		return decimal.Zero, err
	}
	fixed, err := s.storage.Config().Get(ctx, fixedParam)
	if err != nil {
		return decimal.Zero, err
	}

	return fees.Compute(amount, percent, fixed), nil
}

package reconciler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/repository/postgres"
	"github.com/sendo/ledger/internal/service/notify"
	"github.com/sendo/ledger/internal/service/wallet"
	"github.com/sendo/ledger/internal/testutil"
)

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) SettleDebtsIfAny(_ context.Context, _ uuid.UUID, _ *uuid.UUID) {
	f.calls++
}

type fakeNotifier struct {
	completed   int
	failed      int
	debtCreated int
}

func (f *fakeNotifier) TransactionCompleted(context.Context, models.Transaction) { f.completed++ }
func (f *fakeNotifier) TransactionFailed(context.Context, models.Transaction)    { f.failed++ }
func (f *fakeNotifier) DebtCreated(context.Context, models.Debt)                 { f.debtCreated++ }
func (f *fakeNotifier) DebtPaid(context.Context, models.Debt)                    {}
func (f *fakeNotifier) DebtPartiallyPaid(context.Context, models.Debt, decimal.Decimal) {
}
func (f *fakeNotifier) CardTerminated(context.Context, models.VirtualCard) {}

func newWallet(t *testing.T, storage repository.Storage, balance int64) models.Wallet {
	t.Helper()

	w, err := storage.Wallet().Create(t.Context(), models.Wallet{
		ID:        uuid.New(),
		Matricule: wallet.NewMatricule(),
		UserID:    uuid.New(),
		Balance:   decimal.Zero,
		Currency:  models.DefaultCurrency,
		Status:    models.WalletStatusActive,
	})
	require.NoError(t, err)

	if balance > 0 {
		w, err = storage.Wallet().Credit(t.Context(), w.Matricule, decimal.NewFromInt(balance))
		require.NoError(t, err)
	}
	return w
}

// newPendingTransaction stores a PENDING entry with an external ref, as
// the transaction service leaves it after a successful gateway call.
func newPendingTransaction(t *testing.T, storage repository.Storage, userID uuid.UUID, trType, method string, amount, total int64) models.Transaction {
	t.Helper()

	ref := uuid.NewString()
	tr, err := storage.Transaction().Create(t.Context(), models.Transaction{
		ID:          uuid.New(),
		Type:        trType,
		Method:      method,
		Status:      models.TransactionStatusPending,
		Amount:      decimal.NewFromInt(amount),
		TotalAmount: decimal.NewFromInt(total),
		SendoFees:   decimal.NewFromInt(total - amount),
		Currency:    models.DefaultCurrency,
		ExternalRef: &ref,
		UserID:      userID,
	})
	require.NoError(t, err)
	return tr
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(s *Service, sweeper *fakeSweeper, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			sweeper := &fakeSweeper{}
			noop := logger.NewNoOpLogger()
			s := NewService(storage, &notify.LogNotifier{L: noop}, sweeper, noop)
			fn(s, sweeper, storage)
		})
	}

	t.Run("completed deposit credits the principal and triggers the sweep", func(t *testing.T) {
		inTx(t, func(s *Service, sweeper *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 0)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeDeposit, models.MethodMobileMoney, 1000, 1200)

			result, err := s.Reconcile(t.Context(), *tr.ExternalRef, "completed")

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusCompleted, result.Status)
			require.Nil(t, result.NextCheckAt, "terminal transactions should stop polling")

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.Equal(decimal.NewFromInt(1000)), "wallet gains the principal, not the total, got %s", w.Balance)
			require.Equal(t, 1, sweeper.calls)
		})
	})

	t.Run("reconcile twice applies the balance effect once", func(t *testing.T) {
		inTx(t, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 0)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeDeposit, models.MethodMobileMoney, 1000, 1200)

			first, err := s.Reconcile(t.Context(), *tr.ExternalRef, "completed")
			require.NoError(t, err)
			second, err := s.Reconcile(t.Context(), *tr.ExternalRef, "completed")
			require.NoError(t, err)

			require.Equal(t, first.Status, second.Status, "duplicate signal should be a no-op")

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.Equal(decimal.NewFromInt(1000)), "balance delta should apply exactly once, got %s", w.Balance)
		})
	})

	t.Run("duplicate signal does not re-notify", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			notifier := &fakeNotifier{}
			s := NewService(storage, notifier, &fakeSweeper{}, logger.NewNoOpLogger())

			w := newWallet(t, storage, 0)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeDeposit, models.MethodMobileMoney, 1000, 1200)

			_, err := s.Reconcile(t.Context(), *tr.ExternalRef, "processing")
			require.NoError(t, err)
			require.Zero(t, notifier.completed, "a non-definitive signal should not notify")

			_, err = s.Reconcile(t.Context(), *tr.ExternalRef, "completed")
			require.NoError(t, err)
			require.Equal(t, 1, notifier.completed)

			_, err = s.Reconcile(t.Context(), *tr.ExternalRef, "completed")
			require.NoError(t, err)
			require.Equal(t, 1, notifier.completed, "the user is told about a settlement once")
			require.Zero(t, notifier.failed)
		})
	})

	t.Run("completed withdrawal debits amount plus fee", func(t *testing.T) {
		inTx(t, func(s *Service, sweeper *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 5000)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeWithdrawal, models.MethodMobileMoney, 1000, 1120)

			result, err := s.Reconcile(t.Context(), *tr.ExternalRef, "succeeded")

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusCompleted, result.Status)

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.Equal(decimal.NewFromInt(3880)), "wallet should lose amount plus fee, got %s", w.Balance)
			require.Zero(t, sweeper.calls, "a debit never triggers the sweep")
		})
	})

	t.Run("failed signal marks FAILED without balance effect", func(t *testing.T) {
		inTx(t, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 5000)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeWithdrawal, models.MethodMobileMoney, 1000, 1120)

			result, err := s.Reconcile(t.Context(), *tr.ExternalRef, "declined")

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusFailed, result.Status)

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.Equal(decimal.NewFromInt(5000)), "failed settlement should not move money")
		})
	})

	t.Run("unknown partner status leaves the row pending", func(t *testing.T) {
		inTx(t, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 0)
			tr := newPendingTransaction(t, storage, w.UserID, models.TransactionTypeDeposit, models.MethodMobileMoney, 1000, 1000)

			result, err := s.Reconcile(t.Context(), *tr.ExternalRef, "processing")

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusPending, result.Status)

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.IsZero())
		})
	})

	t.Run("unknown reference fails", func(t *testing.T) {
		inTx(t, func(s *Service, _ *fakeSweeper, _ repository.Storage) {
			_, err := s.Reconcile(t.Context(), "no-such-ref", "completed")
			require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
		})
	})

	t.Run("uncovered completed debit becomes a debt", func(t *testing.T) {
		inTx(t, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 400)
			card, err := storage.Card().Create(t.Context(), models.VirtualCard{
				ID:         uuid.New(),
				UserID:     w.UserID,
				ExternalID: uuid.NewString(),
				Name:       "test card",
				Status:     models.CardStatusActive,
			})
			require.NoError(t, err)

			ref := uuid.NewString()
			_, err = storage.Transaction().Create(t.Context(), models.Transaction{
				ID:          uuid.New(),
				Type:        models.TransactionTypePayment,
				Method:      models.MethodVirtualCard,
				Status:      models.TransactionStatusPending,
				Amount:      decimal.NewFromInt(1000),
				TotalAmount: decimal.NewFromInt(1120),
				Currency:    models.DefaultCurrency,
				ExternalRef: &ref,
				UserID:      w.UserID,
				CardID:      &card.ID,
				Reason:      "card funding",
			})
			require.NoError(t, err)

			result, err := s.Reconcile(t.Context(), ref, "completed")

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusCompleted, result.Status)

			w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
			require.NoError(t, err)
			require.True(t, w.Balance.IsZero(), "wallet should be drained")

			debts, err := storage.Debt().ListForUser(t.Context(), w.UserID)
			require.NoError(t, err)
			require.Len(t, debts, 1)
			require.True(t, debts[0].Amount.Equal(decimal.NewFromInt(720)), "debt should hold the shortfall, got %s", debts[0].Amount)
		})
	})
}

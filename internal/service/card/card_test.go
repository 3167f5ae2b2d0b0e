package card

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/repository/postgres"
	"github.com/sendo/ledger/internal/service/notify"
	"github.com/sendo/ledger/internal/service/wallet"
	"github.com/sendo/ledger/internal/testutil"
)

// fakeGateway is the settlement partner double: a card balance that
// cash-outs drain, plus a record of termination calls.
type fakeGateway struct {
	balance    decimal.Decimal
	balanceErr error
	cashOuts   []decimal.Decimal
	currencies []string
	terminated []string
}

func (f *fakeGateway) GetCardBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeGateway) CreateCashOut(_ context.Context, p gateway.Payload) (string, error) {
	f.cashOuts = append(f.cashOuts, p.Amount())
	f.currencies = append(f.currencies, p.Currency())
	f.balance = f.balance.Sub(p.Amount())
	return uuid.NewString(), nil
}

func (f *fakeGateway) TerminateCard(_ context.Context, cardExternalID string) error {
	f.terminated = append(f.terminated, cardExternalID)
	return nil
}

// fakeSweeper records sweep triggers instead of settling debts.
type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) SettleDebtsIfAny(_ context.Context, _ uuid.UUID, _ *uuid.UUID) {
	f.calls++
}

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

func newActiveCard(t *testing.T, storage repository.Storage, userID uuid.UUID) models.VirtualCard {
	t.Helper()

	card, err := storage.Card().Create(t.Context(), models.VirtualCard{
		ID:              uuid.New(),
		UserID:          userID,
		ExternalID:      uuid.NewString(),
		PaymentMethodID: "pm-" + uuid.NewString(),
		Name:            "test card",
		Status:          models.CardStatusActive,
	})
	require.NoError(t, err)
	return card
}

func TestCardService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, gw *fakeGateway, fn func(s *Service, sweeper *fakeSweeper, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			sweeper := &fakeSweeper{}
			noop := logger.NewNoOpLogger()
			s := NewService(storage, gw, &notify.LogNotifier{L: noop}, sweeper, noop)
			fn(s, sweeper, storage)
		})
	}

	t.Run("Create", func(t *testing.T) {
		t.Run("requires a wallet", func(t *testing.T) {
			inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, _ repository.Storage) {
				_, err := s.Create(t.Context(), uuid.New(), "ext-1", "shopping")
				require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
			})
		})

		t.Run("create ok", func(t *testing.T) {
			inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)

				card, err := s.Create(t.Context(), w.UserID, "ext-1", "shopping")

				require.NoError(t, err)
				require.Equal(t, models.CardStatusPreActive, card.Status)
				require.Zero(t, card.PaymentRejectNumber)
			})
		})
	})

	t.Run("Activate", func(t *testing.T) {
		inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
			w := newWallet(t, storage, 0)
			card, err := s.Create(t.Context(), w.UserID, "ext-1", "shopping")
			require.NoError(t, err)

			card, err = s.Activate(t.Context(), "ext-1", "pm-42")

			require.NoError(t, err)
			require.Equal(t, models.CardStatusActive, card.Status)
			require.Equal(t, "pm-42", card.PaymentMethodID)
		})
	})

	t.Run("CaptureFee", func(t *testing.T) {
		t.Run("partial card coverage, wallet covers the rest, no debt", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(1000)}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 2000)
				card := newActiveCard(t, storage, w.UserID)

				err := s.CaptureFee(t.Context(), card, decimal.NewFromInt(1500), "service fee")
				require.NoError(t, err)

				require.Len(t, gw.cashOuts, 1)
				require.True(t, gw.cashOuts[0].Equal(decimal.NewFromInt(1000)), "card should be drained, got %s", gw.cashOuts[0])

				w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
				require.NoError(t, err)
				require.True(t, w.Balance.Equal(decimal.NewFromInt(1500)), "wallet should cover only the shortfall, got %s", w.Balance)

				debts, err := storage.Debt().ListForUser(t.Context(), w.UserID)
				require.NoError(t, err)
				require.Empty(t, debts)
			})
		})

		t.Run("no coverage records a debt for the full fee", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.Zero}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)
				card := newActiveCard(t, storage, w.UserID)

				err := s.CaptureFee(t.Context(), card, decimal.NewFromInt(1500), "service fee")
				require.NoError(t, err)

				debts, err := storage.Debt().ListForUser(t.Context(), w.UserID)
				require.NoError(t, err)
				require.Len(t, debts, 1)
				require.True(t, debts[0].Amount.Equal(decimal.NewFromInt(1500)))
				require.Equal(t, card.ID, debts[0].CardID)
			})
		})

		t.Run("wallet covers part, debt for the remainder", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.Zero}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 600)
				card := newActiveCard(t, storage, w.UserID)

				err := s.CaptureFee(t.Context(), card, decimal.NewFromInt(1500), "service fee")
				require.NoError(t, err)

				w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
				require.NoError(t, err)
				require.True(t, w.Balance.IsZero())

				debts, err := storage.Debt().ListForUser(t.Context(), w.UserID)
				require.NoError(t, err)
				require.Len(t, debts, 1)
				require.True(t, debts[0].Amount.Equal(decimal.NewFromInt(900)), "debt should hold the remainder, got %s", debts[0].Amount)
			})
		})

		t.Run("card leg settles in the wallet currency", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(1000)}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w, err := storage.Wallet().Create(t.Context(), models.Wallet{
					ID:        uuid.New(),
					Matricule: wallet.NewMatricule(),
					UserID:    uuid.New(),
					Balance:   decimal.Zero,
					Currency:  "GNF",
					Status:    models.WalletStatusActive,
				})
				require.NoError(t, err)
				card := newActiveCard(t, storage, w.UserID)

				err = s.CaptureFee(t.Context(), card, decimal.NewFromInt(500), "service fee")
				require.NoError(t, err)

				require.Len(t, gw.currencies, 1)
				require.Equal(t, "GNF", gw.currencies[0], "cash-out should carry the wallet currency")
			})
		})
	})

	t.Run("HandleCardEvent", func(t *testing.T) {
		t.Run("accepted event captures the service fee", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(10000)}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)
				card := newActiveCard(t, storage, w.UserID)

				// 1% + 50 fixed on 5000, ceiled = 100
				err := s.HandleCardEvent(t.Context(), card.ExternalID, true, decimal.NewFromInt(5000))
				require.NoError(t, err)

				require.Len(t, gw.cashOuts, 1)
				require.True(t, gw.cashOuts[0].Equal(decimal.NewFromInt(100)), "fee leg should be 100, got %s", gw.cashOuts[0])

				card, err = storage.Card().GetByID(t.Context(), card.ID)
				require.NoError(t, err)
				require.Zero(t, card.PaymentRejectNumber, "accepted events should not bump the counter")
			})
		})

		t.Run("rejected event charges the flat fee and bumps the counter", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(10000)}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)
				card := newActiveCard(t, storage, w.UserID)

				err := s.HandleCardEvent(t.Context(), card.ExternalID, false, decimal.NewFromInt(5000))
				require.NoError(t, err)

				require.Len(t, gw.cashOuts, 1)
				require.True(t, gw.cashOuts[0].Equal(decimal.NewFromInt(500)), "reject fee should be the flat config value, got %s", gw.cashOuts[0])

				card, err = storage.Card().GetByID(t.Context(), card.ID)
				require.NoError(t, err)
				require.Equal(t, 1, card.PaymentRejectNumber)
				require.Equal(t, models.CardStatusActive, card.Status)
			})
		})

		t.Run("third rejection terminates the card and sweeps its balance", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(2000)}

			inTx(t, gw, func(s *Service, sweeper *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)
				card := newActiveCard(t, storage, w.UserID)

				for i := 0; i < 3; i++ {
					err := s.HandleCardEvent(t.Context(), card.ExternalID, false, decimal.NewFromInt(1000))
					require.NoError(t, err)
				}

				card, err := storage.Card().GetByID(t.Context(), card.ID)
				require.NoError(t, err)
				require.Equal(t, models.CardStatusTerminated, card.Status)
				require.Equal(t, 3, card.PaymentRejectNumber)
				require.Equal(t, []string{card.ExternalID}, gw.terminated)
				require.Equal(t, 1, sweeper.calls, "sweep should run once the residue lands on the wallet")

				// 3 * 500 reject fees came off the card; the residue 500
				// moved to the wallet as a completed deposit
				w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
				require.NoError(t, err)
				require.True(t, w.Balance.Equal(decimal.NewFromInt(500)), "residue should land on the wallet, got %s", w.Balance)

				deposits, err := storage.Transaction().List(t.Context(), repository.ListTransactionsOpts{
					UserID: w.UserID,
					Types:  []string{models.TransactionTypeDeposit},
				})
				require.NoError(t, err)
				require.Len(t, deposits, 1)
				require.Equal(t, models.TransactionStatusCompleted, deposits[0].Status)
				require.Equal(t, models.MethodVirtualCard, deposits[0].Method)
			})
		})

		t.Run("terminated card ignores further events", func(t *testing.T) {
			gw := &fakeGateway{balance: decimal.NewFromInt(10000)}

			inTx(t, gw, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 0)
				card := newActiveCard(t, storage, w.UserID)
				_, err := storage.Card().SetStatus(t.Context(), card.ID, models.CardStatusTerminated)
				require.NoError(t, err)

				err = s.HandleCardEvent(t.Context(), card.ExternalID, false, decimal.NewFromInt(1000))
				require.NoError(t, err)

				require.Empty(t, gw.cashOuts, "terminated is absorbing, no fee should be captured")
			})
		})
	})

	t.Run("Unblock", func(t *testing.T) {
		t.Run("collects the unlock fee and resets the counter", func(t *testing.T) {
			inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 1500)
				card := newActiveCard(t, storage, w.UserID)
				for i := 0; i < 3; i++ {
					_, err := storage.Card().IncrementRejects(t.Context(), card.ID)
					require.NoError(t, err)
				}
				_, err := storage.Card().SetStatus(t.Context(), card.ID, models.CardStatusBlocked)
				require.NoError(t, err)

				card, err = s.Unblock(t.Context(), card.ID)

				require.NoError(t, err)
				require.Equal(t, models.CardStatusActive, card.Status)
				require.Zero(t, card.PaymentRejectNumber)

				w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
				require.NoError(t, err)
				require.True(t, w.Balance.Equal(decimal.NewFromInt(500)), "unlock fee should be debited, got %s", w.Balance)
			})
		})

		t.Run("terminated card cannot be unblocked", func(t *testing.T) {
			inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 5000)
				card := newActiveCard(t, storage, w.UserID)
				_, err := storage.Card().SetStatus(t.Context(), card.ID, models.CardStatusTerminated)
				require.NoError(t, err)

				_, err = s.Unblock(t.Context(), card.ID)
				require.ErrorIs(t, err, apperrors.ErrCardTerminated)

				card, err = storage.Card().GetByID(t.Context(), card.ID)
				require.NoError(t, err)
				require.Equal(t, models.CardStatusTerminated, card.Status, "terminated is absorbing")

				w, err = storage.Wallet().GetByUserID(t.Context(), w.UserID)
				require.NoError(t, err)
				require.True(t, w.Balance.Equal(decimal.NewFromInt(5000)), "no unlock fee should be charged")

				// The store refuses the transition too, so nothing
				// downstream can resurrect the card
				_, err = storage.Card().SetStatus(t.Context(), card.ID, models.CardStatusActive)
				require.ErrorIs(t, err, apperrors.ErrCardTerminated)
			})
		})

		t.Run("insufficient funds keeps the card blocked", func(t *testing.T) {
			inTx(t, &fakeGateway{}, func(s *Service, _ *fakeSweeper, storage repository.Storage) {
				w := newWallet(t, storage, 100)
				card := newActiveCard(t, storage, w.UserID)
				_, err := storage.Card().SetStatus(t.Context(), card.ID, models.CardStatusBlocked)
				require.NoError(t, err)

				_, err = s.Unblock(t.Context(), card.ID)
				require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

				card, err = storage.Card().GetByID(t.Context(), card.ID)
				require.NoError(t, err)
				require.Equal(t, models.CardStatusBlocked, card.Status, "failed unlock should not change the status")
			})
		})
	})
}

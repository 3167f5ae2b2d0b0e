package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
	"github.com/sendo/ledger/internal/testutil"
)

func newTestWallet(userID uuid.UUID) models.Wallet {
	return models.Wallet{
		ID:        uuid.New(),
		Matricule: "SW-" + uuid.NewString()[:10],
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  models.DefaultCurrency,
		Status:    models.WalletStatusActive,
	}
}

func TestWallet(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	t.Run("Create", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					wallet, err := storage.Wallet().Create(t.Context(), newTestWallet(uuid.New()))

					require.NoError(t, err, "wallet has to be created ok")
					require.Equal(t, models.WalletStatusActive, wallet.Status)
					require.True(t, wallet.Balance.IsZero(), "new wallet balance should be zero")
				})
			})

			t.Run("create duplicate for same user", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					userID := uuid.New()
					_, err := storage.Wallet().Create(t.Context(), newTestWallet(userID))
					require.NoError(t, err, "first wallet creation should be ok")

					_, err = storage.Wallet().Create(t.Context(), newTestWallet(userID))

					require.Error(t, err, "creating wallet twice for one user should fail")
					require.ErrorIs(t, err, apperrors.ErrWalletAlreadyExists)
				})
			})
		})
	})

	t.Run("Get", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			wallet, err := storage.Wallet().Create(t.Context(), newTestWallet(uuid.New()))
			require.NoError(t, err)

			t.Run("by matricule", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					got, err := storage.Wallet().GetByMatricule(t.Context(), wallet.Matricule)

					require.NoError(t, err)
					require.Equal(t, wallet.ID, got.ID)
				})
			})

			t.Run("by user", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					got, err := storage.Wallet().GetByUserID(t.Context(), wallet.UserID)

					require.NoError(t, err)
					require.Equal(t, wallet.ID, got.ID)
				})
			})

			t.Run("not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().GetByMatricule(t.Context(), "SW-0000000000")

					require.ErrorIs(t, err, apperrors.ErrWalletNotFound, "should return well known error")
				})
			})
		})
	})

	t.Run("CreditDebit", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			wallet, err := storage.Wallet().Create(t.Context(), newTestWallet(uuid.New()))
			require.NoError(t, err)

			t.Run("credit", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					got, err := storage.Wallet().Credit(t.Context(), wallet.Matricule, decimal.NewFromInt(10000))

					require.NoError(t, err, "crediting wallet should not fail")
					require.True(t, got.Balance.Equal(decimal.NewFromInt(10000)), "balance should be 10000 after credit")
				})
			})

			t.Run("credit then debit restores balance", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Credit(t.Context(), wallet.Matricule, decimal.NewFromInt(5000))
					require.NoError(t, err)

					got, err := storage.Wallet().Debit(t.Context(), wallet.Matricule, decimal.NewFromInt(5000))

					require.NoError(t, err, "debiting wallet should not fail")
					require.True(t, got.Balance.IsZero(), "balance should return to zero")
				})
			})

			t.Run("debit insufficient funds", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Credit(t.Context(), wallet.Matricule, decimal.NewFromInt(10000))
					require.NoError(t, err)

					_, err = storage.Wallet().Debit(t.Context(), wallet.Matricule, decimal.NewFromInt(15000))
					require.ErrorIs(t, err, apperrors.ErrInsufficientFunds, "should return insufficient funds error")

					got, err := storage.Wallet().GetByMatricule(t.Context(), wallet.Matricule)
					require.NoError(t, err)
					require.True(t, got.Balance.Equal(decimal.NewFromInt(10000)), "balance should remain 10000 after rejected debit")
				})
			})

			t.Run("debit missing wallet", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Debit(t.Context(), "SW-0000000000", decimal.NewFromInt(100))

					require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
				})
			})

			t.Run("mutate suspended wallet", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().SetStatus(t.Context(), wallet.Matricule, models.WalletStatusSuspended)
					require.NoError(t, err)

					_, err = storage.Wallet().Credit(t.Context(), wallet.Matricule, decimal.NewFromInt(100))
					require.ErrorIs(t, err, apperrors.ErrWalletNotActive)

					_, err = storage.Wallet().Debit(t.Context(), wallet.Matricule, decimal.NewFromInt(100))
					require.ErrorIs(t, err, apperrors.ErrWalletNotActive)
				})
			})
		})
	})
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

const walletColumns = `id, matricule, user_id, balance, currency, status, created_at, updated_at`

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.Matricule, &w.UserID, &w.Balance, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (r *WalletRepo) Create(ctx context.Context, wallet models.Wallet) (models.Wallet, error) {
	const createWallet = `
	INSERT INTO wallets (id, matricule, user_id, balance, currency, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + walletColumns

	rows, _ := r.DB.Query(ctx, createWallet,
		wallet.ID, wallet.Matricule, wallet.UserID, wallet.Balance, wallet.Currency, wallet.Status)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return w, apperrors.ErrWalletAlreadyExists
		}
		return w, fmt.Errorf("db error: %w", err)
	}

	return w, nil
}

func (r *WalletRepo) GetByMatricule(ctx context.Context, matricule string) (models.Wallet, error) {
	const getWallet = `
	SELECT ` + walletColumns + ` FROM wallets
	WHERE matricule = $1
	`

	rows, _ := r.DB.Query(ctx, getWallet, matricule)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWalletNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	const getWallet = `
	SELECT ` + walletColumns + ` FROM wallets
	WHERE user_id = $1
	`

	rows, _ := r.DB.Query(ctx, getWallet, userID)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWalletNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

// Credit adds amount to the wallet balance as a single atomic statement.
// Only ACTIVE wallets are mutated.
func (r *WalletRepo) Credit(ctx context.Context, matricule string, amount decimal.Decimal) (models.Wallet, error) {
	const creditWallet = `
	UPDATE wallets
	SET balance = balance + $2, updated_at = now()
	WHERE matricule = $1 AND status = 'ACTIVE'
	RETURNING ` + walletColumns

	rows, _ := r.DB.Query(ctx, creditWallet, matricule, amount)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		w, reasonErr := r.notUpdatedReason(ctx, matricule)
		if reasonErr != nil {
			return w, reasonErr
		}
		return w, fmt.Errorf("wallet %s not credited", matricule)
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

// Debit subtracts amount from the wallet balance. The balance guard lives
// in the statement itself: concurrent debits can never take the balance
// below zero.
func (r *WalletRepo) Debit(ctx context.Context, matricule string, amount decimal.Decimal) (models.Wallet, error) {
	const debitWallet = `
	UPDATE wallets
	SET balance = balance - $2, updated_at = now()
	WHERE matricule = $1 AND status = 'ACTIVE' AND balance >= $2
	RETURNING ` + walletColumns

	rows, _ := r.DB.Query(ctx, debitWallet, matricule, amount)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		w, reasonErr := r.notUpdatedReason(ctx, matricule)
		if reasonErr != nil {
			return w, reasonErr
		}
		return w, apperrors.ErrInsufficientFunds
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

func (r *WalletRepo) SetStatus(ctx context.Context, matricule string, status string) (models.Wallet, error) {
	const setStatus = `
	UPDATE wallets
	SET status = $2, updated_at = now()
	WHERE matricule = $1
	RETURNING ` + walletColumns

	rows, _ := r.DB.Query(ctx, setStatus, matricule, status)
	w, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWalletNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

// notUpdatedReason tells apart the reasons a guarded update matched no row
func (r *WalletRepo) notUpdatedReason(ctx context.Context, matricule string) (models.Wallet, error) {
	w, err := r.GetByMatricule(ctx, matricule)
	if err != nil {
		return w, err
	}
	if !w.IsActive() {
		return w, apperrors.ErrWalletNotActive
	}
	return w, nil
}

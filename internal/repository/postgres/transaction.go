package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/models"
	"github.com/sendo/ledger/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `id, type, method, status, amount, total_amount, sendo_fees, partner_fees, currency,
	external_ref, user_id, card_id, beneficiary, reason, next_check_at, check_attempts, created_at, updated_at`

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.Type, &t.Method, &t.Status, &t.Amount, &t.TotalAmount, &t.SendoFees, &t.PartnerFees, &t.Currency,
		&t.ExternalRef, &t.UserID, &t.CardID, &t.Beneficiary, &t.Reason, &t.NextCheckAt, &t.CheckAttempts, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *TransactionRepo) Create(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	const createTransaction = `
	INSERT INTO transactions
		(id, type, method, status, amount, total_amount, sendo_fees, partner_fees, currency,
		 external_ref, user_id, card_id, beneficiary, reason, next_check_at, check_attempts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING ` + transactionColumns

	rows, _ := r.DB.Query(ctx, createTransaction,
		tr.ID, tr.Type, tr.Method, tr.Status, tr.Amount, tr.TotalAmount, tr.SendoFees, tr.PartnerFees, tr.Currency,
		tr.ExternalRef, tr.UserID, tr.CardID, tr.Beneficiary, tr.Reason, tr.NextCheckAt, tr.CheckAttempts)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return t, apperrors.ErrDuplicateExternalRef
		}
		return t, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	const getTransaction = `
	SELECT ` + transactionColumns + ` FROM transactions
	WHERE id = $1
	`

	rows, _ := r.DB.Query(ctx, getTransaction, id)
	return r.collectOne(rows)
}

func (r *TransactionRepo) GetByExternalRef(ctx context.Context, ref string, forUpdate bool) (models.Transaction, error) {
	getByRef := `
	SELECT ` + transactionColumns + ` FROM transactions
	WHERE external_ref = $1
	`
	// Lock the row so two reconciliations of the same intent serialize
	if forUpdate {
		getByRef += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, getByRef, ref)
	return r.collectOne(rows)
}

func (r *TransactionRepo) SetExternalRef(ctx context.Context, id uuid.UUID, ref string, nextCheckAt time.Time) (models.Transaction, error) {
	const setExternalRef = `
	UPDATE transactions
	SET external_ref = $2, next_check_at = $3, updated_at = now()
	WHERE id = $1
	RETURNING ` + transactionColumns

	rows, _ := r.DB.Query(ctx, setExternalRef, id, ref, nextCheckAt)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return t, apperrors.ErrDuplicateExternalRef
		}
		return t, fmt.Errorf("db error: %w", err)
	}
}

// Finalize moves a PENDING transaction to a terminal status. The guard is
// in the statement: a transaction already terminal is never touched.
func (r *TransactionRepo) Finalize(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error) {
	const finalize = `
	UPDATE transactions
	SET status = $2, next_check_at = NULL, updated_at = now()
	WHERE id = $1 AND status = 'PENDING'
	RETURNING ` + transactionColumns

	rows, _ := r.DB.Query(ctx, finalize, id, status)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		t, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return t, getErr
		}
		return t, apperrors.ErrTransactionAlreadyFinal
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func (r *TransactionRepo) Reschedule(ctx context.Context, id uuid.UUID, nextCheckAt *time.Time) error {
	const reschedule = `
	UPDATE transactions
	SET next_check_at = $2, check_attempts = check_attempts + 1, updated_at = now()
	WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, reschedule, id, nextCheckAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepo) List(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	list := `
	SELECT ` + transactionColumns + ` FROM transactions
	WHERE user_id = $1
	`
	args := []any{opts.UserID}

	if len(opts.Types) > 0 {
		args = append(args, opts.Types)
		list += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	if len(opts.Statuses) > 0 {
		args = append(args, opts.Statuses)
		list += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	list += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		list += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, _ := r.DB.Query(ctx, list, args...)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func (r *TransactionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	const listDue = `
	SELECT ` + transactionColumns + ` FROM transactions
	WHERE status = 'PENDING' AND external_ref IS NOT NULL AND next_check_at <= $1
	ORDER BY next_check_at
	LIMIT $2
	`

	rows, _ := r.DB.Query(ctx, listDue, now, limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func (r *TransactionRepo) collectOne(rows pgx.Rows) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/models"
)

type DebtRepo struct {
	DB DBTX
}

const debtColumns = `id, user_id, card_id, amount, label, created_at`

func rowToDebt(row pgx.CollectableRow) (models.Debt, error) {
	var d models.Debt
	err := row.Scan(&d.ID, &d.UserID, &d.CardID, &d.Amount, &d.Label, &d.CreatedAt)
	return d, err
}

func (r *DebtRepo) Create(ctx context.Context, debt models.Debt) (models.Debt, error) {
	const createDebt = `
	INSERT INTO debts (id, user_id, card_id, amount, label)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + debtColumns

	rows, _ := r.DB.Query(ctx, createDebt, debt.ID, debt.UserID, debt.CardID, debt.Amount, debt.Label)
	d, err := pgx.CollectOneRow(rows, rowToDebt)
	if err != nil {
		return d, fmt.Errorf("db error: %w", err)
	}

	return d, nil
}

// ListForCard returns outstanding debts oldest first. The sweep depends on
// this ordering.
func (r *DebtRepo) ListForCard(ctx context.Context, userID uuid.UUID, cardID uuid.UUID) ([]models.Debt, error) {
	const listDebts = `
	SELECT ` + debtColumns + ` FROM debts
	WHERE user_id = $1 AND card_id = $2
	ORDER BY created_at
	`

	rows, _ := r.DB.Query(ctx, listDebts, userID, cardID)
	debts, err := pgx.CollectRows(rows, rowToDebt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return debts, nil
}

func (r *DebtRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Debt, error) {
	const listDebts = `
	SELECT ` + debtColumns + ` FROM debts
	WHERE user_id = $1
	ORDER BY created_at
	`

	rows, _ := r.DB.Query(ctx, listDebts, userID)
	debts, err := pgx.CollectRows(rows, rowToDebt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return debts, nil
}

func (r *DebtRepo) Decrement(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (models.Debt, error) {
	const decrementDebt = `
	UPDATE debts
	SET amount = amount - $2
	WHERE id = $1
	RETURNING ` + debtColumns

	rows, _ := r.DB.Query(ctx, decrementDebt, id, amount)
	d, err := pgx.CollectOneRow(rows, rowToDebt)

	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, pgx.ErrNoRows):
		return d, apperrors.ErrDebtNotFound
	default:
		return d, fmt.Errorf("db error: %w", err)
	}
}

func (r *DebtRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const deleteDebt = `
	DELETE FROM debts WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, deleteDebt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrDebtNotFound
	}

	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sendo/ledger/internal/apperrors"
	"github.com/sendo/ledger/internal/models"
)

type CardRepo struct {
	DB DBTX
}

const cardColumns = `id, user_id, external_id, payment_method_id, name, masked_number, status, payment_reject_number, created_at, updated_at`

func rowToCard(row pgx.CollectableRow) (models.VirtualCard, error) {
	var c models.VirtualCard
	err := row.Scan(&c.ID, &c.UserID, &c.ExternalID, &c.PaymentMethodID, &c.Name, &c.MaskedNumber, &c.Status, &c.PaymentRejectNumber, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *CardRepo) Create(ctx context.Context, card models.VirtualCard) (models.VirtualCard, error) {
	const createCard = `
	INSERT INTO virtual_cards (id, user_id, external_id, payment_method_id, name, masked_number, status, payment_reject_number)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + cardColumns

	rows, _ := r.DB.Query(ctx, createCard,
		card.ID, card.UserID, card.ExternalID, card.PaymentMethodID, card.Name, card.MaskedNumber, card.Status, card.PaymentRejectNumber)
	c, err := pgx.CollectOneRow(rows, rowToCard)

	if err != nil {
		return c, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

func (r *CardRepo) GetByID(ctx context.Context, id uuid.UUID) (models.VirtualCard, error) {
	const getCard = `
	SELECT ` + cardColumns + ` FROM virtual_cards
	WHERE id = $1
	`

	rows, _ := r.DB.Query(ctx, getCard, id)
	return r.collectOne(rows)
}

func (r *CardRepo) GetByExternalID(ctx context.Context, externalID string) (models.VirtualCard, error) {
	const getCard = `
	SELECT ` + cardColumns + ` FROM virtual_cards
	WHERE external_id = $1
	`

	rows, _ := r.DB.Query(ctx, getCard, externalID)
	return r.collectOne(rows)
}

func (r *CardRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) (models.VirtualCard, error) {
	// TERMINATED is absorbing: the guard keeps any concurrent write from
	// resurrecting a closed card.
	const setStatus = `
	UPDATE virtual_cards
	SET status = $2, updated_at = now()
	WHERE id = $1 AND status <> 'TERMINATED'
	RETURNING ` + cardColumns

	rows, _ := r.DB.Query(ctx, setStatus, id, status)
	c, err := r.collectOne(rows)
	if errors.Is(err, apperrors.ErrCardNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return c, apperrors.ErrCardTerminated
		}
	}
	return c, err
}

func (r *CardRepo) SetPaymentMethod(ctx context.Context, id uuid.UUID, paymentMethodID string) (models.VirtualCard, error) {
	const setPaymentMethod = `
	UPDATE virtual_cards
	SET payment_method_id = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + cardColumns

	rows, _ := r.DB.Query(ctx, setPaymentMethod, id, paymentMethodID)
	return r.collectOne(rows)
}

func (r *CardRepo) IncrementRejects(ctx context.Context, id uuid.UUID) (models.VirtualCard, error) {
	const incrementRejects = `
	UPDATE virtual_cards
	SET payment_reject_number = payment_reject_number + 1, updated_at = now()
	WHERE id = $1
	RETURNING ` + cardColumns

	rows, _ := r.DB.Query(ctx, incrementRejects, id)
	return r.collectOne(rows)
}

func (r *CardRepo) ResetRejects(ctx context.Context, id uuid.UUID) (models.VirtualCard, error) {
	const resetRejects = `
	UPDATE virtual_cards
	SET payment_reject_number = 0, updated_at = now()
	WHERE id = $1
	RETURNING ` + cardColumns

	rows, _ := r.DB.Query(ctx, resetRejects, id)
	return r.collectOne(rows)
}

func (r *CardRepo) collectOne(rows pgx.Rows) (models.VirtualCard, error) {
	c, err := pgx.CollectOneRow(rows, rowToCard)

	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, pgx.ErrNoRows):
		return c, apperrors.ErrCardNotFound
	default:
		return c, fmt.Errorf("db error: %w", err)
	}
}

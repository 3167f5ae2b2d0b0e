package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/apperrors"
)

// ConfigRepo reads administratively owned numeric parameters. This core
// never writes them.
type ConfigRepo struct {
	DB DBTX
}

func (r *ConfigRepo) Get(ctx context.Context, name string) (decimal.Decimal, error) {
	const getConfig = `
	SELECT value FROM operation_configs
	WHERE name = $1
	`

	var value decimal.Decimal
	err := r.DB.QueryRow(ctx, getConfig, name).Scan(&value)

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, pgx.ErrNoRows):
		return value, fmt.Errorf("%w: %s", apperrors.ErrConfigNotFound, name)
	default:
		return value, fmt.Errorf("db error: %w", err)
	}
}

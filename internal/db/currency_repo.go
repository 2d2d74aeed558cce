package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// CurrencyRepository is the Postgres-backed catalog.
type CurrencyRepository struct {
	pool *pgxpool.Pool
}

func NewCurrencyRepository(pool *pgxpool.Pool) *CurrencyRepository {
	return &CurrencyRepository{pool: pool}
}

func (r *CurrencyRepository) Lookup(ctx context.Context, symbol string) (domain.Currency, error) {
	var (
		c    domain.Currency
		kind string
	)
	err := r.pool.QueryRow(ctx, `SELECT symbol, name, kind, icon, decimals FROM currencies WHERE symbol = $1`,
		catalog.Normalize(symbol)).Scan(&c.Symbol, &c.Name, &kind, &c.Icon, &c.Decimals)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Currency{}, catalog.ErrUnknownCurrency
	}
	if err != nil {
		return domain.Currency{}, err
	}
	c.Kind = domain.CurrencyKind(kind)
	return c, nil
}

func (r *CurrencyRepository) List(ctx context.Context) ([]domain.Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT symbol, name, kind, icon, decimals FROM currencies ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Currency{}
	for rows.Next() {
		var (
			c    domain.Currency
			kind string
		)
		if err := rows.Scan(&c.Symbol, &c.Name, &kind, &c.Icon, &c.Decimals); err != nil {
			return nil, err
		}
		c.Kind = domain.CurrencyKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

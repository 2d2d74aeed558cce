package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
)

// FeeRepository stores account fixed rates and the bundle schedule. It
// serves both fees.AccountSource and fees.BundleSource.
type FeeRepository struct {
	pool *pgxpool.Pool
}

func NewFeeRepository(pool *pgxpool.Pool) *FeeRepository {
	return &FeeRepository{pool: pool}
}

func (r *FeeRepository) FixedRates(ctx context.Context, accountID string) (map[domain.Category]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, percent::text FROM account_fee_rates WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Category]decimal.Decimal)
	for rows.Next() {
		var cat, pct string
		if err := rows.Scan(&cat, &pct); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(pct)
		if err != nil {
			return nil, err
		}
		out[domain.Category(cat)] = d
	}
	return out, rows.Err()
}

// SetFixedRate assigns the account a fixed percent for the category.
func (r *FeeRepository) SetFixedRate(ctx context.Context, accountID string, category domain.Category, percent decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO account_fee_rates (account_id, category, percent, updated_at)
        VALUES ($1, $2, $3::text::numeric, NOW())
        ON CONFLICT (account_id, category) DO UPDATE SET percent = EXCLUDED.percent, updated_at = NOW()`,
		accountID, string(category), percent.String())
	return err
}

// ClearFixedRate puts the account back on bundle selection for the category.
func (r *FeeRepository) ClearFixedRate(ctx context.Context, accountID string, category domain.Category) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM account_fee_rates WHERE account_id = $1 AND category = $2`, accountID, string(category))
	return err
}

const bundleColumns = `id, category, name, percent::text, range_min::text, range_max::text`

func (r *FeeRepository) Bundle(ctx context.Context, id string) (domain.FeeBundle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bundleColumns+` FROM fee_bundles WHERE id = $1 AND active`, id)
	b, err := scanBundle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeeBundle{}, fees.ErrBundleNotFound
	}
	return b, err
}

// Bundles lists active bundles; an empty category lists all of them.
func (r *FeeRepository) Bundles(ctx context.Context, category domain.Category) ([]domain.FeeBundle, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+bundleColumns+`
        FROM fee_bundles
        WHERE active AND ($1 = '' OR category = $1)
        ORDER BY category, percent`, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.FeeBundle{}
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertBundle creates or replaces a bundle definition.
func (r *FeeRepository) UpsertBundle(ctx context.Context, b domain.FeeBundle) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO fee_bundles (id, category, name, percent, range_min, range_max, active)
        VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, TRUE)
        ON CONFLICT (id) DO UPDATE SET
            category = EXCLUDED.category,
            name = EXCLUDED.name,
            percent = EXCLUDED.percent,
            range_min = EXCLUDED.range_min,
            range_max = EXCLUDED.range_max,
            active = TRUE`,
		b.ID, string(b.Category), b.Name, b.Percent.String(), decimalText(b.RangeMin), decimalText(b.RangeMax))
	if err != nil {
		return fmt.Errorf("failed to save fee bundle: %w", err)
	}
	return nil
}

// DeactivateBundle hides a bundle from selection. Operations that used it
// keep referencing it.
func (r *FeeRepository) DeactivateBundle(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE fee_bundles SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fees.ErrBundleNotFound
	}
	return nil
}

func scanBundle(row pgx.Row) (domain.FeeBundle, error) {
	var (
		b             domain.FeeBundle
		cat, pct      string
		lower, higher *string
	)
	if err := row.Scan(&b.ID, &cat, &b.Name, &pct, &lower, &higher); err != nil {
		return b, err
	}
	b.Category = domain.Category(cat)

	var err error
	if b.Percent, err = decimal.NewFromString(pct); err != nil {
		return b, err
	}
	if b.RangeMin, err = parseOptional(lower); err != nil {
		return b, err
	}
	if b.RangeMax, err = parseOptional(higher); err != nil {
		return b, err
	}
	return b, nil
}

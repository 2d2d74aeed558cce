package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
)

const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LedgerStore persists balances and operations in Postgres.
type LedgerStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerStore(pool *pgxpool.Pool, logger *zap.Logger) *LedgerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerStore{pool: pool, logger: logger}
}

// RunInTx runs fn in one transaction, committing only if fn returns nil.
func (s *LedgerStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isRetryable(err) {
			return ledger.ErrVersionConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *LedgerStore) ReadBalance(ctx context.Context, accountID, currency string) (domain.AssetBalance, error) {
	return readBalance(ctx, s.pool, accountID, currency)
}

func (s *LedgerStore) ListBalances(ctx context.Context, accountID string) ([]domain.AssetBalance, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT account_id, currency, available::text, locked::text, version, updated_at
        FROM asset_balances
        WHERE account_id = $1
        ORDER BY currency`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	out := []domain.AssetBalance{}
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *LedgerStore) GetOperation(ctx context.Context, id string) (domain.LedgerOperation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM ledger_operations WHERE id = $1`, id)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerOperation{}, ledger.ErrOperationNotFound
	}
	return op, err
}

func (s *LedgerStore) AppendOperation(ctx context.Context, op domain.LedgerOperation) error {
	return appendOperation(ctx, s.pool, op)
}

func (s *LedgerStore) ListOperations(ctx context.Context, f ledger.OperationFilter) ([]domain.LedgerOperation, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT ` + operationColumns + ` FROM ledger_operations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	out := []domain.LedgerOperation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

type pgTx struct {
	q querier
}

func (t *pgTx) ReadBalance(ctx context.Context, accountID, currency string) (domain.AssetBalance, error) {
	return readBalance(ctx, t.q, accountID, currency)
}

// WriteBalanceIfVersionMatches inserts the row when expected is 0 and
// otherwise updates it only if the stored version is still expected. A
// stored row still at version 0 is treated as absent.
func (t *pgTx) WriteBalanceIfVersionMatches(ctx context.Context, bal domain.AssetBalance, expected int64) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == 0 {
		tag, err = t.q.Exec(ctx, `
            INSERT INTO asset_balances (account_id, currency, available, locked, version, updated_at)
            VALUES ($1, $2, $3::text::numeric, $4::text::numeric, 1, NOW())
            ON CONFLICT (account_id, currency) DO UPDATE SET
                available = EXCLUDED.available,
                locked = EXCLUDED.locked,
                version = 1,
                updated_at = NOW()
            WHERE asset_balances.version = 0`,
			bal.AccountID, bal.Currency, bal.Available.String(), bal.Locked.String())
	} else {
		tag, err = t.q.Exec(ctx, `
            UPDATE asset_balances
            SET available = $3::text::numeric,
                locked = $4::text::numeric,
                version = version + 1,
                updated_at = NOW()
            WHERE account_id = $1 AND currency = $2 AND version = $5`,
			bal.AccountID, bal.Currency, bal.Available.String(), bal.Locked.String(), expected)
	}
	if err != nil {
		if isRetryable(err) {
			return ledger.ErrVersionConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return fmt.Errorf("balance for %s %s would go negative: %w", bal.AccountID, bal.Currency, err)
		}
		return fmt.Errorf("failed to write balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrVersionConflict
	}
	return nil
}

func (t *pgTx) AppendLedgerOperation(ctx context.Context, op domain.LedgerOperation) error {
	return appendOperation(ctx, t.q, op)
}

func readBalance(ctx context.Context, q querier, accountID, currency string) (domain.AssetBalance, error) {
	row := q.QueryRow(ctx, `
        SELECT account_id, currency, available::text, locked::text, version, updated_at
        FROM asset_balances
        WHERE account_id = $1 AND currency = $2`, accountID, currency)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssetBalance{AccountID: accountID, Currency: currency}, nil
	}
	if err != nil {
		return domain.AssetBalance{}, fmt.Errorf("failed to read balance: %w", err)
	}
	return b, nil
}

func scanBalance(row pgx.Row) (domain.AssetBalance, error) {
	var (
		b                 domain.AssetBalance
		available, locked string
	)
	if err := row.Scan(&b.AccountID, &b.Currency, &available, &locked, &b.Version, &b.UpdatedAt); err != nil {
		return b, err
	}
	var err error
	if b.Available, err = decimal.NewFromString(available); err != nil {
		return b, err
	}
	if b.Locked, err = decimal.NewFromString(locked); err != nil {
		return b, err
	}
	return b, nil
}

const operationColumns = `id, account_id, category, balance_source, source_currency, target_currency,
    requested_amount::text, fee_percent::text, fee_amount::text, net_amount::text, total_debit::text,
    conversion_rate::text, target_amount::text, bundle_id, destination, status, failure_reason, created_at`

func appendOperation(ctx context.Context, q querier, op domain.LedgerOperation) error {
	_, err := q.Exec(ctx, `
        INSERT INTO ledger_operations (
            id, account_id, category, balance_source, source_currency, target_currency,
            requested_amount, fee_percent, fee_amount, net_amount, total_debit,
            conversion_rate, target_amount, bundle_id, destination, status, failure_reason, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric,
            $12::text::numeric, $13::text::numeric, $14, $15, $16, $17, $18
        )`,
		op.ID, op.AccountID, string(op.Category), string(op.BalanceSource), op.SourceCurrency, op.TargetCurrency,
		op.RequestedAmount.String(), op.FeePercent.String(), op.FeeAmount.String(), op.NetAmount.String(), op.TotalDebit.String(),
		decimalText(op.ConversionRate), decimalText(op.TargetAmount), op.BundleID, op.Destination, string(op.Status), op.FailureReason, op.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ledger.ErrDuplicateOperation
		}
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

func scanOperation(row pgx.Row) (domain.LedgerOperation, error) {
	var (
		op                                  domain.LedgerOperation
		category, source, status            string
		requested, percent, fee, net, total string
		rate, target                        *string
	)
	err := row.Scan(&op.ID, &op.AccountID, &category, &source, &op.SourceCurrency, &op.TargetCurrency,
		&requested, &percent, &fee, &net, &total,
		&rate, &target, &op.BundleID, &op.Destination, &status, &op.FailureReason, &op.CreatedAt)
	if err != nil {
		return op, err
	}
	op.Category = domain.Category(category)
	op.BalanceSource = domain.BalanceSource(source)
	op.Status = domain.OperationStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&op.RequestedAmount, requested},
		{&op.FeePercent, percent},
		{&op.FeeAmount, fee},
		{&op.NetAmount, net},
		{&op.TotalDebit, total},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return op, err
		}
	}
	if op.ConversionRate, err = parseOptional(rate); err != nil {
		return op, err
	}
	if op.TargetAmount, err = parseOptional(target); err != nil {
		return op, err
	}
	return op, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseOptional(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailed || pgErr.Code == pgDeadlockDetected)
}

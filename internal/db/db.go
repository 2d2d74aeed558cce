package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/config"
)

// Conn is the process-wide pool, set by Init.
var Conn *pgxpool.Pool

// Init connects to Postgres and makes sure the ledger schema exists.
func Init(ctx context.Context, cfg config.DB, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	Conn = pool
	return pool, nil
}

// Connect opens the pool, retrying with exponential backoff while the
// database comes up.
func Connect(ctx context.Context, cfg config.DB, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := pgxpool.NewWithConfig(attemptCtx, poolCfg)
		if err == nil {
			if err = pool.Ping(attemptCtx); err == nil {
				cancel()
				logger.Info("connected to postgres", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
				return pool, nil
			}
			pool.Close()
		}
		cancel()

		logger.Warn("postgres connection failed", zap.Int("attempt", i), zap.Int("max_attempts", maxRetries), zap.Error(err))
		if i == maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("failed to connect to database")
}

// EnsureSchema creates the ledger tables if missing and seeds the default
// currencies. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"currencies", ensureCurrenciesTable},
		{"asset_balances", ensureBalancesTable},
		{"ledger_operations", ensureOperationsTable},
		{"fee_schedule", ensureFeeTables},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("failed to ensure %s: %w", s.name, err)
		}
	}
	if err := seedCurrencies(ctx, pool); err != nil {
		return fmt.Errorf("failed to seed currencies: %w", err)
	}
	logger.Info("ledger schema ensured")
	return nil
}

func ensureCurrenciesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS currencies (
            symbol TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            kind TEXT NOT NULL CHECK (kind IN ('FIAT','CRYPTO')),
            icon TEXT NOT NULL DEFAULT '',
            decimals INTEGER NOT NULL CHECK (decimals BETWEEN 0 AND 18)
        )`)
	return err
}

// ensureBalancesTable keeps the non-negative invariant in the database as
// well as in the engine. Version 0 is reserved for "no row yet", so rows
// inserted outside the engine start at 1.
func ensureBalancesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS asset_balances (
            account_id TEXT NOT NULL,
            currency TEXT NOT NULL REFERENCES currencies(symbol),
            available NUMERIC NOT NULL DEFAULT 0 CHECK (available >= 0),
            locked NUMERIC NOT NULL DEFAULT 0 CHECK (locked >= 0),
            version BIGINT NOT NULL DEFAULT 1,
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (account_id, currency)
        );
        ALTER TABLE asset_balances ALTER COLUMN version SET DEFAULT 1;
    `)
	return err
}

func ensureOperationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS ledger_operations (
            id TEXT PRIMARY KEY,
            account_id TEXT NOT NULL,
            category TEXT NOT NULL CHECK (category IN ('EXCHANGE','WITHDRAW_BANK','WITHDRAW_CRYPTO')),
            balance_source TEXT NOT NULL CHECK (balance_source IN ('AVAILABLE','LOCKED')),
            source_currency TEXT NOT NULL,
            target_currency TEXT NULL,
            requested_amount NUMERIC NOT NULL,
            fee_percent NUMERIC NOT NULL,
            fee_amount NUMERIC NOT NULL,
            net_amount NUMERIC NOT NULL,
            total_debit NUMERIC NOT NULL,
            conversion_rate NUMERIC NULL,
            target_amount NUMERIC NULL,
            bundle_id TEXT NULL,
            destination TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL CHECK (status IN ('QUOTED','COMMITTED','FAILED')),
            failure_reason TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_ledger_operations_account_created ON ledger_operations(account_id, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_ledger_operations_status ON ledger_operations(status);
    `)
	return err
}

func ensureFeeTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS fee_bundles (
            id TEXT PRIMARY KEY,
            category TEXT NOT NULL CHECK (category IN ('EXCHANGE','WITHDRAW_BANK','WITHDRAW_CRYPTO')),
            name TEXT NOT NULL,
            percent NUMERIC NOT NULL CHECK (percent >= 0 AND percent < 100),
            range_min NUMERIC NULL,
            range_max NUMERIC NULL,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (range_min IS NULL OR range_max IS NULL OR range_min <= range_max)
        );
        CREATE INDEX IF NOT EXISTS idx_fee_bundles_category ON fee_bundles(category) WHERE active;

        CREATE TABLE IF NOT EXISTS account_fee_rates (
            account_id TEXT NOT NULL,
            category TEXT NOT NULL CHECK (category IN ('EXCHANGE','WITHDRAW_BANK','WITHDRAW_CRYPTO')),
            percent NUMERIC NOT NULL CHECK (percent >= 0 AND percent < 100),
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (account_id, category)
        );
    `)
	return err
}

func seedCurrencies(ctx context.Context, pool *pgxpool.Pool) error {
	for _, c := range catalog.Defaults() {
		_, err := pool.Exec(ctx, `
            INSERT INTO currencies (symbol, name, kind, icon, decimals)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (symbol) DO NOTHING`,
			c.Symbol, c.Name, string(c.Kind), c.Icon, c.Decimals)
		if err != nil {
			return err
		}
	}
	return nil
}

//go:build integration

package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/config"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
)

// setupLedgerDB starts a disposable Postgres, applies the schema and returns
// a pool. The container is terminated when the test finishes.
func setupLedgerDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DB{User: "ledger", Password: "ledger", Host: host, Port: port.Port(), Name: "ledger", SSLMode: "disable"}
	pool, err := Init(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// EnsureSchema must be safe to run against an existing schema.
	require.NoError(t, EnsureSchema(ctx, pool, nil))
	return pool
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedBalance(t *testing.T, pool *pgxpool.Pool, account, currency, available string, version int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
        INSERT INTO asset_balances (account_id, currency, available, locked, version)
        VALUES ($1, $2, $3::text::numeric, 0, $4)`, account, currency, available, version)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, store *LedgerStore, account, currency string) domain.AssetBalance {
	t.Helper()
	b, err := store.ReadBalance(context.Background(), account, currency)
	require.NoError(t, err)
	return b
}

func committedOp(id, account string) domain.LedgerOperation {
	return domain.LedgerOperation{
		ID:              id,
		AccountID:       account,
		Category:        domain.CategoryWithdrawCrypto,
		BalanceSource:   domain.SourceAvailable,
		SourceCurrency:  "USDT",
		RequestedAmount: dec("1"),
		FeePercent:      dec("0"),
		FeeAmount:       dec("0"),
		NetAmount:       dec("1"),
		TotalDebit:      dec("1"),
		Destination:     "0xabc",
		Status:          domain.StatusCommitted,
		CreatedAt:       time.Now().UTC(),
	}
}

type noRates struct{}

func (noRates) Rate(context.Context, domain.Currency, domain.Currency) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("no rates in this test")
}

func newTestEngine(t *testing.T, pool *pgxpool.Pool, store *LedgerStore, account string, percent string) *ledger.Engine {
	t.Helper()
	repo := NewFeeRepository(pool)
	require.NoError(t, repo.SetFixedRate(context.Background(), account, domain.CategoryWithdrawCrypto, dec(percent)))
	resolver := fees.NewResolver(repo, repo, nil)
	return ledger.NewEngine(store, resolver, noRates{}, catalog.NewStatic(),
		ledger.WithCommitRetry(50, time.Millisecond),
		ledger.WithLogger(zaptest.NewLogger(t)))
}

func withdraw(account, amount string) ledger.OperationRequest {
	return ledger.OperationRequest{
		AccountID:      account,
		Category:       domain.CategoryWithdrawCrypto,
		Source:         domain.SourceAvailable,
		SourceCurrency: "USDT",
		Amount:         dec(amount),
		Destination:    "0xabc",
	}
}

func TestIntegration_LedgerStore(t *testing.T) {
	pool := setupLedgerDB(t)
	store := NewLedgerStore(pool, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("versioned update", func(t *testing.T) {
		seedBalance(t, pool, "versioned", "USDT", "50", 1)

		err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			b, err := tx.ReadBalance(ctx, "versioned", "USDT")
			if err != nil {
				return err
			}
			b.Available = dec("40")
			return tx.WriteBalanceIfVersionMatches(ctx, b, b.Version)
		})
		require.NoError(t, err)

		b := balanceOf(t, store, "versioned", "USDT")
		assert.Equal(t, "40", b.Available.String())
		assert.Equal(t, int64(2), b.Version)

		err = store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			b.Available = dec("1")
			return tx.WriteBalanceIfVersionMatches(ctx, b, 1)
		})
		assert.ErrorIs(t, err, ledger.ErrVersionConflict)
		assert.Equal(t, "40", balanceOf(t, store, "versioned", "USDT").Available.String())
	})

	t.Run("missing row reads as version zero", func(t *testing.T) {
		b := balanceOf(t, store, "nobody", "BTC")
		assert.Equal(t, int64(0), b.Version)
		assert.True(t, b.Available.IsZero())
	})

	t.Run("first insert race has one winner", func(t *testing.T) {
		const writers = 8
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]error, writers)
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
					bal := domain.AssetBalance{AccountID: "racer", Currency: "ETH", Available: decimal.NewFromInt(int64(i + 1))}
					return tx.WriteBalanceIfVersionMatches(ctx, bal, 0)
				})
			}(i)
		}
		close(start)
		wg.Wait()

		won := 0
		for _, err := range results {
			if err == nil {
				won++
				continue
			}
			assert.ErrorIs(t, err, ledger.ErrVersionConflict)
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, int64(1), balanceOf(t, store, "racer", "ETH").Version)
	})

	t.Run("row left at version zero is still writable", func(t *testing.T) {
		seedBalance(t, pool, "legacy", "USDT", "30", 0)

		err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			b, err := tx.ReadBalance(ctx, "legacy", "USDT")
			if err != nil {
				return err
			}
			require.Equal(t, int64(0), b.Version)
			b.Available = dec("25")
			return tx.WriteBalanceIfVersionMatches(ctx, b, b.Version)
		})
		require.NoError(t, err)

		b := balanceOf(t, store, "legacy", "USDT")
		assert.Equal(t, "25", b.Available.String())
		assert.Equal(t, int64(1), b.Version)
	})

	t.Run("externally inserted row commits", func(t *testing.T) {
		_, err := pool.Exec(ctx, `INSERT INTO asset_balances (account_id, currency, available) VALUES ('external', 'USDT', 100)`)
		require.NoError(t, err)
		assert.Equal(t, int64(1), balanceOf(t, store, "external", "USDT").Version)

		engine := newTestEngine(t, pool, store, "external", "0")
		q, err := engine.Quote(ctx, withdraw("external", "40"))
		require.NoError(t, err)
		op, err := engine.Commit(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCommitted, op.Status)

		b := balanceOf(t, store, "external", "USDT")
		assert.Equal(t, "60", b.Available.String())
		assert.Equal(t, int64(2), b.Version)
	})

	t.Run("negative balance is rejected by the database", func(t *testing.T) {
		seedBalance(t, pool, "checked", "USDT", "5", 1)

		err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			bal := domain.AssetBalance{AccountID: "checked", Currency: "USDT", Available: dec("-1")}
			return tx.WriteBalanceIfVersionMatches(ctx, bal, 1)
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ledger.ErrVersionConflict)
		assert.Contains(t, err.Error(), "would go negative")
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, pgCheckViolation, pgErr.Code)
		assert.Equal(t, "5", balanceOf(t, store, "checked", "USDT").Available.String())
	})

	t.Run("duplicate operation inside tx rolls back", func(t *testing.T) {
		seedBalance(t, pool, "dup", "USDT", "10", 1)
		require.NoError(t, store.AppendOperation(ctx, committedOp("op-dup", "dup")))

		err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			bal := domain.AssetBalance{AccountID: "dup", Currency: "USDT", Available: dec("9")}
			if err := tx.WriteBalanceIfVersionMatches(ctx, bal, 1); err != nil {
				return err
			}
			return tx.AppendLedgerOperation(ctx, committedOp("op-dup", "dup"))
		})
		assert.ErrorIs(t, err, ledger.ErrDuplicateOperation)

		b := balanceOf(t, store, "dup", "USDT")
		assert.Equal(t, "10", b.Available.String())
		assert.Equal(t, int64(1), b.Version)
	})

	t.Run("stale quote rolls back and records failure", func(t *testing.T) {
		seedBalance(t, pool, "stale", "USDT", "100", 1)
		engine := newTestEngine(t, pool, store, "stale", "1")

		q, err := engine.Quote(ctx, withdraw("stale", "90"))
		require.NoError(t, err)

		_, err = pool.Exec(ctx, `UPDATE asset_balances SET available = 20, version = version + 1 WHERE account_id = 'stale'`)
		require.NoError(t, err)

		_, err = engine.Commit(ctx, q)
		require.ErrorIs(t, err, ledger.ErrStaleQuote)

		b := balanceOf(t, store, "stale", "USDT")
		assert.Equal(t, "20", b.Available.String())
		assert.Equal(t, int64(2), b.Version)

		recorded, err := store.GetOperation(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, recorded.Status)
		assert.NotEmpty(t, recorded.FailureReason)
	})

	t.Run("concurrent commits never overdraw", func(t *testing.T) {
		seedBalance(t, pool, "busy", "USDT", "100", 1)
		engine := newTestEngine(t, pool, store, "busy", "1")

		const workers = 20
		quotes := make([]ledger.Quote, workers)
		for i := range quotes {
			q, err := engine.Quote(ctx, withdraw("busy", "10"))
			require.NoError(t, err)
			quotes[i] = q
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for _, q := range quotes {
			wg.Add(1)
			go func(q ledger.Quote) {
				defer wg.Done()
				_, err := engine.Commit(ctx, q)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					committed++
					return
				}
				assert.ErrorIs(t, err, ledger.ErrStaleQuote)
			}(q)
		}
		wg.Wait()

		b := balanceOf(t, store, "busy", "USDT")
		assert.False(t, b.Available.IsNegative())
		assert.Equal(t, 9, committed)
		assert.Equal(t, "9.1", b.Available.String())

		ops, err := store.ListOperations(ctx, ledger.OperationFilter{AccountID: "busy", Status: domain.StatusCommitted, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, ops, committed)

		failed, err := store.ListOperations(ctx, ledger.OperationFilter{AccountID: "busy", Status: domain.StatusFailed, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, failed, workers-committed, "%d committed", committed)
	})
}

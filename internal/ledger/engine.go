package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
)

// FeeResolver decides the fee percent for a request.
type FeeResolver interface {
	Resolve(ctx context.Context, accountID string, category domain.Category, amount decimal.Decimal, bundleID *string) (fees.Resolution, error)
}

// RateSource converts between two catalog currencies.
type RateSource interface {
	Rate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
}

const (
	DefaultQuoteTTL          = 45 * time.Second
	DefaultCommitMaxAttempts = 5
	DefaultCommitRetryBase   = 20 * time.Millisecond

	maxRetryDelay = time.Second
)

// Engine prices operations against balances and applies them atomically.
type Engine struct {
	store      Store
	fees       FeeResolver
	rates      RateSource
	currencies catalog.Catalog

	quoteTTL    time.Duration
	maxAttempts int
	retryBase   time.Duration
	events      EventPublisher
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

type Option func(*Engine)

func WithQuoteTTL(d time.Duration) Option {
	return func(e *Engine) { e.quoteTTL = d }
}

// WithCommitRetry sets how often a commit is retried on a version conflict
// and the base delay of its exponential backoff.
func WithCommitRetry(attempts int, base time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.maxAttempts = attempts
		}
		e.retryBase = base
	}
}

func WithEvents(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(store Store, feeResolver FeeResolver, rateSource RateSource, currencies catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		fees:        feeResolver,
		rates:       rateSource,
		currencies:  currencies,
		quoteTTL:    DefaultQuoteTTL,
		maxAttempts: DefaultCommitMaxAttempts,
		retryBase:   DefaultCommitRetryBase,
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Quote prices req against the current balance without mutating anything.
func (e *Engine) Quote(ctx context.Context, req OperationRequest) (Quote, error) {
	req.SourceCurrency = catalog.Normalize(req.SourceCurrency)
	req.TargetCurrency = catalog.Normalize(req.TargetCurrency)

	src, tgt, err := e.validate(ctx, req)
	if err != nil {
		return Quote{}, err
	}

	bal, err := e.store.ReadBalance(ctx, req.AccountID, src.Symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read balance: %w", err)
	}

	res, err := e.fees.Resolve(ctx, req.AccountID, req.Category, req.Amount, req.BundleID)
	if err != nil {
		if errors.Is(err, fees.ErrBundleNotFound) || errors.Is(err, fees.ErrBundleCategoryMismatch) || errors.Is(err, fees.ErrBundleNotAllowed) {
			return Quote{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return Quote{}, err
	}

	d := computeDebit(req.Source, req.Amount, res.Percent)
	maxAmt := maxAllowable(req.Source, bal, res.Percent, src)
	if !admissible(bal, d) {
		return Quote{}, &InsufficientBalanceError{
			Balance:           bal,
			Source:            req.Source,
			RequiredAvailable: d.FromAvailable,
			RequiredLocked:    d.FromLocked,
			MaxAllowable:      maxAmt,
		}
	}

	now := e.now()
	q := Quote{
		ID:              e.newID(),
		AccountID:       req.AccountID,
		Category:        req.Category,
		Source:          req.Source,
		SourceCurrency:  src.Symbol,
		Destination:     req.Destination,
		RequestedAmount: req.Amount,
		FeePercent:      res.Percent,
		FixedRate:       res.Fixed,
		BundleID:        res.BundleID,
		FeeAmount:       d.Fee,
		NetAmount:       d.Net,
		TotalDebit:      d.Total(),
		DebitAvailable:  d.FromAvailable,
		DebitLocked:     d.FromLocked,
		MaxAllowable:    maxAmt,
		Balance:         bal,
		AvailableAfter:  bal.Available.Sub(d.FromAvailable),
		LockedAfter:     bal.Locked.Sub(d.FromLocked),
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.quoteTTL),
	}

	if req.Category == domain.CategoryExchange {
		rate, err := e.rates.Rate(ctx, src, tgt)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: %w", ErrRateUnavailable, err)
		}
		target := d.Net.Mul(rate).Truncate(tgt.Decimals)
		if !target.IsPositive() {
			return Quote{}, validationf("amount too small to convert into %s", tgt.Symbol)
		}
		q.TargetCurrency = tgt.Symbol
		q.ConversionRate = &rate
		q.TargetAmount = &target
	}

	return q, nil
}

func (e *Engine) validate(ctx context.Context, req OperationRequest) (src, tgt domain.Currency, err error) {
	if req.AccountID == "" {
		return src, tgt, validationf("account id is required")
	}
	if !req.Category.Valid() {
		return src, tgt, validationf("unknown category %q", req.Category)
	}
	if !req.Source.Valid() {
		return src, tgt, validationf("unknown balance source %q", req.Source)
	}
	if !req.Amount.IsPositive() {
		return src, tgt, validationf("amount must be greater than zero")
	}

	src, err = e.lookup(ctx, req.SourceCurrency)
	if err != nil {
		return src, tgt, err
	}
	if !req.Amount.Truncate(src.Decimals).Equal(req.Amount) {
		return src, tgt, validationf("%s supports at most %d decimal places", src.Symbol, src.Decimals)
	}

	if req.Category.IsWithdrawal() && req.TargetCurrency != "" {
		return src, tgt, validationf("withdrawals take no target currency")
	}

	switch req.Category {
	case domain.CategoryExchange:
		if req.TargetCurrency == "" {
			return src, tgt, validationf("target currency is required for exchange")
		}
		if req.TargetCurrency == src.Symbol {
			return src, tgt, validationf("cannot exchange %s into itself", src.Symbol)
		}
		tgt, err = e.lookup(ctx, req.TargetCurrency)
		if err != nil {
			return src, tgt, err
		}
	case domain.CategoryWithdrawBank:
		if src.Kind != domain.KindFiat {
			return src, tgt, validationf("bank withdrawals require a fiat currency")
		}
	case domain.CategoryWithdrawCrypto:
		if src.Kind != domain.KindCrypto {
			return src, tgt, validationf("crypto withdrawals require a crypto currency")
		}
	}
	return src, tgt, nil
}

func (e *Engine) lookup(ctx context.Context, symbol string) (domain.Currency, error) {
	if symbol == "" {
		return domain.Currency{}, validationf("currency is required")
	}
	c, err := e.currencies.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCurrency) {
			return c, validationf("unknown currency %q", symbol)
		}
		return c, fmt.Errorf("failed to load currency: %w", err)
	}
	return c, nil
}

// Commit applies a quote. Committing the same quote again returns the
// operation recorded the first time.
func (e *Engine) Commit(ctx context.Context, q Quote) (domain.LedgerOperation, error) {
	if q.ID == "" {
		return domain.LedgerOperation{}, validationf("quote id is required")
	}
	if op, done, err := e.recorded(ctx, q.ID); done {
		return op, err
	}

	if !e.now().Before(q.ExpiresAt) {
		if op, err := e.recordFailure(ctx, q, ErrQuoteExpired.Error()); op != nil {
			return *op, err
		}
		return domain.LedgerOperation{}, ErrQuoteExpired
	}

	for attempt := 1; ; attempt++ {
		op, err := e.apply(ctx, q)
		if err == nil {
			e.logger.Info("operation committed",
				zap.String("operation_id", op.ID),
				zap.String("account_id", op.AccountID),
				zap.String("category", string(op.Category)),
				zap.String("total_debit", op.TotalDebit.String()),
				zap.Int("attempt", attempt))
			e.publish(ctx, op)
			return op, nil
		}

		var stale *StaleQuoteError
		switch {
		case errors.Is(err, ErrDuplicateOperation):
			op, _, err := e.recorded(ctx, q.ID)
			return op, err

		case errors.As(err, &stale):
			if op, err := e.recordFailure(ctx, q, stale.Reason); op != nil {
				return *op, err
			}
			return domain.LedgerOperation{}, stale

		case errors.Is(err, ErrVersionConflict):
			if attempt >= e.maxAttempts {
				e.logger.Warn("commit gave up on version conflicts",
					zap.String("operation_id", q.ID), zap.Int("attempts", attempt))
				return domain.LedgerOperation{}, ErrConcurrencyConflict
			}
			if err := e.backoff(ctx, attempt); err != nil {
				return domain.LedgerOperation{}, err
			}

		default:
			return domain.LedgerOperation{}, fmt.Errorf("failed to commit quote %s: %w", q.ID, err)
		}
	}
}

func (e *Engine) apply(ctx context.Context, q Quote) (domain.LedgerOperation, error) {
	var op domain.LedgerOperation

	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		symbols := []string{q.SourceCurrency}
		if q.Category == domain.CategoryExchange {
			symbols = append(symbols, q.TargetCurrency)
		}
		sort.Strings(symbols)

		balances := make(map[string]domain.AssetBalance, len(symbols))
		for _, s := range symbols {
			b, err := tx.ReadBalance(ctx, q.AccountID, s)
			if err != nil {
				return err
			}
			balances[s] = b
		}

		src := balances[q.SourceCurrency]
		d := q.debit()
		if !admissible(src, d) {
			return &StaleQuoteError{QuoteID: q.ID, Reason: "balance no longer covers the quoted debit", Balance: &src}
		}

		next := make(map[string]domain.AssetBalance, len(symbols))
		debited := src
		debited.Available = src.Available.Sub(d.FromAvailable)
		debited.Locked = src.Locked.Sub(d.FromLocked)
		next[q.SourceCurrency] = debited
		if q.Category == domain.CategoryExchange {
			credited := balances[q.TargetCurrency]
			credited.Available = credited.Available.Add(*q.TargetAmount)
			next[q.TargetCurrency] = credited
		}

		for _, s := range symbols {
			if err := tx.WriteBalanceIfVersionMatches(ctx, next[s], balances[s].Version); err != nil {
				return err
			}
		}

		op = q.Operation(domain.StatusCommitted, "", e.now())
		return tx.AppendLedgerOperation(ctx, op)
	})
	return op, err
}

// recorded reports whether the quote already reached a terminal state.
func (e *Engine) recorded(ctx context.Context, id string) (domain.LedgerOperation, bool, error) {
	op, err := e.store.GetOperation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOperationNotFound) {
			return domain.LedgerOperation{}, false, nil
		}
		return domain.LedgerOperation{}, true, fmt.Errorf("failed to load operation: %w", err)
	}
	switch op.Status {
	case domain.StatusCommitted:
		return op, true, nil
	case domain.StatusFailed:
		if op.FailureReason == ErrQuoteExpired.Error() {
			return op, true, ErrQuoteExpired
		}
		return op, true, &StaleQuoteError{QuoteID: id, Reason: op.FailureReason}
	}
	return domain.LedgerOperation{}, false, nil
}

// recordFailure appends the FAILED audit row. If a concurrent commit of the
// same quote won, that outcome is returned instead.
func (e *Engine) recordFailure(ctx context.Context, q Quote, reason string) (*domain.LedgerOperation, error) {
	op := q.Operation(domain.StatusFailed, reason, e.now())
	err := e.store.AppendOperation(ctx, op)
	if errors.Is(err, ErrDuplicateOperation) {
		existing, _, err := e.recorded(ctx, q.ID)
		return &existing, err
	}
	if err != nil {
		e.logger.Error("failed to record failed operation", zap.String("operation_id", q.ID), zap.Error(err))
		return nil, nil
	}

	e.logger.Info("operation failed",
		zap.String("operation_id", op.ID),
		zap.String("account_id", op.AccountID),
		zap.String("reason", reason))
	if e.events != nil {
		if err := e.events.OperationFailed(ctx, op); err != nil {
			e.logger.Warn("failed to publish operation event", zap.String("operation_id", op.ID), zap.Error(err))
		}
	}
	return nil, nil
}

func (e *Engine) publish(ctx context.Context, op domain.LedgerOperation) {
	if e.events == nil {
		return
	}
	if err := e.events.OperationCommitted(ctx, op); err != nil {
		e.logger.Warn("failed to publish operation event", zap.String("operation_id", op.ID), zap.Error(err))
	}
}

// backoff sleeps retryDelay plus up to base of jitter, both capped at
// maxRetryDelay.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	delay := retryDelay(e.retryBase, attempt)
	if jitter := min(e.retryBase, maxRetryDelay); jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter) + 1))
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryDelay is base*2^(attempt-1), capped at maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if base >= maxRetryDelay {
		return maxRetryDelay
	}
	delay := base
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay <<= 1
	}
	return min(delay, maxRetryDelay)
}

// Balances lists every balance the account holds.
func (e *Engine) Balances(ctx context.Context, accountID string) ([]domain.AssetBalance, error) {
	return e.store.ListBalances(ctx, accountID)
}

func (e *Engine) Balance(ctx context.Context, accountID, currency string) (domain.AssetBalance, error) {
	cur, err := e.lookup(ctx, catalog.Normalize(currency))
	if err != nil {
		return domain.AssetBalance{}, err
	}
	return e.store.ReadBalance(ctx, accountID, cur.Symbol)
}

func (e *Engine) Operation(ctx context.Context, id string) (domain.LedgerOperation, error) {
	return e.store.GetOperation(ctx, id)
}

func (e *Engine) Operations(ctx context.Context, f OperationFilter) ([]domain.LedgerOperation, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return e.store.ListOperations(ctx, f)
}

package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

var (
	ErrValidation          = errors.New("invalid operation request")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRateUnavailable     = errors.New("conversion rate unavailable")
	ErrStaleQuote          = errors.New("quote no longer valid")
	ErrConcurrencyConflict = errors.New("balance changed concurrently, retry")
	ErrOperationNotFound   = errors.New("operation not found")

	// Store-level signals.
	ErrVersionConflict    = errors.New("balance version conflict")
	ErrDuplicateOperation = errors.New("operation already recorded")
)

// ErrQuoteExpired is a StaleQuote raised before any balance is read.
var ErrQuoteExpired error = &expiredError{}

type expiredError struct{}

func (*expiredError) Error() string { return "quote expired" }
func (*expiredError) Is(target error) bool { return target == ErrStaleQuote }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InsufficientBalanceError carries enough context for the caller to offer
// the maximum the account can move.
type InsufficientBalanceError struct {
	Balance           domain.AssetBalance
	Source            domain.BalanceSource
	RequiredAvailable decimal.Decimal
	RequiredLocked    decimal.Decimal
	MaxAllowable      decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s available and %s locked %s, have %s and %s (max allowable %s)",
		e.RequiredAvailable, e.RequiredLocked, e.Balance.Currency, e.Balance.Available, e.Balance.Locked, e.MaxAllowable)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// StaleQuoteError reports a quote that no longer fits the current balance.
// The failed operation has been recorded for audit.
type StaleQuoteError struct {
	QuoteID string
	Reason  string
	Balance *domain.AssetBalance
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("quote %s is stale: %s", e.QuoteID, e.Reason)
}

func (e *StaleQuoteError) Is(target error) bool { return target == ErrStaleQuote }

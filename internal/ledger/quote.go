package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// OperationRequest is what a caller asks the engine to price or perform.
type OperationRequest struct {
	AccountID      string               `json:"-"`
	Category       domain.Category      `json:"category"`
	Source         domain.BalanceSource `json:"balance_source"`
	SourceCurrency string               `json:"source_currency"`
	TargetCurrency string               `json:"target_currency,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	BundleID       *string              `json:"bundle_id,omitempty"`
	Destination    string               `json:"destination,omitempty"`
}

// Quote is a priced, not yet applied operation. It is never mutated after
// the engine returns it.
type Quote struct {
	ID             string               `json:"id"`
	AccountID      string               `json:"account_id"`
	Category       domain.Category      `json:"category"`
	Source         domain.BalanceSource `json:"balance_source"`
	SourceCurrency string               `json:"source_currency"`
	TargetCurrency string               `json:"target_currency,omitempty"`
	Destination    string               `json:"destination,omitempty"`

	RequestedAmount decimal.Decimal  `json:"requested_amount"`
	FeePercent      decimal.Decimal  `json:"fee_percent"`
	FixedRate       bool             `json:"fixed_rate"`
	BundleID        *string          `json:"bundle_id,omitempty"`
	FeeAmount       decimal.Decimal  `json:"fee_amount"`
	NetAmount       decimal.Decimal  `json:"net_amount"`
	TotalDebit      decimal.Decimal  `json:"total_debit"`
	DebitAvailable  decimal.Decimal  `json:"debit_available"`
	DebitLocked     decimal.Decimal  `json:"debit_locked"`
	ConversionRate  *decimal.Decimal `json:"conversion_rate,omitempty"`
	TargetAmount    *decimal.Decimal `json:"target_amount,omitempty"`
	MaxAllowable    decimal.Decimal  `json:"max_allowable"`

	Balance        domain.AssetBalance `json:"balance"`
	AvailableAfter decimal.Decimal     `json:"available_after"`
	LockedAfter    decimal.Decimal     `json:"locked_after"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (q Quote) debit() debit {
	return debit{
		Fee:           q.FeeAmount,
		Net:           q.NetAmount,
		FromAvailable: q.DebitAvailable,
		FromLocked:    q.DebitLocked,
	}
}

// Operation renders the quote as a ledger record in the given state.
func (q Quote) Operation(status domain.OperationStatus, reason string, at time.Time) domain.LedgerOperation {
	op := domain.LedgerOperation{
		ID:              q.ID,
		AccountID:       q.AccountID,
		Category:        q.Category,
		BalanceSource:   q.Source,
		SourceCurrency:  q.SourceCurrency,
		RequestedAmount: q.RequestedAmount,
		FeePercent:      q.FeePercent,
		FeeAmount:       q.FeeAmount,
		NetAmount:       q.NetAmount,
		TotalDebit:      q.TotalDebit,
		ConversionRate:  q.ConversionRate,
		TargetAmount:    q.TargetAmount,
		BundleID:        q.BundleID,
		Destination:     q.Destination,
		Status:          status,
		FailureReason:   reason,
		CreatedAt:       at,
	}
	if q.TargetCurrency != "" {
		t := q.TargetCurrency
		op.TargetCurrency = &t
	}
	return op
}

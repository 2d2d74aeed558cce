package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the kind of money movement a ledger operation performs.
type Category string

const (
	CategoryExchange       Category = "EXCHANGE"
	CategoryWithdrawBank   Category = "WITHDRAW_BANK"
	CategoryWithdrawCrypto Category = "WITHDRAW_CRYPTO"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryExchange, CategoryWithdrawBank, CategoryWithdrawCrypto:
		return true
	}
	return false
}

// IsWithdrawal reports whether funds leave the platform.
func (c Category) IsWithdrawal() bool {
	return c == CategoryWithdrawBank || c == CategoryWithdrawCrypto
}

// BalanceSource selects which side of an AssetBalance funds the principal.
type BalanceSource string

const (
	SourceAvailable BalanceSource = "AVAILABLE"
	SourceLocked    BalanceSource = "LOCKED"
)

func (s BalanceSource) Valid() bool {
	return s == SourceAvailable || s == SourceLocked
}

// OperationStatus is the lifecycle state of a LedgerOperation.
//
//	QUOTED -> COMMITTED (terminal)
//	QUOTED -> FAILED    (terminal, no mutation applied)
type OperationStatus string

const (
	StatusQuoted    OperationStatus = "QUOTED"
	StatusCommitted OperationStatus = "COMMITTED"
	StatusFailed    OperationStatus = "FAILED"
)

// CurrencyKind separates fiat from crypto assets.
type CurrencyKind string

const (
	KindFiat   CurrencyKind = "FIAT"
	KindCrypto CurrencyKind = "CRYPTO"
)

// Currency is immutable reference data loaded from the catalog.
type Currency struct {
	Symbol   string       `json:"symbol"`
	Name     string       `json:"name"`
	Kind     CurrencyKind `json:"kind"`
	Icon     string       `json:"icon,omitempty"`
	Decimals int32        `json:"decimals"`
}

// Unit returns the smallest representable amount of the currency.
func (c Currency) Unit() decimal.Decimal {
	return decimal.New(1, -c.Decimals)
}

// AssetBalance holds the per (account, currency) funds. Available and Locked
// are never negative.
type AssetBalance struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FeeBundle is a selectable fee tier for accounts without a fixed rate.
// RangeMin/RangeMax are expressed in source-asset units and are optional.
type FeeBundle struct {
	ID       string           `json:"id"`
	Category Category         `json:"category"`
	Name     string           `json:"name"`
	Percent  decimal.Decimal  `json:"percent"`
	RangeMin *decimal.Decimal `json:"range_min,omitempty"`
	RangeMax *decimal.Decimal `json:"range_max,omitempty"`
}

// Covers reports whether amount falls inside the bundle's eligibility range.
func (b FeeBundle) Covers(amount decimal.Decimal) bool {
	if b.RangeMin != nil && amount.LessThan(*b.RangeMin) {
		return false
	}
	if b.RangeMax != nil && amount.GreaterThan(*b.RangeMax) {
		return false
	}
	return true
}

// LedgerOperation is the auditable record of a quoted money movement.
// Committed operations are never edited; a reversal is a new operation.
type LedgerOperation struct {
	ID              string           `json:"id"`
	AccountID       string           `json:"account_id"`
	Category        Category         `json:"category"`
	BalanceSource   BalanceSource    `json:"balance_source"`
	SourceCurrency  string           `json:"source_currency"`
	TargetCurrency  *string          `json:"target_currency,omitempty"`
	RequestedAmount decimal.Decimal  `json:"requested_amount"`
	FeePercent      decimal.Decimal  `json:"fee_percent"`
	FeeAmount       decimal.Decimal  `json:"fee_amount"`
	NetAmount       decimal.Decimal  `json:"net_amount"`
	TotalDebit      decimal.Decimal  `json:"total_debit"`
	ConversionRate  *decimal.Decimal `json:"conversion_rate,omitempty"`
	TargetAmount    *decimal.Decimal `json:"target_amount,omitempty"`
	BundleID        *string          `json:"bundle_id,omitempty"`
	Destination     string           `json:"destination,omitempty"`
	Status          OperationStatus  `json:"status"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// divPrecision bounds intermediate quotients before truncation to a currency.
const divPrecision = 24

// debit is the split of one operation across the two sides of a balance.
//
// Net is requested-fee for both sources; only where the fee is taken from
// differs. An available-source operation takes requested+fee from available.
// A locked-source one takes requested from locked and fee from available.
type debit struct {
	Fee           decimal.Decimal
	Net           decimal.Decimal
	FromAvailable decimal.Decimal
	FromLocked    decimal.Decimal
}

func (d debit) Total() decimal.Decimal { return d.FromAvailable.Add(d.FromLocked) }

func computeDebit(source domain.BalanceSource, amount, percent decimal.Decimal) debit {
	fee := amount.Mul(percent).Shift(-2)
	d := debit{Fee: fee, Net: amount.Sub(fee)}
	if source == domain.SourceLocked {
		d.FromLocked = amount
		d.FromAvailable = fee
	} else {
		d.FromAvailable = amount.Add(fee)
		d.FromLocked = decimal.Zero
	}
	return d
}

func admissible(bal domain.AssetBalance, d debit) bool {
	return d.FromAvailable.LessThanOrEqual(bal.Available) && d.FromLocked.LessThanOrEqual(bal.Locked)
}

// maxAllowable solves the admissibility inequality for the requested amount
// and truncates to the currency's precision. The result is always admissible.
func maxAllowable(source domain.BalanceSource, bal domain.AssetBalance, percent decimal.Decimal, cur domain.Currency) decimal.Decimal {
	var m decimal.Decimal
	if source == domain.SourceLocked {
		m = bal.Locked
		if percent.IsPositive() {
			byFee := bal.Available.Mul(hundred).DivRound(percent, divPrecision)
			m = decimal.Min(m, byFee)
		}
	} else {
		m = bal.Available.DivRound(one.Add(percent.Shift(-2)), divPrecision)
	}

	m = m.Truncate(cur.Decimals)
	unit := cur.Unit()
	for m.IsPositive() && !admissible(bal, computeDebit(source, m, percent)) {
		m = m.Sub(unit)
	}
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

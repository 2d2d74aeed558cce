package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

var (
	ErrSelectionRequired      = errors.New("fee bundle selection required")
	ErrBundleIneligible       = errors.New("fee bundle not eligible for amount")
	ErrBundleNotFound         = errors.New("fee bundle not found")
	ErrBundleCategoryMismatch = errors.New("fee bundle does not belong to category")
	ErrBundleNotAllowed       = errors.New("account has a fixed rate for this category, bundle selection is not allowed")
	ErrInvalidPercent         = errors.New("fee percent out of range")
)

// SelectionRequiredError is returned when no fixed rate applies and the caller
// did not pick a bundle. Options lists the bundles of the category.
type SelectionRequiredError struct {
	Category domain.Category
	Options  []Option
}

func (e *SelectionRequiredError) Error() string {
	return fmt.Sprintf("%s: category %s", ErrSelectionRequired, e.Category)
}

func (e *SelectionRequiredError) Is(target error) bool {
	return target == ErrSelectionRequired
}

// IneligibleError reports that the selected bundle's range excludes the amount.
type IneligibleError struct {
	Bundle   domain.FeeBundle
	Amount   decimal.Decimal
	Eligible []domain.FeeBundle
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s: bundle %s, amount %s, range [%s, %s]",
		ErrBundleIneligible, e.Bundle.ID, e.Amount, bound(e.Bundle.RangeMin), bound(e.Bundle.RangeMax))
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrBundleIneligible
}

func bound(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

package fees

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

type fakeAccounts map[string]map[domain.Category]decimal.Decimal

func (f fakeAccounts) FixedRates(_ context.Context, accountID string) (map[domain.Category]decimal.Decimal, error) {
	return f[accountID], nil
}

type fakeBundles []domain.FeeBundle

func (f fakeBundles) Bundle(_ context.Context, id string) (domain.FeeBundle, error) {
	for _, b := range f {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.FeeBundle{}, ErrBundleNotFound
}

func (f fakeBundles) Bundles(_ context.Context, category domain.Category) ([]domain.FeeBundle, error) {
	var out []domain.FeeBundle
	for _, b := range f {
		if b.Category == category {
			out = append(out, b)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func newTestResolver() *Resolver {
	accounts := fakeAccounts{
		"fixed": {domain.CategoryWithdrawCrypto: dec("1.5")},
	}
	bundles := fakeBundles{
		{ID: "standard", Category: domain.CategoryWithdrawCrypto, Name: "Standard", Percent: dec("2")},
		{ID: "premium", Category: domain.CategoryWithdrawCrypto, Name: "Premium", Percent: dec("0.5"), RangeMax: decPtr("1")},
		{ID: "bank", Category: domain.CategoryWithdrawBank, Name: "Bank", Percent: dec("1")},
		{ID: "broken", Category: domain.CategoryWithdrawBank, Name: "Broken", Percent: dec("100")},
	}
	return NewResolver(accounts, bundles, nil)
}

func TestResolve_FixedRate(t *testing.T) {
	r := newTestResolver()

	res, err := r.Resolve(context.Background(), "fixed", domain.CategoryWithdrawCrypto, dec("10"), nil)
	require.NoError(t, err)
	assert.True(t, res.Fixed)
	assert.Nil(t, res.BundleID)
	assert.True(t, res.Percent.Equal(dec("1.5")))
}

func TestResolve_FixedRateRejectsBundle(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), "fixed", domain.CategoryWithdrawCrypto, dec("10"), strPtr("standard"))
	assert.ErrorIs(t, err, ErrBundleNotAllowed)
}

func TestResolve_FixedRateOnlyForItsCategory(t *testing.T) {
	r := newTestResolver()

	res, err := r.Resolve(context.Background(), "fixed", domain.CategoryWithdrawBank, dec("10"), strPtr("bank"))
	require.NoError(t, err)
	assert.False(t, res.Fixed)
	require.NotNil(t, res.BundleID)
	assert.Equal(t, "bank", *res.BundleID)
}

func TestResolve_SelectionRequired(t *testing.T) {
	r := newTestResolver()

	for _, id := range []*string{nil, strPtr("")} {
		_, err := r.Resolve(context.Background(), "plain", domain.CategoryWithdrawCrypto, dec("2"), id)
		require.ErrorIs(t, err, ErrSelectionRequired)

		var sel *SelectionRequiredError
		require.True(t, errors.As(err, &sel))
		require.Len(t, sel.Options, 2)
		assert.Equal(t, "premium", sel.Options[0].ID, "options sorted by percent")
		assert.False(t, sel.Options[0].Eligible)
		assert.True(t, sel.Options[1].Eligible)
	}
}

func TestResolve_BundleIneligible(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), "plain", domain.CategoryWithdrawCrypto, dec("1.5"), strPtr("premium"))
	require.ErrorIs(t, err, ErrBundleIneligible)

	var inel *IneligibleError
	require.True(t, errors.As(err, &inel))
	assert.Equal(t, "premium", inel.Bundle.ID)
	require.NotNil(t, inel.Bundle.RangeMax)
	assert.True(t, inel.Bundle.RangeMax.Equal(dec("1")))
	require.Len(t, inel.Eligible, 1)
	assert.Equal(t, "standard", inel.Eligible[0].ID)
}

func TestResolve_BundleWithinRange(t *testing.T) {
	r := newTestResolver()

	res, err := r.Resolve(context.Background(), "plain", domain.CategoryWithdrawCrypto, dec("1"), strPtr("premium"))
	require.NoError(t, err)
	assert.True(t, res.Percent.Equal(dec("0.5")))
}

func TestResolve_BundleValidation(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name   string
		bundle string
		cat    domain.Category
		want   error
	}{
		{name: "unknown bundle", bundle: "nope", cat: domain.CategoryWithdrawCrypto, want: ErrBundleNotFound},
		{name: "wrong category", bundle: "bank", cat: domain.CategoryWithdrawCrypto, want: ErrBundleCategoryMismatch},
		{name: "percent out of range", bundle: "broken", cat: domain.CategoryWithdrawBank, want: ErrInvalidPercent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), "plain", tt.cat, dec("1"), strPtr(tt.bundle))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOptions(t *testing.T) {
	r := newTestResolver()

	opts, fixed, err := r.Options(context.Background(), "fixed", domain.CategoryWithdrawCrypto, dec("1"))
	require.NoError(t, err)
	assert.Empty(t, opts)
	require.NotNil(t, fixed)
	assert.True(t, fixed.Equal(dec("1.5")))

	opts, fixed, err = r.Options(context.Background(), "plain", domain.CategoryWithdrawCrypto, dec("0.5"))
	require.NoError(t, err)
	assert.Nil(t, fixed)
	require.Len(t, opts, 2)
	assert.True(t, opts[0].Eligible)
	assert.True(t, opts[1].Eligible)
}

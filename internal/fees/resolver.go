package fees

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// AccountSource supplies the per-account fixed rates. A category missing from
// the map has no fixed rate.
type AccountSource interface {
	FixedRates(ctx context.Context, accountID string) (map[domain.Category]decimal.Decimal, error)
}

// BundleSource supplies the tiered fee schedule.
type BundleSource interface {
	Bundle(ctx context.Context, id string) (domain.FeeBundle, error)
	Bundles(ctx context.Context, category domain.Category) ([]domain.FeeBundle, error)
}

// Resolution is the fee percent that applies to one request.
type Resolution struct {
	Percent  decimal.Decimal
	BundleID *string
	Fixed    bool
}

// Option is a bundle as offered to the user for a given amount.
type Option struct {
	domain.FeeBundle
	Eligible bool `json:"eligible"`
}

// Resolver decides the fee percent: the account's fixed rate for the category,
// or else the selected bundle.
type Resolver struct {
	accounts AccountSource
	bundles  BundleSource
	logger   *zap.Logger
}

func NewResolver(accounts AccountSource, bundles BundleSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{accounts: accounts, bundles: bundles, logger: logger}
}

// Resolve returns the applicable fee percent for the request.
func (r *Resolver) Resolve(ctx context.Context, accountID string, category domain.Category, amount decimal.Decimal, bundleID *string) (Resolution, error) {
	fixed, ok, err := r.fixedRate(ctx, accountID, category)
	if err != nil {
		return Resolution{}, err
	}
	selected := bundleID != nil && *bundleID != ""

	if ok {
		if selected {
			return Resolution{}, ErrBundleNotAllowed
		}
		return Resolution{Percent: fixed, Fixed: true}, nil
	}

	if !selected {
		opts, err := r.options(ctx, category, amount)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{}, &SelectionRequiredError{Category: category, Options: opts}
	}

	bundle, err := r.bundles.Bundle(ctx, *bundleID)
	if err != nil {
		if errors.Is(err, ErrBundleNotFound) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("failed to load fee bundle: %w", err)
	}
	if bundle.Category != category {
		return Resolution{}, ErrBundleCategoryMismatch
	}
	if err := checkPercent(bundle.Percent); err != nil {
		r.logger.Error("fee bundle misconfigured", zap.String("bundle_id", bundle.ID), zap.String("percent", bundle.Percent.String()))
		return Resolution{}, err
	}
	if !bundle.Covers(amount) {
		opts, err := r.options(ctx, category, amount)
		if err != nil {
			return Resolution{}, err
		}
		eligible := make([]domain.FeeBundle, 0, len(opts))
		for _, o := range opts {
			if o.Eligible {
				eligible = append(eligible, o.FeeBundle)
			}
		}
		return Resolution{}, &IneligibleError{Bundle: bundle, Amount: amount, Eligible: eligible}
	}

	id := bundle.ID
	return Resolution{Percent: bundle.Percent, BundleID: &id}, nil
}

// Options lists the bundles a user may pick for the amount. It returns
// fixed=true and no options when the account has a fixed rate for the category.
func (r *Resolver) Options(ctx context.Context, accountID string, category domain.Category, amount decimal.Decimal) (opts []Option, fixed *decimal.Decimal, err error) {
	rate, ok, err := r.fixedRate(ctx, accountID, category)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		return nil, &rate, nil
	}
	opts, err = r.options(ctx, category, amount)
	return opts, nil, err
}

func (r *Resolver) fixedRate(ctx context.Context, accountID string, category domain.Category) (decimal.Decimal, bool, error) {
	rates, err := r.accounts.FixedRates(ctx, accountID)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("failed to load account fee rates: %w", err)
	}
	rate, ok := rates[category]
	if !ok {
		return decimal.Decimal{}, false, nil
	}
	if err := checkPercent(rate); err != nil {
		r.logger.Error("fixed fee rate misconfigured", zap.String("account_id", accountID), zap.String("category", string(category)))
		return decimal.Decimal{}, false, err
	}
	return rate, true, nil
}

func (r *Resolver) options(ctx context.Context, category domain.Category, amount decimal.Decimal) ([]Option, error) {
	bundles, err := r.bundles.Bundles(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee bundles: %w", err)
	}
	opts := make([]Option, 0, len(bundles))
	for _, b := range bundles {
		opts = append(opts, Option{FeeBundle: b, Eligible: b.Covers(amount)})
	}
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Percent.LessThan(opts[j].Percent) })
	return opts, nil
}

// checkPercent accepts 0 <= p < 100.
func checkPercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: %s", ErrInvalidPercent, p)
	}
	return nil
}

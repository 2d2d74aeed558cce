package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// ErrUnknownCurrency is returned when a symbol is not in the catalog.
var ErrUnknownCurrency = errors.New("unknown currency")

// Catalog is the read-only currency reference data source.
type Catalog interface {
	Lookup(ctx context.Context, symbol string) (domain.Currency, error)
	List(ctx context.Context) ([]domain.Currency, error)
}

// Normalize canonicalizes a currency symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Defaults returns the currencies seeded on a fresh install.
func Defaults() []domain.Currency {
	return []domain.Currency{
		{Symbol: "USD", Name: "US Dollar", Kind: domain.KindFiat, Icon: "usd.svg", Decimals: 2},
		{Symbol: "EUR", Name: "Euro", Kind: domain.KindFiat, Icon: "eur.svg", Decimals: 2},
		{Symbol: "KES", Name: "Kenyan Shilling", Kind: domain.KindFiat, Icon: "kes.svg", Decimals: 2},
		{Symbol: "NGN", Name: "Nigerian Naira", Kind: domain.KindFiat, Icon: "ngn.svg", Decimals: 2},
		{Symbol: "BTC", Name: "Bitcoin", Kind: domain.KindCrypto, Icon: "btc.svg", Decimals: 8},
		{Symbol: "ETH", Name: "Ethereum", Kind: domain.KindCrypto, Icon: "eth.svg", Decimals: 8},
		{Symbol: "USDT", Name: "Tether USD", Kind: domain.KindCrypto, Icon: "usdt.svg", Decimals: 6},
		{Symbol: "USDC", Name: "USD Coin", Kind: domain.KindCrypto, Icon: "usdc.svg", Decimals: 6},
	}
}

// Static is an in-memory catalog. It is safe for concurrent reads.
type Static struct {
	bySymbol map[string]domain.Currency
}

// NewStatic builds a catalog from the given currencies, or Defaults when none are given.
func NewStatic(currencies ...domain.Currency) *Static {
	if len(currencies) == 0 {
		currencies = Defaults()
	}
	s := &Static{bySymbol: make(map[string]domain.Currency, len(currencies))}
	for _, c := range currencies {
		c.Symbol = Normalize(c.Symbol)
		s.bySymbol[c.Symbol] = c
	}
	return s
}

func (s *Static) Lookup(_ context.Context, symbol string) (domain.Currency, error) {
	c, ok := s.bySymbol[Normalize(symbol)]
	if !ok {
		return domain.Currency{}, ErrUnknownCurrency
	}
	return c, nil
}

func (s *Static) List(_ context.Context) ([]domain.Currency, error) {
	out := make([]domain.Currency, 0, len(s.bySymbol))
	for _, c := range s.bySymbol {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

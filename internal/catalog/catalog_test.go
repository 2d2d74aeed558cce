package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

func TestStatic_LookupNormalizesSymbol(t *testing.T) {
	c := NewStatic()

	btc, err := c.Lookup(context.Background(), " btc ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, domain.KindCrypto, btc.Kind)
	assert.Equal(t, int32(8), btc.Decimals)
	assert.Equal(t, "0.00000001", btc.Unit().String())
}

func TestStatic_LookupUnknown(t *testing.T) {
	c := NewStatic()

	_, err := c.Lookup(context.Background(), "DOGE")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestStatic_ListSorted(t *testing.T) {
	c := NewStatic(
		domain.Currency{Symbol: "usdt", Kind: domain.KindCrypto, Decimals: 6},
		domain.Currency{Symbol: "EUR", Kind: domain.KindFiat, Decimals: 2},
	)

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "EUR", list[0].Symbol)
	assert.Equal(t, "USDT", list[1].Symbol)
}

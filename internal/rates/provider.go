package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// ratePrecision is the number of fractional digits kept when a rate is derived
// by division.
const ratePrecision = 18

// MarketData prices a crypto asset in a fiat currency. It is the only upstream
// the provider talks to; getUsdPrice(symbol) is Price(symbol, "USD").
type MarketData interface {
	Price(ctx context.Context, symbol, fiat string) (decimal.Decimal, error)
}

// Provider resolves conversion rates between any two catalog currencies.
type Provider struct {
	market  MarketData
	cache   Cache
	bridge  string
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Provider)

// WithBridge sets the crypto used to derive fiat-to-fiat rates.
func WithBridge(symbol string) Option {
	return func(p *Provider) { p.bridge = symbol }
}

// WithTimeout bounds each upstream lookup.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(market MarketData, cache Cache, opts ...Option) *Provider {
	p := &Provider{
		market:  market,
		cache:   cache,
		bridge:  "USDT",
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.cache == nil {
		p.cache = NewMemoryCache(5 * time.Minute)
	}
	return p
}

// Rate returns how many units of `to` one unit of `from` buys.
func (p *Provider) Rate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from.Symbol == to.Symbol {
		return decimal.NewFromInt(1), nil
	}

	switch {
	case from.Kind == domain.KindCrypto && to.Kind == domain.KindCrypto:
		// USD cross
		a, err := p.price(ctx, from.Symbol, "USD")
		if err != nil {
			return decimal.Decimal{}, err
		}
		b, err := p.price(ctx, to.Symbol, "USD")
		if err != nil {
			return decimal.Decimal{}, err
		}
		return a.DivRound(b, ratePrecision), nil

	case from.Kind == domain.KindCrypto && to.Kind == domain.KindFiat:
		return p.price(ctx, from.Symbol, to.Symbol)

	case from.Kind == domain.KindFiat && to.Kind == domain.KindCrypto:
		v, err := p.price(ctx, to.Symbol, from.Symbol)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromInt(1).DivRound(v, ratePrecision), nil

	case from.Kind == domain.KindFiat && to.Kind == domain.KindFiat:
		a, err := p.price(ctx, p.bridge, to.Symbol)
		if err != nil {
			return decimal.Decimal{}, err
		}
		b, err := p.price(ctx, p.bridge, from.Symbol)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return a.DivRound(b, ratePrecision), nil
	}

	return decimal.Decimal{}, fmt.Errorf("%w: unsupported currency kinds %s/%s", ErrNotFound, from.Kind, to.Kind)
}

func (p *Provider) price(ctx context.Context, symbol, fiat string) (decimal.Decimal, error) {
	if v, ok := p.cache.Get(ctx, symbol, fiat); ok {
		return v, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	v, err := p.market.Price(lookupCtx, symbol, fiat)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return decimal.Decimal{}, fmt.Errorf("price lookup %s/%s cancelled: %w", symbol, fiat, ctx.Err())
		case errors.Is(err, ErrUnavailable):
			// already classified
		case errors.Is(err, context.DeadlineExceeded):
			err = ErrTimeout
		default:
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		p.logger.Warn("price lookup failed", zap.String("symbol", symbol), zap.String("fiat", fiat), zap.Error(err))
		return decimal.Decimal{}, err
	}
	if !v.IsPositive() {
		p.logger.Warn("upstream returned non-positive price", zap.String("symbol", symbol), zap.String("fiat", fiat), zap.String("price", v.String()))
		return decimal.Decimal{}, fmt.Errorf("%w: non-positive price for %s/%s", ErrNotFound, symbol, fiat)
	}

	p.cache.Set(ctx, symbol, fiat, v)
	return v, nil
}

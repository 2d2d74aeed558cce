package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const DefaultMarketDataURL = "https://api.coingecko.com/api/v3"

// coinIDs maps catalog symbols to CoinGecko asset ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"USDC": "usd-coin",
	"SOL":  "solana",
	"BNB":  "binancecoin",
}

// CoinGecko is the MarketData client. Calls go through a circuit breaker so a
// failing upstream is short-circuited instead of holding quote requests.
type CoinGecko struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	ids     map[string]string
	logger  *zap.Logger
}

func NewCoinGecko(baseURL string, timeout time.Duration, logger *zap.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultMarketDataURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "market-data",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// an unknown symbol is a valid answer and a cancelled caller says
		// nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("market data circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		ids:     coinIDs,
		logger:  logger,
	}
}

// Price returns the price of one unit of symbol in fiat.
func (c *CoinGecko) Price(ctx context.Context, symbol, fiat string) (decimal.Decimal, error) {
	id, ok := c.ids[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no market mapping for %s", ErrNotFound, symbol)
	}
	vs := strings.ToLower(fiat)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, id, vs)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Decimal{}, fmt.Errorf("%w: market data circuit open", ErrUnavailable)
		}
		return decimal.Decimal{}, err
	}
	return out.(decimal.Decimal), nil
}

func (c *CoinGecko) fetch(ctx context.Context, id, vs string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return decimal.Decimal{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return decimal.Decimal{}, ErrTimeout
		}
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("%w: market data status %d", ErrUnavailable, resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return decimal.Decimal{}, ctx.Err()
		}
		return decimal.Decimal{}, fmt.Errorf("%w: malformed market data: %v", ErrUnavailable, err)
	}

	raw, ok := body[id][vs]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s quote for %s", ErrNotFound, vs, id)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: bad price %q", ErrUnavailable, raw)
	}
	return price, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

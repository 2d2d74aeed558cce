package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGecko_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64123.123456789}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL, time.Second, nil)
	p, err := c.Price(context.Background(), "btc", "USD")
	require.NoError(t, err)
	assert.Equal(t, "64123.123456789", p.String())
}

func TestCoinGecko_UnknownSymbol(t *testing.T) {
	c := NewCoinGecko("http://127.0.0.1:0", time.Second, nil)
	_, err := c.Price(context.Background(), "NOPE", "USD")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoinGecko_MissingQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL, time.Second, nil)
	_, err := c.Price(context.Background(), "BTC", "KES")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoinGecko_BreakerOpensOnFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL, time.Second, nil)
	for i := 0; i < 5; i++ {
		_, err := c.Price(context.Background(), "BTC", "USD")
		require.ErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.Price(context.Background(), "BTC", "USD")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits), "open breaker short-circuits")
}

func TestCoinGecko_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL, 20*time.Millisecond, nil)
	_, err := c.Price(context.Background(), "BTC", "USD")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCoinGecko_CancelledCallersDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL, time.Second, nil)
	for i := 0; i < 6; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		time.AfterFunc(5*time.Millisecond, cancel)
		_, err := c.Price(ctx, "BTC", "USD")
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrUnavailable)
		cancel()
	}

	p, err := c.Price(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, "60000", p.String())
}

package wallet

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger/ledgertest"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

// slowFees holds any request for amount 1 until its context is cancelled.
type slowFees struct {
	mu        sync.Mutex
	cancelled int
}

func (f *slowFees) Resolve(ctx context.Context, _ string, _ domain.Category, amount decimal.Decimal, _ *string) (fees.Resolution, error) {
	if amount.Equal(decimal.NewFromInt(1)) {
		<-ctx.Done()
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
		return fees.Resolution{}, ctx.Err()
	}
	return fees.Resolution{Percent: decimal.NewFromInt(1), Fixed: true}, nil
}

func dialLive(t *testing.T, feeResolver ledger.FeeResolver) (*websocket.Conn, *ledgertest.MemoryStore, QuoteStore) {
	t.Helper()

	store := ledgertest.NewMemoryStore()
	store.SetBalance("user-1", "BTC", "5", "0")
	engine := ledger.NewEngine(store, feeResolver, stubRates{"BTC/USD": "60000"}, catalog.NewStatic())
	quotes := NewMemoryQuoteStore()
	h := NewHandler(Deps{Engine: engine, Currencies: catalog.NewStatic(), Quotes: quotes})

	e := echo.New()
	h.Register(e, testSecret)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	token, err := middleware.SignToken(testSecret, "user-1", "user", time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/wallet/quotes/live?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, store, quotes
}

func liveBody(seq int, amount string) string {
	return `{"seq":` + decimal.NewFromInt(int64(seq)).String() +
		`,"request":{"category":"EXCHANGE","balance_source":"AVAILABLE","source_currency":"BTC","target_currency":"USD","amount":"` + amount + `"}}`
}

func TestLiveQuotes_DeliversQuote(t *testing.T) {
	ws, _, quotes := dialLive(t, &slowFees{})

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(liveBody(7, "0.5"))))

	var frame liveFrame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, uint64(7), frame.Seq)
	require.NotNil(t, frame.Quote)
	assert.True(t, frame.Quote.TargetAmount.Equal(decimal.RequireFromString("29700")))

	_, err := quotes.Load(context.Background(), "user-1", frame.Quote.ID)
	assert.NoError(t, err, "live quotes can be committed")
}

func TestLiveQuotes_ErrorFrame(t *testing.T) {
	ws, _, _ := dialLive(t, &slowFees{})

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(liveBody(1, "9"))))

	var frame liveFrame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Nil(t, frame.Quote)
	assert.Equal(t, codeInsufficientBalance, frame.Error["code"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, codeValidation, frame.Error["code"])
}

func TestLiveQuotes_OnlyLatestAnswered(t *testing.T) {
	slow := &slowFees{}
	ws, _, _ := dialLive(t, slow)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(liveBody(1, "1"))))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(liveBody(2, "0.5"))))

	var frame liveFrame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, uint64(2), frame.Seq)
	require.NotNil(t, frame.Quote)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	err := ws.ReadJSON(&frame)
	require.Error(t, err, "superseded request must not be answered")

	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.Equal(t, 1, slow.cancelled)
}

package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
	"github.com/sudo-init-do/exchange-ledger/internal/rates"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveRequest is one client frame. Seq is echoed back; the server assigns
// one when the client leaves it out.
type liveRequest struct {
	Seq     uint64                  `json:"seq,omitempty"`
	Request ledger.OperationRequest `json:"request"`
}

type liveFrame struct {
	Seq   uint64        `json:"seq"`
	Quote *ledger.Quote `json:"quote,omitempty"`
	Error echo.Map      `json:"error,omitempty"`
}

// liveConn serializes writes; gorilla allows one concurrent writer.
type liveConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (l *liveConn) send(f liveFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ws.WriteMessage(websocket.TextMessage, payload)
}

// subjectKey groups requests that supersede each other: the same pair on
// the same connection.
func subjectKey(connID, uid string, req ledger.OperationRequest) string {
	target := catalog.Normalize(req.TargetCurrency)
	if target == "" {
		target = string(req.Category)
	}
	return fmt.Sprintf("%s:%s:%s->%s", connID, uid, catalog.Normalize(req.SourceCurrency), target)
}

// LiveQuotes streams quotes as the user edits a request. Every frame starts
// a fresh quote; an older in-flight quote for the same pair is cancelled and
// its result is never sent.
func (h *Handler) LiveQuotes(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &liveConn{ws: ws}
	connID := uuid.New().String()

	ctx, cancel := context.WithCancel(c.Request().Context())
	var (
		wg       sync.WaitGroup
		subjects = make(map[string]struct{})
	)
	defer func() {
		cancel()
		wg.Wait()
		for s := range subjects {
			h.live.Forget(s)
		}
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		var in liveRequest
		if err := json.Unmarshal(data, &in); err != nil {
			_ = conn.send(liveFrame{Seq: in.Seq, Error: echo.Map{"error": "invalid frame", "code": codeValidation}})
			continue
		}
		in.Request.AccountID = uid

		name := subjectKey(connID, uid, in.Request)
		subjects[name] = struct{}{}
		reqCtx, ticket := h.live.Begin(ctx, name)
		if in.Seq == 0 {
			in.Seq = ticket.Seq()
		}

		wg.Add(1)
		go func(in liveRequest) {
			defer wg.Done()
			defer ticket.Done()
			h.liveQuote(reqCtx, conn, ticket, in)
		}(in)
	}
}

func (h *Handler) liveQuote(ctx context.Context, conn *liveConn, ticket *rates.Ticket, in liveRequest) {
	q, err := h.engine.Quote(ctx, in.Request)
	if err == nil {
		err = h.quotes.Save(ctx, q)
	}

	applyErr := ticket.Apply(func() error {
		frame := liveFrame{Seq: in.Seq}
		if err != nil {
			status, body := errorBody(err)
			if status == http.StatusInternalServerError {
				h.logger.Error("live quote failed", zap.Uint64("seq", in.Seq), zap.Error(err))
			}
			frame.Error = body
		} else {
			frame.Quote = &q
		}
		return conn.send(frame)
	})
	if applyErr != nil && !errors.Is(applyErr, rates.ErrSuperseded) {
		h.logger.Debug("live quote not delivered", zap.Uint64("seq", in.Seq), zap.Error(applyErr))
	}
}

package wallet

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": codeValidation})
}

// CreateQuote prices an exchange or withdrawal and keeps the quote until it
// expires so it can be committed by id.
func (h *Handler) CreateQuote(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req ledger.OperationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.AccountID = uid

	ctx := c.Request().Context()
	q, err := h.engine.Quote(ctx, req)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.quotes.Save(ctx, q); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"quote": q})
}

type commitRequest struct {
	QuoteID string `json:"quote_id"`
}

// Commit applies a previously issued quote. Repeating the call returns the
// same outcome.
func (h *Handler) Commit(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	var body commitRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.QuoteID == "" {
		return badRequest(c, "quote_id is required")
	}

	ctx := c.Request().Context()
	q, err := h.quotes.Load(ctx, uid, body.QuoteID)
	if errors.Is(err, ErrQuoteNotFound) {
		return h.settled(c, uid, body.QuoteID)
	}
	if err != nil {
		return h.respondError(c, err)
	}

	op, err := h.engine.Commit(ctx, q)
	if err != nil {
		h.logger.Info("commit rejected",
			zap.String("quote_id", q.ID),
			zap.String("account_id", uid),
			zap.Error(err))
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"operation": op})
}

// settled answers a commit whose quote left the store: the operation may
// already be recorded from an earlier attempt.
func (h *Handler) settled(c echo.Context, uid, quoteID string) error {
	op, err := h.engine.Operation(c.Request().Context(), quoteID)
	if err != nil || op.AccountID != uid {
		return h.respondError(c, ErrQuoteNotFound)
	}

	switch op.Status {
	case domain.StatusCommitted:
		return c.JSON(http.StatusOK, echo.Map{"operation": op})
	case domain.StatusFailed:
		if op.FailureReason == ledger.ErrQuoteExpired.Error() {
			return h.respondError(c, ledger.ErrQuoteExpired)
		}
		return h.respondError(c, &ledger.StaleQuoteError{QuoteID: op.ID, Reason: op.FailureReason})
	}
	return h.respondError(c, ErrQuoteNotFound)
}

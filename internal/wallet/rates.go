package wallet

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
)

// ListCurrencies returns the currency catalog.
func (h *Handler) ListCurrencies(c echo.Context) error {
	list, err := h.currencies.List(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"currencies": list})
}

// GetRate returns how many units of ?to= one unit of ?from= buys.
func (h *Handler) GetRate(c echo.Context) error {
	ctx := c.Request().Context()

	from, err := h.currencies.Lookup(ctx, c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "unknown currency in from")
	}
	to, err := h.currencies.Lookup(ctx, c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "unknown currency in to")
	}

	rate, err := h.rates.Rate(ctx, from, to)
	if err != nil {
		h.logger.Warn("rate lookup failed",
			zap.String("from", from.Symbol),
			zap.String("to", to.Symbol),
			zap.Error(err))
		return h.respondError(c, fmt.Errorf("%w: %w", ledger.ErrRateUnavailable, err))
	}
	return c.JSON(http.StatusOK, echo.Map{"from": from.Symbol, "to": to.Symbol, "rate": rate})
}

package wallet

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

// GetFeeOptions lists the fee bundles the user can choose for an amount, or
// the fixed rate that applies instead.
func (h *Handler) GetFeeOptions(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	category := domain.Category(strings.ToUpper(c.QueryParam("category")))
	if !category.Valid() {
		return badRequest(c, "unknown category")
	}
	amount, err := decimal.NewFromString(c.QueryParam("amount"))
	if err != nil || !amount.IsPositive() {
		return badRequest(c, "amount must be a positive decimal")
	}

	ctx := c.Request().Context()
	var cur *domain.Currency
	if sym := c.QueryParam("currency"); sym != "" {
		found, err := h.currencies.Lookup(ctx, sym)
		if err != nil {
			return badRequest(c, "unknown currency")
		}
		cur = &found
	}

	opts, fixed, err := h.feeOptions.Options(ctx, uid, category, amount)
	if err != nil {
		return h.respondError(c, err)
	}
	if opts == nil {
		opts = []fees.Option{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"category":   category,
		"currency":   cur,
		"amount":     amount,
		"fixed_rate": fixed,
		"options":    opts,
	})
}

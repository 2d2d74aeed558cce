package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

// GetBalances returns every asset balance of the authenticated user.
func (h *Handler) GetBalances(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	bals, err := h.engine.Balances(c.Request().Context(), uid)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "balances": bals})
}

// GetBalance returns one currency's balance. A currency the user never held
// reads as zero.
func (h *Handler) GetBalance(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	bal, err := h.engine.Balance(c.Request().Context(), uid, c.Param("currency"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}

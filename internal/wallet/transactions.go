package wallet

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

// operationFilter reads ?status=&limit=&offset=.
func operationFilter(c echo.Context, accountID string) (ledger.OperationFilter, error) {
	f := ledger.OperationFilter{AccountID: accountID}

	switch s := domain.OperationStatus(c.QueryParam("status")); s {
	case "":
	case domain.StatusCommitted, domain.StatusFailed:
		f.Status = s
	default:
		return f, errors.New("status must be COMMITTED or FAILED")
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

// ListOperations returns the authenticated user's ledger history, newest first.
func (h *Handler) ListOperations(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	return h.listOperations(c, uid)
}

func (h *Handler) listOperations(c echo.Context, accountID string) error {
	f, err := operationFilter(c, accountID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ops, err := h.engine.Operations(c.Request().Context(), f)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"operations": ops})
}

// GetOperation returns one of the user's operations.
func (h *Handler) GetOperation(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	op, err := h.engine.Operation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	if op.AccountID != uid {
		return h.respondError(c, ledger.ErrOperationNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{"operation": op})
}

package wallet

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

var hundred = decimal.NewFromInt(100)

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThan(hundred)
}

// AdminListOperations returns ledger operations across all accounts.
func (h *Handler) AdminListOperations(c echo.Context) error {
	return h.listOperations(c, "")
}

// AdminUserOperations returns one account's ledger operations.
func (h *Handler) AdminUserOperations(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return badRequest(c, "user ID is required")
	}
	return h.listOperations(c, userID)
}

type feeRateRequest struct {
	Percent *decimal.Decimal `json:"percent"`
}

// AdminSetFeeRate assigns an account a fixed fee percent for a category. A
// null percent removes it so the account selects bundles again.
func (h *Handler) AdminSetFeeRate(c echo.Context) error {
	accountID := c.Param("id")
	category := domain.Category(strings.ToUpper(c.Param("category")))
	if accountID == "" || !category.Valid() {
		return badRequest(c, "account id and a known category are required")
	}

	var body feeRateRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	if body.Percent == nil {
		if err := h.feeAdmin.ClearFixedRate(ctx, accountID, category); err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"account_id": accountID, "category": category, "percent": nil})
	}
	if !validPercent(*body.Percent) {
		return badRequest(c, "percent must be at least 0 and below 100")
	}
	if err := h.feeAdmin.SetFixedRate(ctx, accountID, category, *body.Percent); err != nil {
		return h.respondError(c, err)
	}

	adminID, _ := middleware.UserID(c)
	h.logger.Info("fixed fee rate set",
		zap.String("admin_id", adminID),
		zap.String("account_id", accountID),
		zap.String("category", string(category)),
		zap.String("percent", body.Percent.String()))
	return c.JSON(http.StatusOK, echo.Map{"account_id": accountID, "category": category, "percent": body.Percent})
}

// AdminSaveBundle creates or replaces a fee bundle.
func (h *Handler) AdminSaveBundle(c echo.Context) error {
	var b domain.FeeBundle
	if err := c.Bind(&b); err != nil {
		return badRequest(c, "invalid request body")
	}
	b.Category = domain.Category(strings.ToUpper(string(b.Category)))

	switch {
	case strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "":
		return badRequest(c, "id and name are required")
	case !b.Category.Valid():
		return badRequest(c, "unknown category")
	case !validPercent(b.Percent):
		return badRequest(c, "percent must be at least 0 and below 100")
	case b.RangeMin != nil && b.RangeMin.IsNegative():
		return badRequest(c, "range_min cannot be negative")
	case b.RangeMin != nil && b.RangeMax != nil && b.RangeMin.GreaterThan(*b.RangeMax):
		return badRequest(c, "range_min cannot exceed range_max")
	}

	if err := h.feeAdmin.UpsertBundle(c.Request().Context(), b); err != nil {
		return h.respondError(c, err)
	}
	h.logger.Info("fee bundle saved", zap.String("bundle_id", b.ID), zap.String("category", string(b.Category)))
	return c.JSON(http.StatusCreated, echo.Map{"bundle": b})
}

// AdminListBundles lists active bundles, optionally for one ?category=.
func (h *Handler) AdminListBundles(c echo.Context) error {
	category := domain.Category(strings.ToUpper(c.QueryParam("category")))
	if category != "" && !category.Valid() {
		return badRequest(c, "unknown category")
	}

	bundles, err := h.feeAdmin.Bundles(c.Request().Context(), category)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bundles": bundles})
}

// AdminDeactivateBundle withdraws a bundle from selection. Recorded
// operations keep their bundle id.
func (h *Handler) AdminDeactivateBundle(c echo.Context) error {
	id := c.Param("id")
	if err := h.feeAdmin.DeactivateBundle(c.Request().Context(), id); err != nil {
		if errors.Is(err, fees.ErrBundleNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "fee bundle not found", "code": codeNotFound})
		}
		return h.respondError(c, err)
	}
	h.logger.Info("fee bundle deactivated", zap.String("bundle_id", id))
	return c.NoContent(http.StatusNoContent)
}

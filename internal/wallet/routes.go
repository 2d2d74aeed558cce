package wallet

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/exchange-ledger/internal/middleware"
)

// Register mounts the public, wallet and admin routes.
func (h *Handler) Register(e *echo.Echo, jwtSecret []byte) {
	auth := middleware.JWT(jwtSecret)

	e.GET("/currencies", h.ListCurrencies)
	e.GET("/rates", h.GetRate)

	w := e.Group("/wallet")
	w.Use(auth)
	w.GET("/balances", h.GetBalances)
	w.GET("/balances/:currency", h.GetBalance)
	w.GET("/fee-options", h.GetFeeOptions)
	w.POST("/quote", h.CreateQuote)
	w.POST("/commit", h.Commit)
	w.GET("/operations", h.ListOperations)
	w.GET("/operations/:id", h.GetOperation)
	w.GET("/quotes/live", h.LiveQuotes)

	admin := e.Group("/admin")
	admin.Use(auth)
	admin.Use(middleware.RequireRoles("admin"))
	admin.GET("/operations", h.AdminListOperations)
	admin.GET("/operations/user/:id", h.AdminUserOperations)
	admin.PUT("/accounts/:id/fee-rates/:category", h.AdminSetFeeRate)
	admin.POST("/fee-bundles", h.AdminSaveBundle)
	admin.GET("/fee-bundles", h.AdminListBundles)
	admin.DELETE("/fee-bundles/:id", h.AdminDeactivateBundle)
}

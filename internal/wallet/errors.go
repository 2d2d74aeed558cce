package wallet

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/rates"
)

// Error codes returned next to the message so clients can branch without
// parsing text.
const (
	codeValidation          = "VALIDATION"
	codeInsufficientBalance = "INSUFFICIENT_BALANCE"
	codeBundleIneligible    = "BUNDLE_INELIGIBLE"
	codeSelectionRequired   = "BUNDLE_SELECTION_REQUIRED"
	codeRateUnavailable     = "RATE_UNAVAILABLE"
	codeStaleQuote          = "STALE_QUOTE"
	codeConflict            = "CONCURRENCY_CONFLICT"
	codeSuperseded          = "SUPERSEDED"
	codeNotFound            = "NOT_FOUND"
	codeInternal            = "INTERNAL"
)

// errorBody renders err as the JSON error payload and picks its status.
func errorBody(err error) (int, echo.Map) {
	var (
		insufficient *ledger.InsufficientBalanceError
		ineligible   *fees.IneligibleError
		selection    *fees.SelectionRequiredError
		stale        *ledger.StaleQuoteError
	)

	switch {
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, fees.ErrBundleNotFound),
		errors.Is(err, fees.ErrBundleCategoryMismatch),
		errors.Is(err, fees.ErrBundleNotAllowed):
		return http.StatusBadRequest, echo.Map{"error": err.Error(), "code": codeValidation}

	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, echo.Map{
			"error":              "insufficient balance",
			"code":               codeInsufficientBalance,
			"balance":            insufficient.Balance,
			"balance_source":     insufficient.Source,
			"required_available": insufficient.RequiredAvailable,
			"required_locked":    insufficient.RequiredLocked,
			"max_allowable":      insufficient.MaxAllowable,
		}

	case errors.As(err, &ineligible):
		return http.StatusUnprocessableEntity, echo.Map{
			"error":     "selected fee bundle does not cover the amount",
			"code":      codeBundleIneligible,
			"bundle_id": ineligible.Bundle.ID,
			"range_min": ineligible.Bundle.RangeMin,
			"range_max": ineligible.Bundle.RangeMax,
			"eligible":  ineligible.Eligible,
		}

	case errors.As(err, &selection):
		return http.StatusUnprocessableEntity, echo.Map{
			"error":    "select a fee bundle",
			"code":     codeSelectionRequired,
			"category": selection.Category,
			"options":  selection.Options,
		}

	case errors.Is(err, ledger.ErrRateUnavailable), errors.Is(err, rates.ErrUnavailable):
		return http.StatusServiceUnavailable, echo.Map{"error": "conversion rate unavailable, try again", "code": codeRateUnavailable}

	case errors.As(err, &stale):
		body := echo.Map{"error": err.Error(), "code": codeStaleQuote}
		if stale.Balance != nil {
			body["balance"] = stale.Balance
		}
		return http.StatusConflict, body

	case errors.Is(err, ledger.ErrStaleQuote), errors.Is(err, ErrQuoteNotFound):
		return http.StatusConflict, echo.Map{"error": err.Error(), "code": codeStaleQuote}

	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return http.StatusConflict, echo.Map{"error": err.Error(), "code": codeConflict}

	case errors.Is(err, rates.ErrSuperseded), errors.Is(err, context.Canceled):
		return http.StatusConflict, echo.Map{"error": "superseded by a newer request", "code": codeSuperseded}

	case errors.Is(err, ledger.ErrOperationNotFound):
		return http.StatusNotFound, echo.Map{"error": "operation not found", "code": codeNotFound}
	}
	return http.StatusInternalServerError, echo.Map{"error": "internal error", "code": codeInternal}
}

func (h *Handler) respondError(c echo.Context, err error) error {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(status, body)
}

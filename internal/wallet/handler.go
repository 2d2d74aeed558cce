package wallet

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/catalog"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/rates"
)

// FeeOptions lists the bundles an account may pick.
type FeeOptions interface {
	Options(ctx context.Context, accountID string, category domain.Category, amount decimal.Decimal) ([]fees.Option, *decimal.Decimal, error)
}

// FeeAdmin manages the fee schedule.
type FeeAdmin interface {
	SetFixedRate(ctx context.Context, accountID string, category domain.Category, percent decimal.Decimal) error
	ClearFixedRate(ctx context.Context, accountID string, category domain.Category) error
	Bundles(ctx context.Context, category domain.Category) ([]domain.FeeBundle, error)
	UpsertBundle(ctx context.Context, b domain.FeeBundle) error
	DeactivateBundle(ctx context.Context, id string) error
}

// Handler serves the wallet and admin ledger endpoints.
type Handler struct {
	engine     *ledger.Engine
	feeOptions FeeOptions
	feeAdmin   FeeAdmin
	currencies catalog.Catalog
	rates      ledger.RateSource
	quotes     QuoteStore
	live       *rates.Sequencer
	logger     *zap.Logger
}

// Deps groups what NewHandler needs.
type Deps struct {
	Engine     *ledger.Engine
	FeeOptions FeeOptions
	FeeAdmin   FeeAdmin
	Currencies catalog.Catalog
	Rates      ledger.RateSource
	Quotes     QuoteStore
	Sequencer  *rates.Sequencer
	Logger     *zap.Logger
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		engine:     d.Engine,
		feeOptions: d.FeeOptions,
		feeAdmin:   d.FeeAdmin,
		currencies: d.Currencies,
		rates:      d.Rates,
		quotes:     d.Quotes,
		live:       d.Sequencer,
		logger:     d.Logger,
	}
	if h.quotes == nil {
		h.quotes = NewMemoryQuoteStore()
	}
	if h.live == nil {
		h.live = rates.NewSequencer()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized or invalid user"})
}

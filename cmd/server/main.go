package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/alerts"
	"github.com/sudo-init-do/exchange-ledger/internal/config"
	"github.com/sudo-init-do/exchange-ledger/internal/db"
	"github.com/sudo-init-do/exchange-ledger/internal/fees"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
	"github.com/sudo-init-do/exchange-ledger/internal/logging"
	"github.com/sudo-init-do/exchange-ledger/internal/rates"
	"github.com/sudo-init-do/exchange-ledger/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection and schema
	pool, err := db.Init(ctx, cfg.DB, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer pool.Close()

	var rdb redis.UniversalClient
	if cfg.RateCache == "redis" || cfg.QuoteStore == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer func() { _ = rdb.Close() }()
	}

	var cache rates.Cache = rates.NewMemoryCache(cfg.RateCacheTTL)
	if cfg.RateCache == "redis" {
		cache = rates.NewRedisCache(rdb, cfg.RateCacheTTL, logger)
	}
	provider := rates.NewProvider(
		rates.NewCoinGecko(cfg.MarketDataURL, cfg.MarketDataTimeout, logger),
		cache,
		rates.WithBridge(cfg.BridgeSymbol),
		rates.WithTimeout(cfg.MarketDataTimeout),
		rates.WithLogger(logger),
	)

	var quotes wallet.QuoteStore = wallet.NewMemoryQuoteStore()
	if cfg.QuoteStore == "redis" {
		quotes = wallet.NewRedisQuoteStore(rdb)
	}

	feeRepo := db.NewFeeRepository(pool)
	currencies := db.NewCurrencyRepository(pool)
	resolver := fees.NewResolver(feeRepo, feeRepo, logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer func() { _ = asynqClient.Close() }()

	engine := ledger.NewEngine(db.NewLedgerStore(pool, logger), resolver, provider, currencies,
		ledger.WithQuoteTTL(cfg.QuoteTTL),
		ledger.WithCommitRetry(cfg.CommitMaxAttempts, cfg.CommitRetryBase),
		ledger.WithEvents(alerts.NewPublisher(asynqClient)),
		ledger.WithLogger(logger),
	)

	h := wallet.NewHandler(wallet.Deps{
		Engine:     engine,
		FeeOptions: resolver,
		FeeAdmin:   feeRepo,
		Currencies: currencies,
		Rates:      provider,
		Quotes:     quotes,
		Sequencer:  rates.NewSequencer(),
		Logger:     logger,
	})

	e := echo.New()
	e.HideBanner = true

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	h.Register(e, []byte(cfg.JWTSecret))

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	logger.Info("ledger api started", zap.String("port", cfg.Port))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

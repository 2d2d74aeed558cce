package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/exchange-ledger/internal/alerts"
	"github.com/sudo-init-do/exchange-ledger/internal/config"
	"github.com/sudo-init-do/exchange-ledger/internal/logging"
)

// worker consumes ledger operation events published by the API.
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

	w := alerts.NewWorker(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password}, logger)
	if err := w.Start(); err != nil {
		logger.Fatal("worker start failed", zap.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down worker")
	w.Shutdown()
}

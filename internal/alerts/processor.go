package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker consumes ledger events.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker wires the task handlers onto an asynq server.
func NewWorker(opt asynq.RedisConnOpt, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{logger: logger, mux: asynq.NewServeMux()}
	w.mux.HandleFunc(TaskOperationCommitted, w.handleOperationCommitted)
	w.mux.HandleFunc(TaskOperationFailed, w.handleOperationFailed)

	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueLedger: 10,
			QueueAlerts: 5,
		},
		Logger: logger.Sugar(),
	})
	return w
}

// Start runs the server in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start asynq worker: %w", err)
	}
	w.logger.Info("asynq worker started")
	return nil
}

// Shutdown stops the server, waiting for in-flight tasks.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func decodeOperation(t *asynq.Task) (OperationPayload, error) {
	var p OperationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// malformed payloads will never succeed
		return p, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return p, nil
}

func (w *Worker) handleOperationCommitted(_ context.Context, t *asynq.Task) error {
	p, err := decodeOperation(t)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("operation_id", p.OperationID),
		zap.String("account_id", p.AccountID),
		zap.String("category", p.Category),
		zap.String("currency", p.SourceCurrency),
		zap.String("total_debit", p.TotalDebit),
		zap.String("net_amount", p.NetAmount),
	}
	if p.TargetCurrency != "" {
		fields = append(fields, zap.String("target_currency", p.TargetCurrency), zap.String("target_amount", p.TargetAmount))
	}
	w.logger.Info("[notify] operation committed", fields...)
	return nil
}

func (w *Worker) handleOperationFailed(_ context.Context, t *asynq.Task) error {
	p, err := decodeOperation(t)
	if err != nil {
		return err
	}
	w.logger.Warn("[notify] operation failed",
		zap.String("operation_id", p.OperationID),
		zap.String("account_id", p.AccountID),
		zap.String("category", p.Category),
		zap.String("reason", p.FailureReason))
	return nil
}

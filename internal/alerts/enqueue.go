package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// enqueuer is the part of *asynq.Client the publisher uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher turns terminal ledger operations into asynq tasks.
type Publisher struct {
	client enqueuer
}

func NewPublisher(client *asynq.Client) *Publisher {
	return &Publisher{client: client}
}

// OperationCommitted schedules the committed-operation event.
func (p *Publisher) OperationCommitted(ctx context.Context, op domain.LedgerOperation) error {
	return p.enqueue(ctx, TaskOperationCommitted, op, asynq.Queue(QueueLedger))
}

// OperationFailed schedules the failed-operation event on the alerts queue.
func (p *Publisher) OperationFailed(ctx context.Context, op domain.LedgerOperation) error {
	return p.enqueue(ctx, TaskOperationFailed, op, asynq.Queue(QueueAlerts))
}

func (p *Publisher) enqueue(ctx context.Context, taskType string, op domain.LedgerOperation, opts ...asynq.Option) error {
	b, err := json.Marshal(newOperationPayload(op))
	if err != nil {
		return err
	}
	// the operation id makes redelivery of the same event a no-op
	opts = append(opts, asynq.TaskID(taskType+":"+op.ID), asynq.MaxRetry(5))
	if _, err := p.client.EnqueueContext(ctx, asynq.NewTask(taskType, b), opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

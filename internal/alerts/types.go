package alerts

import (
	"time"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// Task type constants
const (
	TaskOperationCommitted = "ledger:operation_committed"
	TaskOperationFailed    = "ledger:operation_failed"
)

// Queue names
const (
	QueueLedger = "ledger"
	QueueAlerts = "alerts"
)

// OperationPayload is the task body for both terminal operation events.
// Amounts travel as decimal strings.
type OperationPayload struct {
	OperationID     string    `json:"operation_id"`
	AccountID       string    `json:"account_id"`
	Category        string    `json:"category"`
	BalanceSource   string    `json:"balance_source"`
	SourceCurrency  string    `json:"source_currency"`
	TargetCurrency  string    `json:"target_currency,omitempty"`
	RequestedAmount string    `json:"requested_amount"`
	FeeAmount       string    `json:"fee_amount"`
	NetAmount       string    `json:"net_amount"`
	TotalDebit      string    `json:"total_debit"`
	TargetAmount    string    `json:"target_amount,omitempty"`
	Status          string    `json:"status"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func newOperationPayload(op domain.LedgerOperation) OperationPayload {
	p := OperationPayload{
		OperationID:     op.ID,
		AccountID:       op.AccountID,
		Category:        string(op.Category),
		BalanceSource:   string(op.BalanceSource),
		SourceCurrency:  op.SourceCurrency,
		RequestedAmount: op.RequestedAmount.String(),
		FeeAmount:       op.FeeAmount.String(),
		NetAmount:       op.NetAmount.String(),
		TotalDebit:      op.TotalDebit.String(),
		Status:          string(op.Status),
		FailureReason:   op.FailureReason,
		OccurredAt:      op.CreatedAt,
	}
	if op.TargetCurrency != nil {
		p.TargetCurrency = *op.TargetCurrency
	}
	if op.TargetAmount != nil {
		p.TargetAmount = op.TargetAmount.String()
	}
	return p
}

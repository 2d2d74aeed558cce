package ledger

import (
	"context"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// Tx is the unit of work a commit runs in. Writes become visible only if the
// surrounding RunInTx returns nil.
type Tx interface {
	// ReadBalance returns a zero balance with Version 0 when no row exists.
	ReadBalance(ctx context.Context, accountID, currency string) (domain.AssetBalance, error)
	// WriteBalanceIfVersionMatches stores bal with Version expected+1, or
	// returns ErrVersionConflict if the stored version moved.
	WriteBalanceIfVersionMatches(ctx context.Context, bal domain.AssetBalance, expected int64) error
	// AppendLedgerOperation returns ErrDuplicateOperation if op.ID exists.
	AppendLedgerOperation(ctx context.Context, op domain.LedgerOperation) error
}

// OperationFilter narrows ListOperations. An empty AccountID lists all accounts.
type OperationFilter struct {
	AccountID string
	Status    domain.OperationStatus
	Limit     int
	Offset    int
}

// Store is the persistence the engine needs.
type Store interface {
	ReadBalance(ctx context.Context, accountID, currency string) (domain.AssetBalance, error)
	ListBalances(ctx context.Context, accountID string) ([]domain.AssetBalance, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOperation(ctx context.Context, id string) (domain.LedgerOperation, error)
	AppendOperation(ctx context.Context, op domain.LedgerOperation) error
	ListOperations(ctx context.Context, f OperationFilter) ([]domain.LedgerOperation, error)
}

// EventPublisher is notified after an operation reaches a terminal state.
type EventPublisher interface {
	OperationCommitted(ctx context.Context, op domain.LedgerOperation) error
	OperationFailed(ctx context.Context, op domain.LedgerOperation) error
}

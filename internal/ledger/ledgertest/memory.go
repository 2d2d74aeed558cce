// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/domain"
	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
)

// MemoryStore is a versioned store with optimistic transactions. Writes are
// staged per transaction and validated against current versions on commit.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[string]domain.AssetBalance
	ops       map[string]domain.LedgerOperation
	order     []string
	conflicts int
	commits   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]domain.AssetBalance),
		ops:      make(map[string]domain.LedgerOperation),
	}
}

func key(accountID, currency string) string { return accountID + "|" + currency }

// SetBalance seeds a balance, bumping its version.
func (s *MemoryStore) SetBalance(accountID, currency, available, locked string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(accountID, currency)
	b := s.balances[k]
	b.AccountID = accountID
	b.Currency = currency
	b.Available = decimal.RequireFromString(available)
	b.Locked = decimal.RequireFromString(locked)
	b.Version++
	b.UpdatedAt = time.Now()
	s.balances[k] = b
}

// InjectConflicts makes the next n transaction commits fail with
// ledger.ErrVersionConflict.
func (s *MemoryStore) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// Commits returns the number of transactions that committed.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MemoryStore) read(accountID, currency string) domain.AssetBalance {
	if b, ok := s.balances[key(accountID, currency)]; ok {
		return b
	}
	return domain.AssetBalance{AccountID: accountID, Currency: currency}
}

func (s *MemoryStore) ReadBalance(_ context.Context, accountID, currency string) (domain.AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(accountID, currency), nil
}

func (s *MemoryStore) ListBalances(_ context.Context, accountID string) ([]domain.AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.AssetBalance{}
	for _, b := range s.balances {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

type stagedWrite struct {
	bal      domain.AssetBalance
	expected int64
}

type memTx struct {
	s      *MemoryStore
	writes map[string]stagedWrite
	ops    []domain.LedgerOperation
}

func (t *memTx) ReadBalance(_ context.Context, accountID, currency string) (domain.AssetBalance, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.read(accountID, currency), nil
}

func (t *memTx) WriteBalanceIfVersionMatches(_ context.Context, bal domain.AssetBalance, expected int64) error {
	if bal.Available.IsNegative() || bal.Locked.IsNegative() {
		return fmt.Errorf("ledgertest: negative balance for %s %s", bal.AccountID, bal.Currency)
	}
	t.writes[key(bal.AccountID, bal.Currency)] = stagedWrite{bal: bal, expected: expected}
	return nil
}

func (t *memTx) AppendLedgerOperation(_ context.Context, op domain.LedgerOperation) error {
	t.ops = append(t.ops, op)
	return nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx := &memTx{s: s, writes: make(map[string]stagedWrite)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts > 0 {
		s.conflicts--
		return ledger.ErrVersionConflict
	}
	for k, w := range tx.writes {
		if s.balances[k].Version != w.expected {
			return ledger.ErrVersionConflict
		}
	}
	for _, op := range tx.ops {
		if _, ok := s.ops[op.ID]; ok {
			return ledger.ErrDuplicateOperation
		}
	}

	now := time.Now()
	for k, w := range tx.writes {
		b := w.bal
		b.Version = w.expected + 1
		b.UpdatedAt = now
		s.balances[k] = b
	}
	for _, op := range tx.ops {
		s.ops[op.ID] = op
		s.order = append(s.order, op.ID)
	}
	s.commits++
	return nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (domain.LedgerOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return domain.LedgerOperation{}, ledger.ErrOperationNotFound
	}
	return op, nil
}

func (s *MemoryStore) AppendOperation(_ context.Context, op domain.LedgerOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[op.ID]; ok {
		return ledger.ErrDuplicateOperation
	}
	s.ops[op.ID] = op
	s.order = append(s.order, op.ID)
	return nil
}

// ListOperations returns newest first.
func (s *MemoryStore) ListOperations(_ context.Context, f ledger.OperationFilter) ([]domain.LedgerOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.LedgerOperation{}
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		op := s.ops[s.order[i]]
		if f.AccountID != "" && op.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, op)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

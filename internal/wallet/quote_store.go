package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/exchange-ledger/internal/ledger"
)

// ErrQuoteNotFound means the quote never existed, expired, or belongs to
// another account.
var ErrQuoteNotFound = errors.New("quote not found or expired")

// QuoteStore keeps issued quotes until they expire so a commit can refer to
// them by id.
type QuoteStore interface {
	Save(ctx context.Context, q ledger.Quote) error
	Load(ctx context.Context, accountID, id string) (ledger.Quote, error)
}

// MemoryQuoteStore is the single-instance store.
type MemoryQuoteStore struct {
	mu     sync.Mutex
	now    func() time.Time
	quotes map[string]ledger.Quote
}

func NewMemoryQuoteStore() *MemoryQuoteStore {
	return &MemoryQuoteStore{now: time.Now, quotes: make(map[string]ledger.Quote)}
}

func (s *MemoryQuoteStore) Save(_ context.Context, q ledger.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, old := range s.quotes {
		if !now.Before(old.ExpiresAt) {
			delete(s.quotes, id)
		}
	}
	s.quotes[q.ID] = q
	return nil
}

func (s *MemoryQuoteStore) Load(_ context.Context, accountID, id string) (ledger.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[id]
	if !ok || q.AccountID != accountID {
		return ledger.Quote{}, ErrQuoteNotFound
	}
	return q, nil
}

const quoteKeyPrefix = "quote:"

// RedisQuoteStore shares quotes between API instances. Keys expire with the
// quote plus a grace period so an expired quote still reaches the engine and
// is recorded as failed.
type RedisQuoteStore struct {
	client redis.UniversalClient
	grace  time.Duration
	now    func() time.Time
}

func NewRedisQuoteStore(client redis.UniversalClient) *RedisQuoteStore {
	return &RedisQuoteStore{client: client, grace: time.Minute, now: time.Now}
}

func (s *RedisQuoteStore) Save(ctx context.Context, q ledger.Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	ttl := q.ExpiresAt.Sub(s.now()) + s.grace
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, quoteKeyPrefix+q.ID, b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

func (s *RedisQuoteStore) Load(ctx context.Context, accountID, id string) (ledger.Quote, error) {
	b, err := s.client.Get(ctx, quoteKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.Quote{}, ErrQuoteNotFound
	}
	if err != nil {
		return ledger.Quote{}, fmt.Errorf("failed to load quote: %w", err)
	}
	var q ledger.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return ledger.Quote{}, fmt.Errorf("failed to decode quote: %w", err)
	}
	if q.AccountID != accountID {
		return ledger.Quote{}, ErrQuoteNotFound
	}
	return q, nil
}

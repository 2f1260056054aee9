package store

import (
	"context"
	"sync"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/ethereum/go-ethereum/common"
)

// InMemoryStore implements RequestStore for testing without a database.
// A single mutex stands in for the database's transaction isolation.
type InMemoryStore struct {
	mu       sync.Mutex
	accounts map[common.Address]*AccountRecord
	requests map[crypto.Fingerprint]time.Time

	// FailWith, when set, makes every mutating call fail. Used to
	// exercise bookkeeping-failure paths.
	FailWith error
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[common.Address]*AccountRecord),
		requests: make(map[crypto.Fingerprint]time.Time),
	}
}

// QueryCount returns the account's performed-query count.
func (s *InMemoryStore) QueryCount(ctx context.Context, account common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.accounts[account]; ok {
		return rec.PerformedQueryCount, nil
	}
	return 0, nil
}

// RequestExists reports whether the fingerprint was already admitted.
func (s *InMemoryStore) RequestExists(ctx context.Context, fp crypto.Fingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.requests[fp]
	return ok, nil
}

// ConsumeQuota records the fingerprint and increments the counter
// atomically under the store mutex.
func (s *InMemoryStore) ConsumeQuota(ctx context.Context, account common.Address, fp crypto.Fingerprint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return 0, s.FailWith
	}

	if _, ok := s.requests[fp]; ok {
		return 0, ErrDuplicateRequest
	}
	s.requests[fp] = time.Now()

	rec, ok := s.accounts[account]
	if !ok {
		rec = &AccountRecord{Address: account, CreatedAt: time.Now()}
		s.accounts[account] = rec
	}
	rec.PerformedQueryCount++
	return rec.PerformedQueryCount, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/ethereum/go-ethereum/common"
)

// ErrDuplicateRequest is returned by ConsumeQuota when the fingerprint
// was already recorded; the counter is left untouched.
var ErrDuplicateRequest = errors.New("request fingerprint already recorded")

// AccountRecord is the persisted quota state of one account.
type AccountRecord struct {
	Address             common.Address
	PerformedQueryCount int64
	CreatedAt           time.Time
}

// RequestStore persists per-account query counters and the
// replay-protection ledger.
type RequestStore interface {
	// QueryCount returns the account's performed-query count, zero for
	// accounts never seen.
	QueryCount(ctx context.Context, account common.Address) (int64, error)

	// RequestExists reports whether the fingerprint was already
	// admitted.
	RequestExists(ctx context.Context, fp crypto.Fingerprint) (bool, error)

	// ConsumeQuota records the fingerprint and increments the account's
	// counter in one transaction, creating the account record on first
	// use. Returns the new count, or ErrDuplicateRequest (with no
	// increment) if the fingerprint exists.
	ConsumeQuota(ctx context.Context, account common.Address, fp crypto.Fingerprint) (int64, error)

	// Close releases underlying resources.
	Close() error
}

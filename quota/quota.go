package quota

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/big"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/store"
	"github.com/ethereum/go-ethereum/common"
)

// Config holds the quota computation constants. All of them are
// deployment inputs, never hardcoded in the computation.
type Config struct {
	// UnverifiedBaseQuota is granted to any account that qualifies at
	// all (verified, or funded above a minimum).
	UnverifiedBaseQuota int64 `yaml:"unverified_base_quota"`

	// VerifiedBonusQuota is added for accounts whose identifier is
	// verified on-chain.
	VerifiedBonusQuota int64 `yaml:"verified_bonus_quota"`

	// PerTransactionQuota is added per sent transaction across the
	// account and its wallet.
	PerTransactionQuota int64 `yaml:"per_transaction_quota"`

	// MinNativeBalance and MinStableBalance gate the unverified path:
	// the account qualifies if it meets at least one of the configured
	// minimums. A nil minimum disables that currency.
	MinNativeBalance *big.Int `yaml:"-"`
	MinStableBalance *big.Int `yaml:"-"`

	// TestQuotaBypassPercentage admits that share of synthetic
	// end-to-end test traffic regardless of quota, selected by a
	// stable hash of the session ID. Zero (the default) disables the
	// bypass entirely; see the Open Question note on Check.
	TestQuotaBypassPercentage int `yaml:"test_quota_bypass_percentage"`

	// TestSessionPrefix marks synthetic sessions eligible for the
	// bypass. Production traffic without the marker never bypasses.
	TestSessionPrefix string `yaml:"test_session_prefix"`
}

// Status is the ephemeral, per-request quota standing returned to
// clients.
type Status struct {
	QueryCount  int64
	TotalQuota  int64
	BlockNumber uint64

	// Degraded marks figures computed with one or more chain reads on
	// their documented fallback.
	Degraded bool

	// Ungrounded marks the poisoned case where every balance and
	// transaction read failed; the figures reflect fallbacks only.
	Ungrounded bool
}

// Outcome reports what CheckAndConsume did.
type Outcome struct {
	// Sufficient is the admission decision.
	Sufficient bool

	// Bypassed marks an admission via the synthetic-traffic bypass; no
	// quota was consumed.
	Bypassed bool

	// Duplicate marks a fingerprint that was already admitted; no
	// quota was consumed.
	Duplicate bool

	// BookkeepingErr records a failed consume after admission. The
	// caller still returns the signature and surfaces a warning.
	BookkeepingErr error
}

// Service computes and consumes signing quota.
type Service struct {
	chain chain.Reader
	store store.RequestStore
	cfg   Config
	log   *slog.Logger
}

// New creates a quota service.
func New(chainReader chain.Reader, requestStore store.RequestStore, cfg Config, log *slog.Logger) *Service {
	return &Service{chain: chainReader, store: requestStore, cfg: cfg, log: log}
}

// Check computes the account's quota standing without consuming any.
func (s *Service) Check(ctx context.Context, account common.Address, identifierHash string) (*Status, error) {
	queryCount, err := s.store.QueryCount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("reading query count: %w", err)
	}

	state := chain.GatherQuotaState(ctx, s.chain, account, identifierHash)
	status := s.statusFromState(state, queryCount)

	if status.Ungrounded {
		// Never fabricate a passing quota with no grounding: the
		// figures go out as computed from fallbacks, loudly logged.
		s.log.Error("all chain reads failed, quota figures are fallback-only",
			"account", account.Hex())
	} else if status.Degraded {
		s.log.Warn("quota computed with degraded chain reads", "account", account.Hex())
	}

	return status, nil
}

// CheckAndConsume decides admission for one signing request and, when
// admitted, consumes one quota unit and records the fingerprint in a
// single store transaction. The admission decision is never reversed by
// a bookkeeping failure; the failure is reported in the outcome.
func (s *Service) CheckAndConsume(ctx context.Context, account common.Address, identifierHash, sessionID string, fp crypto.Fingerprint) (*Status, *Outcome, error) {
	status, err := s.Check(ctx, account, identifierHash)
	if err != nil {
		return nil, nil, err
	}

	outcome := &Outcome{Sufficient: status.TotalQuota-status.QueryCount > 0}

	if !outcome.Sufficient && s.bypassForSession(sessionID) {
		// Synthetic test traffic: admit without touching the counter.
		outcome.Sufficient = true
		outcome.Bypassed = true
		return status, outcome, nil
	}
	if !outcome.Sufficient {
		return status, outcome, nil
	}

	newCount, err := s.store.ConsumeQuota(ctx, account, fp)
	switch {
	case errors.Is(err, store.ErrDuplicateRequest):
		outcome.Duplicate = true
	case err != nil:
		outcome.BookkeepingErr = err
		s.log.Error("quota bookkeeping failed after admission",
			"account", account.Hex(), "err", err)
	default:
		status.QueryCount = newCount
	}

	return status, outcome, nil
}

func (s *Service) statusFromState(state *chain.QuotaState, queryCount int64) *Status {
	return &Status{
		QueryCount:  queryCount,
		TotalQuota:  s.totalQuota(state),
		BlockNumber: state.BlockNumber.Or(0),
		Degraded:    state.Degraded(),
		Ungrounded:  state.AllReadsFailed(),
	}
}

// totalQuota is the deterministic policy over gathered chain state.
// IsVerified carries the documented fail-open default: a failed
// verification read assumes verified, trading strictness for
// availability.
func (s *Service) totalQuota(state *chain.QuotaState) int64 {
	txQuota := s.cfg.PerTransactionQuota * int64(state.TransactionCount())

	if state.IsVerified() {
		return s.cfg.UnverifiedBaseQuota + s.cfg.VerifiedBonusQuota + txQuota
	}
	if s.meetsMinimumBalance(state) {
		return s.cfg.UnverifiedBaseQuota + txQuota
	}
	return 0
}

func (s *Service) meetsMinimumBalance(state *chain.QuotaState) bool {
	if s.cfg.MinNativeBalance != nil && state.NativeTotal().Cmp(s.cfg.MinNativeBalance) >= 0 {
		return true
	}
	if s.cfg.MinStableBalance != nil && state.StableTotal().Cmp(s.cfg.MinStableBalance) >= 0 {
		return true
	}
	return false
}

// bypassForSession selects a stable percentage of marked synthetic
// sessions. Requires both the configured prefix and a hash hit, so
// unmarked production traffic can never qualify.
func (s *Service) bypassForSession(sessionID string) bool {
	if s.cfg.TestQuotaBypassPercentage <= 0 || sessionID == "" {
		return false
	}
	if s.cfg.TestSessionPrefix == "" || len(sessionID) < len(s.cfg.TestSessionPrefix) ||
		sessionID[:len(s.cfg.TestSessionPrefix)] != s.cfg.TestSessionPrefix {
		return false
	}

	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32()%100) < s.cfg.TestQuotaBypassPercentage
}

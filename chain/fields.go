package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Result holds one chain read's outcome. A failed read keeps its error
// alongside the zero value so callers decide the fallback explicitly
// instead of the read fabricating one.
type Result[T any] struct {
	Value T
	Err   error
}

// Or returns the value, or fallback if the read failed.
func (r Result[T]) Or(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

// QuotaState is every chain observation the quota computation consumes
// for one request, each field carrying its own success or failure.
type QuotaState struct {
	Wallet Result[common.Address]

	AccountTxCount Result[uint64]
	WalletTxCount  Result[uint64]

	AccountNative Result[*big.Int]
	WalletNative  Result[*big.Int]
	AccountStable Result[*big.Int]
	WalletStable  Result[*big.Int]

	Verified    Result[bool]
	BlockNumber Result[uint64]
}

// GatherQuotaState reads all quota-relevant state for the account. The
// wallet mapping is resolved first since the remaining reads depend on
// it; the rest run concurrently. Individual failures are recorded
// per-field, never propagated as a whole-gather error.
func GatherQuotaState(ctx context.Context, r Reader, account common.Address, identifierHash string) *QuotaState {
	state := &QuotaState{}

	state.Wallet.Value, state.Wallet.Err = r.WalletAddress(ctx, account)
	wallet := state.Wallet.Or(common.Address{})
	// A wallet equal to the account would double-count every figure.
	hasWallet := wallet != (common.Address{}) && wallet != account

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		state.AccountTxCount.Value, state.AccountTxCount.Err = r.TransactionCount(gctx, account)
		return nil
	})
	g.Go(func() error {
		state.AccountNative.Value, state.AccountNative.Err = r.NativeBalance(gctx, account)
		return nil
	})
	g.Go(func() error {
		state.AccountStable.Value, state.AccountStable.Err = r.StableTokenBalance(gctx, account)
		return nil
	})
	g.Go(func() error {
		state.Verified.Value, state.Verified.Err = r.IsVerified(gctx, account, identifierHash)
		return nil
	})
	g.Go(func() error {
		state.BlockNumber.Value, state.BlockNumber.Err = r.BlockNumber(gctx)
		return nil
	})

	if hasWallet {
		g.Go(func() error {
			state.WalletTxCount.Value, state.WalletTxCount.Err = r.TransactionCount(gctx, wallet)
			return nil
		})
		g.Go(func() error {
			state.WalletNative.Value, state.WalletNative.Err = r.NativeBalance(gctx, wallet)
			return nil
		})
		g.Go(func() error {
			state.WalletStable.Value, state.WalletStable.Err = r.StableTokenBalance(gctx, wallet)
			return nil
		})
	}

	g.Wait()
	return state
}

// TransactionCount combines the account and wallet transaction counts,
// each failed read contributing zero.
func (s *QuotaState) TransactionCount() uint64 {
	return s.AccountTxCount.Or(0) + s.WalletTxCount.Or(0)
}

// NativeTotal combines the account and wallet native balances, each
// failed read contributing zero.
func (s *QuotaState) NativeTotal() *big.Int {
	total := new(big.Int)
	if s.AccountNative.Err == nil && s.AccountNative.Value != nil {
		total.Add(total, s.AccountNative.Value)
	}
	if s.WalletNative.Err == nil && s.WalletNative.Value != nil {
		total.Add(total, s.WalletNative.Value)
	}
	return total
}

// StableTotal combines the account and wallet stable-token balances,
// each failed read contributing zero.
func (s *QuotaState) StableTotal() *big.Int {
	total := new(big.Int)
	if s.AccountStable.Err == nil && s.AccountStable.Value != nil {
		total.Add(total, s.AccountStable.Value)
	}
	if s.WalletStable.Err == nil && s.WalletStable.Value != nil {
		total.Add(total, s.WalletStable.Value)
	}
	return total
}

// IsVerified reports verification status with the documented fail-open
// default: a failed read assumes verified, trading strictness for
// availability.
func (s *QuotaState) IsVerified() bool {
	if s.Verified.Err != nil {
		return true
	}
	return s.Verified.Value
}

// Degraded reports whether any read failed, meaning quota figures were
// computed from fallback values.
func (s *QuotaState) Degraded() bool {
	for _, err := range []error{
		s.Wallet.Err,
		s.AccountTxCount.Err, s.WalletTxCount.Err,
		s.AccountNative.Err, s.WalletNative.Err,
		s.AccountStable.Err, s.WalletStable.Err,
		s.Verified.Err, s.BlockNumber.Err,
	} {
		if err != nil {
			return true
		}
	}
	return false
}

// AllReadsFailed reports the poisoned case where no balance or
// transaction-count read for the account succeeded, so the computed
// quota has no grounding in chain state at all.
func (s *QuotaState) AllReadsFailed() bool {
	return s.AccountTxCount.Err != nil &&
		s.AccountNative.Err != nil &&
		s.AccountStable.Err != nil
}

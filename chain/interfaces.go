package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reader exposes the chain state consumed by quota accounting and
// request authentication. All methods may fail with network errors;
// callers must treat a failed read as unknown, not as zero or false.
type Reader interface {
	// TransactionCount returns the number of transactions sent from the
	// address.
	TransactionCount(ctx context.Context, address common.Address) (uint64, error)

	// NativeBalance returns the address's native-token balance.
	NativeBalance(ctx context.Context, address common.Address) (*big.Int, error)

	// StableTokenBalance returns the address's stable-token balance.
	StableTokenBalance(ctx context.Context, address common.Address) (*big.Int, error)

	// IsVerified reports whether the account holds a completed
	// attestation for the identifier hash.
	IsVerified(ctx context.Context, account common.Address, identifierHash string) (bool, error)

	// WalletAddress returns the account's registered wallet address,
	// or the zero address if none is registered.
	WalletAddress(ctx context.Context, account common.Address) (common.Address, error)

	// DataEncryptionKey returns the account's registered data
	// encryption key, or nil if none is registered.
	DataEncryptionKey(ctx context.Context, account common.Address) ([]byte, error)

	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)
}

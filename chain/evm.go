package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractAddresses locates the on-chain registries the reader calls.
type ContractAddresses struct {
	StableToken  common.Address `yaml:"stable_token"`
	Attestations common.Address `yaml:"attestations"`
	Accounts     common.Address `yaml:"accounts"`
}

// EVMReader implements Reader against an EVM JSON-RPC node. Every read
// runs under the configured RetryPolicy.
type EVMReader struct {
	client    *ethclient.Client
	contracts ContractAddresses
	retry     RetryPolicy

	// Attestations completed for the identifier before the account
	// counts as verified.
	minAttestations uint32
}

var (
	balanceOfSelector            = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]
	attestationStatsSelector     = ethcrypto.Keccak256([]byte("getAttestationStats(bytes32,address)"))[:4]
	walletAddressSelector        = ethcrypto.Keccak256([]byte("getWalletAddress(address)"))[:4]
	dataEncryptionKeySelector    = ethcrypto.Keccak256([]byte("getDataEncryptionKey(address)"))[:4]
	defaultMinAttestationsNeeded = uint32(3)
)

// NewEVMReader dials the node and wraps it in a retrying Reader.
func NewEVMReader(ctx context.Context, rpcURL string, contracts ContractAddresses, retry RetryPolicy) (*EVMReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing node %s: %w", rpcURL, err)
	}
	return &EVMReader{
		client:          client,
		contracts:       contracts,
		retry:           retry,
		minAttestations: defaultMinAttestationsNeeded,
	}, nil
}

// Close releases the underlying RPC connection.
func (r *EVMReader) Close() {
	r.client.Close()
}

// TransactionCount returns the sent-transaction count for the address.
func (r *EVMReader) TransactionCount(ctx context.Context, address common.Address) (uint64, error) {
	var count uint64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.client.NonceAt(ctx, address, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reading transaction count for %s: %w", address, err)
	}
	return count, nil
}

// NativeBalance returns the native-token balance for the address.
func (r *EVMReader) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	var balance *big.Int
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		balance, err = r.client.BalanceAt(ctx, address, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading native balance for %s: %w", address, err)
	}
	return balance, nil
}

// StableTokenBalance calls balanceOf on the stable-token contract.
func (r *EVMReader) StableTokenBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	out, err := r.call(ctx, r.contracts.StableToken, packAddressCall(balanceOfSelector, address))
	if err != nil {
		return nil, fmt.Errorf("reading stable balance for %s: %w", address, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("stable balance call returned %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// IsVerified reads the attestation stats for (identifier, account) and
// reports whether enough attestations completed.
func (r *EVMReader) IsVerified(ctx context.Context, account common.Address, identifierHash string) (bool, error) {
	if identifierHash == "" {
		return false, nil
	}

	data := make([]byte, 0, 4+64)
	data = append(data, attestationStatsSelector...)
	data = append(data, common.HexToHash(identifierHash).Bytes()...)
	data = append(data, common.LeftPadBytes(account.Bytes(), 32)...)

	out, err := r.call(ctx, r.contracts.Attestations, data)
	if err != nil {
		return false, fmt.Errorf("reading attestation stats for %s: %w", account, err)
	}
	if len(out) < 64 {
		return false, fmt.Errorf("attestation stats call returned %d bytes", len(out))
	}

	completed := new(big.Int).SetBytes(out[:32])
	return completed.Uint64() >= uint64(r.minAttestations), nil
}

// WalletAddress reads the account's registered wallet mapping.
func (r *EVMReader) WalletAddress(ctx context.Context, account common.Address) (common.Address, error) {
	out, err := r.call(ctx, r.contracts.Accounts, packAddressCall(walletAddressSelector, account))
	if err != nil {
		return common.Address{}, fmt.Errorf("reading wallet address for %s: %w", account, err)
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("wallet address call returned %d bytes", len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// DataEncryptionKey reads the account's registered DEK (dynamic bytes).
func (r *EVMReader) DataEncryptionKey(ctx context.Context, account common.Address) ([]byte, error) {
	out, err := r.call(ctx, r.contracts.Accounts, packAddressCall(dataEncryptionKeySelector, account))
	if err != nil {
		return nil, fmt.Errorf("reading DEK for %s: %w", account, err)
	}
	return unpackBytes(out)
}

// BlockNumber returns the current chain height.
func (r *EVMReader) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		number, err = r.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reading block number: %w", err)
	}
	return number, nil
}

func (r *EVMReader) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	return out, err
}

func packAddressCall(selector []byte, address common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, selector...)
	return append(data, common.LeftPadBytes(address.Bytes(), 32)...)
}

// unpackBytes decodes a single dynamic `bytes` return value.
func unpackBytes(out []byte) ([]byte, error) {
	if len(out) == 0 {
		return nil, nil
	}
	if len(out) < 64 {
		return nil, fmt.Errorf("bytes return too short: %d", len(out))
	}

	offset := new(big.Int).SetBytes(out[:32]).Uint64()
	if offset+32 > uint64(len(out)) {
		return nil, fmt.Errorf("bytes offset %d out of range", offset)
	}
	length := new(big.Int).SetBytes(out[offset : offset+32]).Uint64()
	if length == 0 {
		return nil, nil
	}
	if offset+32+length > uint64(len(out)) {
		return nil, fmt.Errorf("bytes length %d out of range", length)
	}
	return out[offset+32 : offset+32+length], nil
}
